package store

import (
	"context"
	"errors"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Identities() Identities
	RefreshTokens() RefreshTokens
	UserRoles() UserRoles
	SystemSettings() SystemSettings
	Profiles() Profiles
	Applications() Applications
	SavedProperties() SavedProperties
	PaymentRequests() PaymentRequests

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error
	// the transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store scoped to one transaction.
type Tx interface {
	Identities() Identities
	RefreshTokens() RefreshTokens
	UserRoles() UserRoles
	SystemSettings() SystemSettings
	Profiles() Profiles
	Applications() Applications
	SavedProperties() SavedProperties
	PaymentRequests() PaymentRequests

	Commit() error
	Rollback() error
}

// Identities holds provider-owned credential records.
type Identities interface {
	// CreateIdentity inserts a new identity (id is provided via ULID).
	// Returns ErrAlreadyExists when the email is taken.
	CreateIdentity(ctx context.Context, rec domain.IdentityRecord) error

	GetIdentityByID(ctx context.Context, id string) (domain.IdentityRecord, error)
	GetIdentityByEmail(ctx context.Context, email string) (domain.IdentityRecord, error)

	// ConfirmIdentity stamps confirmed_at and bumps updated_at.
	ConfirmIdentity(ctx context.Context, id string, at time.Time) error

	// UpdateConfirmationSecret replaces the email-confirmation secret.
	UpdateConfirmationSecret(ctx context.Context, id string, secret string) error
}

// RefreshTokens holds provider-owned refresh token records, keyed by
// fingerprint.
type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token by its SHA-256 fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken flips revoked, sets updated_at.
	RevokeRefreshToken(ctx context.Context, hash string) error

	// RevokeAllIdentityRefreshTokens bulk revocation for an identity.
	RevokeAllIdentityRefreshTokens(ctx context.Context, identityID string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}

// UserRoles holds the per-identity authorization records consulted
// before the email heuristic.
type UserRoles interface {
	GetUserRole(ctx context.Context, userID string) (domain.UserRole, error)
	UpsertUserRole(ctx context.Context, role domain.UserRole) error
	DeleteUserRole(ctx context.Context, userID string) error
}

// SystemSettings is the keyed settings collection.
type SystemSettings interface {
	GetSetting(ctx context.Context, key string) (domain.SystemSetting, error)
	UpsertSetting(ctx context.Context, setting domain.SystemSetting) error
}

// Profiles holds user profile records keyed by identity id.
type Profiles interface {
	GetProfileByID(ctx context.Context, id string) (domain.Profile, error)

	// InsertProfileIfAbsent creates the profile when missing and is a
	// no-op when a concurrent creator already inserted it.
	InsertProfileIfAbsent(ctx context.Context, p domain.Profile) error

	UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) error
}

// Applications holds rental application rows.
type Applications interface {
	CreateApplication(ctx context.Context, a domain.Application) error
	UpdateApplicationStatus(ctx context.Context, id string, status string) error

	CountApplicationsByUser(ctx context.Context, userID string) (int, error)
	CountApplicationsByUserAndStatus(ctx context.Context, userID string, status string) (int, error)

	// ListRecentApplicationsByUser returns the newest applications
	// first, capped at limit.
	ListRecentApplicationsByUser(ctx context.Context, userID string, limit int) ([]domain.Application, error)
}

// SavedProperties holds property bookmarks.
type SavedProperties interface {
	SaveProperty(ctx context.Context, sp domain.SavedProperty) error
	RemoveSavedProperty(ctx context.Context, userID string, propertyID string) error
	CountSavedPropertiesByUser(ctx context.Context, userID string) (int, error)
}

// PaymentRequests holds payment demands against users.
type PaymentRequests interface {
	CreatePaymentRequest(ctx context.Context, p domain.PaymentRequest) error
	MarkPaymentPaid(ctx context.Context, id string) error

	// CountUpcomingPaymentsByUser counts unpaid requests due after now.
	CountUpcomingPaymentsByUser(ctx context.Context, userID string, now time.Time) (int, error)
}
