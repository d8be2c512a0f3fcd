package domain

import "time"

// IdentityRecord is the provider-owned credential row backing an
// identity. It never leaves the provider boundary; consumers only ever
// see the derived Identity.
type IdentityRecord struct {
	ID                 string
	Email              string
	PasswordHash       string
	Metadata           map[string]any
	ConfirmationSecret string
	ConfirmedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Confirmed reports whether the identity has completed email confirmation.
func (r IdentityRecord) Confirmed() bool { return r.ConfirmedAt != nil }

// RefreshToken is a provider-owned refresh token record, stored by
// fingerprint rather than raw value.
type RefreshToken struct {
	ID         string
	IdentityID string
	TokenHash  string
	Revoked    bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
