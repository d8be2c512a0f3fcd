// Package provider defines the identity-provider boundary the session
// manager authenticates against.
package provider

import (
	"context"
	"errors"

	"github.com/palmsestate/palms/internal/engine/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrEmailTaken         = errors.New("email_already_registered")
	ErrEmailNotConfirmed  = errors.New("email_not_confirmed")
	ErrInvalidCode        = errors.New("invalid_confirmation_code")
	ErrTooManyAttempts    = errors.New("too_many_attempts")
)

// AuthEvent names an auth-state transition reported by the provider.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// ResendKind selects which message Resend re-issues.
type ResendKind string

const ResendSignUp ResendKind = "signup"

// SignUpOptions carries optional registration data.
type SignUpOptions struct {
	Metadata map[string]any
}

// SignUpResult is the outcome of a registration attempt. When the
// provider requires email confirmation, Session is nil and
// RequiresEmailConfirmation is set; the caller stays signed out until
// the identity is confirmed.
type SignUpResult struct {
	Identity                  domain.Identity
	Session                   *domain.Session
	RequiresEmailConfirmation bool
}

// IdentityProvider is the external auth service. Implementations track
// the current session themselves; GetSession returns nil without error
// when signed out.
type IdentityProvider interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) (*SignUpResult, error)
	SignOut(ctx context.Context) error
	RefreshSession(ctx context.Context) (*domain.Session, error)
	Resend(ctx context.Context, kind ResendKind, email string) error

	// OnAuthStateChange registers a listener for auth-state transitions
	// (including ones initiated outside this process view, e.g. another
	// consumer of the same provider). The returned function removes the
	// listener.
	OnAuthStateChange(fn func(event AuthEvent, s *domain.Session)) (unsubscribe func())
}
