package domain

import "time"

// SessionState tracks where the engine sits in the sign-in lifecycle.
type SessionState string

const (
	// StateUnknown is the only initial state, held until the first
	// session check against the identity provider resolves.
	StateUnknown SessionState = "unknown"

	StateSignedOut SessionState = "signed_out"
	StateSignedIn  SessionState = "signed_in"
)

// Identity is the authenticated principal as reported by the identity
// provider. Immutable once issued for a given session.
type Identity struct {
	ID       string
	Email    string
	Metadata map[string]any
}

// Session is the opaque credential bundle for a live authenticated
// connection. Owned exclusively by the session manager; consumers must
// treat it as read-only.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     Identity
}
