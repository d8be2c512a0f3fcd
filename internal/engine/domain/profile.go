package domain

import "time"

// Profile is the user-owned profile record keyed by identity id. It is
// created lazily on first sign-in and mutated only through explicit
// update calls.
type Profile struct {
	ID          string
	FullName    string
	Phone       string
	Preferences map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProfileUpdate carries the mutable profile fields. Nil pointers leave
// the stored value untouched.
type ProfileUpdate struct {
	FullName    *string
	Phone       *string
	Preferences map[string]any
}

// DefaultPreferences returns the preference set seeded into a freshly
// created profile.
func DefaultPreferences() map[string]any {
	return map[string]any{
		"email_notifications": true,
		"sms_notifications":   false,
		"newsletter":          true,
	}
}
