package domain

import "time"

// Role is the coarse authorization tier for an identity.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// RoleInfo is the output of role resolution for one identity.
type RoleInfo struct {
	Role     Role
	IsAdmin  bool
	TestMode bool
}

// EnhancedUser is the derived authorization view of the signed-in
// identity. It is recomputed on every identity change and always
// replaced as a whole, never partially updated.
type EnhancedUser struct {
	Identity Identity
	Role     Role
	IsAdmin  bool
	TestMode bool
}

// UserRole is a per-identity role record in the relational store. When
// present it is authoritative over the email heuristic.
type UserRole struct {
	UserID    string
	Role      Role
	TestMode  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SystemSetting is a keyed settings document. Values are free-form JSON
// objects; the engine only reads the test_mode setting.
type SystemSetting struct {
	Key       string
	Value     map[string]any
	UpdatedAt time.Time
}

// SettingTestMode is the key for the global test-mode override.
const SettingTestMode = "test_mode"

// Enabled reports whether the setting carries {"enabled": true}.
func (s SystemSetting) Enabled() bool {
	v, ok := s.Value["enabled"].(bool)
	return ok && v
}
