package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/store"
)

// DefaultReservedAdminEmail is the fixed address always treated as
// admin when no role record exists.
const DefaultReservedAdminEmail = "admin@palmsestate.org"

// RoleResolver derives {role, isAdmin, testMode} for an identity. The
// store-backed role record is authoritative; the email heuristic is a
// degraded-mode convenience used only when no record can be read.
type RoleResolver struct {
	Store  store.Store
	Logger *slog.Logger

	// ReservedAdminEmail defaults to DefaultReservedAdminEmail.
	ReservedAdminEmail string
}

func NewRoleResolver(st store.Store, logger *slog.Logger) *RoleResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleResolver{
		Store:              st,
		Logger:             logger,
		ReservedAdminEmail: DefaultReservedAdminEmail,
	}
}

// Resolve is idempotent for a given identity and store state and never
// fails: store errors degrade to the heuristic instead of propagating.
func (r *RoleResolver) Resolve(ctx context.Context, identity domain.Identity) domain.RoleInfo {
	info := r.resolveBase(ctx, identity)

	// Global override: admins inherit test mode when the system-wide
	// flag is on. Non-admins never receive test mode this way.
	if info.IsAdmin && !info.TestMode {
		setting, err := r.Store.SystemSettings().GetSetting(ctx, domain.SettingTestMode)
		switch {
		case err == nil:
			if setting.Enabled() {
				info.TestMode = true
			}
		case !errors.Is(err, store.ErrNotFound):
			r.Logger.Warn("system settings lookup failed, skipping test-mode override",
				slog.String("user_id", identity.ID), slog.String("error", err.Error()))
		}
	}

	return info
}

func (r *RoleResolver) resolveBase(ctx context.Context, identity domain.Identity) domain.RoleInfo {
	record, err := r.Store.UserRoles().GetUserRole(ctx, identity.ID)
	if err == nil {
		return domain.RoleInfo{
			Role:     record.Role,
			IsAdmin:  record.Role == domain.RoleAdmin,
			TestMode: record.TestMode,
		}
	}

	if !errors.Is(err, store.ErrNotFound) {
		r.Logger.Warn("role lookup failed, falling back to heuristic",
			slog.String("user_id", identity.ID), slog.String("error", err.Error()))
	}

	if r.isHeuristicAdmin(identity) {
		return domain.RoleInfo{Role: domain.RoleAdmin, IsAdmin: true}
	}
	return domain.RoleInfo{Role: domain.RoleUser}
}

func (r *RoleResolver) isHeuristicAdmin(identity domain.Identity) bool {
	email := strings.ToLower(identity.Email)

	reserved := r.ReservedAdminEmail
	if reserved == "" {
		reserved = DefaultReservedAdminEmail
	}

	if email == strings.ToLower(reserved) {
		return true
	}
	if strings.Contains(email, "admin") {
		return true
	}
	if marker, ok := identity.Metadata["is_admin"].(bool); ok && marker {
		return true
	}
	return false
}
