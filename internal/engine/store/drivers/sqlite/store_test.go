package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/store"
	"github.com/palmsestate/palms/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())

	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newIdentity(email string) domain.IdentityRecord {
	now := time.Now().UTC()
	return domain.IdentityRecord{
		ID:           idx.New(),
		Email:        email,
		PasswordHash: "$argon2id$fake",
		Metadata:     map[string]any{"full_name": "Test User"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestIdentities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	rec := newIdentity("a@example.com")
	require.NoError(t, st.Identities().CreateIdentity(ctx, rec))

	t.Run("lookup by id and email", func(t *testing.T) {
		got, err := st.Identities().GetIdentityByID(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, rec.Email, got.Email)
		require.Equal(t, "Test User", got.Metadata["full_name"])
		require.False(t, got.Confirmed())

		got, err = st.Identities().GetIdentityByEmail(ctx, "a@example.com")
		require.NoError(t, err)
		require.Equal(t, rec.ID, got.ID)
	})

	t.Run("missing rows map to ErrNotFound", func(t *testing.T) {
		_, err := st.Identities().GetIdentityByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = st.Identities().GetIdentityByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email maps to ErrAlreadyExists", func(t *testing.T) {
		dup := newIdentity("a@example.com")
		err := st.Identities().CreateIdentity(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("confirmation stamps the row", func(t *testing.T) {
		at := time.Now().UTC()
		require.NoError(t, st.Identities().ConfirmIdentity(ctx, rec.ID, at))

		got, err := st.Identities().GetIdentityByID(ctx, rec.ID)
		require.NoError(t, err)
		require.True(t, got.Confirmed())
	})

	t.Run("confirmation secret rotates", func(t *testing.T) {
		require.NoError(t, st.Identities().UpdateConfirmationSecret(ctx, rec.ID, "NEWSECRET"))

		got, err := st.Identities().GetIdentityByID(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, "NEWSECRET", got.ConfirmationSecret)
	})
}

func TestRefreshTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	rec := newIdentity("rt@example.com")
	require.NoError(t, st.Identities().CreateIdentity(ctx, rec))

	now := time.Now().UTC()
	mk := func(hash string, expiresAt time.Time) domain.RefreshToken {
		tok := domain.RefreshToken{
			ID:         idx.New(),
			IdentityID: rec.ID,
			TokenHash:  hash,
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, tok))
		return tok
	}

	t.Run("create and fetch by hash", func(t *testing.T) {
		mk("hash-1", now.Add(time.Hour))
		got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-1")
		require.NoError(t, err)
		require.Equal(t, rec.ID, got.IdentityID)
		require.False(t, got.Revoked)

		_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "absent")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("revoke single", func(t *testing.T) {
		mk("hash-2", now.Add(time.Hour))
		require.NoError(t, st.RefreshTokens().RevokeRefreshToken(ctx, "hash-2"))

		got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-2")
		require.NoError(t, err)
		require.True(t, got.Revoked)
	})

	t.Run("revoke all for identity", func(t *testing.T) {
		mk("hash-3", now.Add(time.Hour))
		mk("hash-4", now.Add(time.Hour))
		require.NoError(t, st.RefreshTokens().RevokeAllIdentityRefreshTokens(ctx, rec.ID))

		for _, h := range []string{"hash-3", "hash-4"} {
			got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, h)
			require.NoError(t, err)
			require.True(t, got.Revoked)
		}
	})

	t.Run("expired tokens are purged", func(t *testing.T) {
		mk("hash-old", now.Add(-time.Hour))
		mk("hash-live", now.Add(time.Hour))
		require.NoError(t, st.RefreshTokens().DeleteExpiredRefreshTokens(ctx))

		_, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-old")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "hash-live")
		require.NoError(t, err)
	})
}

func TestUserRoles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	_, err := st.UserRoles().GetUserRole(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)

	now := time.Now().UTC()
	require.NoError(t, st.UserRoles().UpsertUserRole(ctx, domain.UserRole{
		UserID: "u1", Role: domain.RoleUser, CreatedAt: now, UpdatedAt: now,
	}))

	got, err := st.UserRoles().GetUserRole(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, got.Role)
	require.False(t, got.TestMode)

	// Upsert overwrites in place.
	require.NoError(t, st.UserRoles().UpsertUserRole(ctx, domain.UserRole{
		UserID: "u1", Role: domain.RoleAdmin, TestMode: true, CreatedAt: now, UpdatedAt: now,
	}))
	got, err = st.UserRoles().GetUserRole(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, got.Role)
	require.True(t, got.TestMode)

	require.NoError(t, st.UserRoles().DeleteUserRole(ctx, "u1"))
	_, err = st.UserRoles().GetUserRole(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSystemSettings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	_, err := st.SystemSettings().GetSetting(ctx, domain.SettingTestMode)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.SystemSettings().UpsertSetting(ctx, domain.SystemSetting{
		Key:       domain.SettingTestMode,
		Value:     map[string]any{"enabled": true},
		UpdatedAt: time.Now().UTC(),
	}))

	got, err := st.SystemSettings().GetSetting(ctx, domain.SettingTestMode)
	require.NoError(t, err)
	require.True(t, got.Enabled())

	require.NoError(t, st.SystemSettings().UpsertSetting(ctx, domain.SystemSetting{
		Key:       domain.SettingTestMode,
		Value:     map[string]any{"enabled": false},
		UpdatedAt: time.Now().UTC(),
	}))

	got, err = st.SystemSettings().GetSetting(ctx, domain.SettingTestMode)
	require.NoError(t, err)
	require.False(t, got.Enabled())
}

func TestProfiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	now := time.Now().UTC()
	p := domain.Profile{
		ID:          "u1",
		FullName:    "Ada Leigh",
		Phone:       "+15550100",
		Preferences: domain.DefaultPreferences(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, st.Profiles().InsertProfileIfAbsent(ctx, p))

	t.Run("fetch round-trips preferences", func(t *testing.T) {
		got, err := st.Profiles().GetProfileByID(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "Ada Leigh", got.FullName)
		require.Equal(t, true, got.Preferences["email_notifications"])
	})

	t.Run("insert-if-absent is a no-op on conflict", func(t *testing.T) {
		other := p
		other.FullName = "Someone Else"
		require.NoError(t, st.Profiles().InsertProfileIfAbsent(ctx, other))

		got, err := st.Profiles().GetProfileByID(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "Ada Leigh", got.FullName)
	})

	t.Run("update patches only provided fields", func(t *testing.T) {
		phone := "+15550199"
		require.NoError(t, st.Profiles().UpdateProfile(ctx, "u1", domain.ProfileUpdate{
			Phone: &phone,
		}))

		got, err := st.Profiles().GetProfileByID(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "Ada Leigh", got.FullName)
		require.Equal(t, "+15550199", got.Phone)
	})

	t.Run("missing profile maps to ErrNotFound", func(t *testing.T) {
		_, err := st.Profiles().GetProfileByID(ctx, "absent")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestApplications(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.Applications().CreateApplication(ctx, domain.Application{
			ID:         idx.New(),
			UserID:     "u1",
			PropertyID: "p1",
			Status:     domain.ApplicationPending,
			CreatedAt:  at,
			UpdatedAt:  at,
		}))
	}

	apps, err := st.Applications().ListRecentApplicationsByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, apps, 4)

	t.Run("status update counts", func(t *testing.T) {
		require.NoError(t, st.Applications().UpdateApplicationStatus(ctx, apps[0].ID, domain.ApplicationApproved))

		total, err := st.Applications().CountApplicationsByUser(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 4, total)

		pending, err := st.Applications().CountApplicationsByUserAndStatus(ctx, "u1", domain.ApplicationPending)
		require.NoError(t, err)
		require.Equal(t, 3, pending)

		approved, err := st.Applications().CountApplicationsByUserAndStatus(ctx, "u1", domain.ApplicationApproved)
		require.NoError(t, err)
		require.Equal(t, 1, approved)
	})

	t.Run("recent list is newest first and limited", func(t *testing.T) {
		recent, err := st.Applications().ListRecentApplicationsByUser(ctx, "u1", 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		require.True(t, recent[0].CreatedAt.After(recent[1].CreatedAt))
	})

	t.Run("counts are scoped per user", func(t *testing.T) {
		n, err := st.Applications().CountApplicationsByUser(ctx, "other")
		require.NoError(t, err)
		require.Zero(t, n)
	})
}

func TestSavedProperties(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	now := time.Now().UTC()
	sp := domain.SavedProperty{ID: idx.New(), UserID: "u1", PropertyID: "p1", CreatedAt: now}
	require.NoError(t, st.SavedProperties().SaveProperty(ctx, sp))

	t.Run("duplicate bookmark maps to ErrAlreadyExists", func(t *testing.T) {
		dup := domain.SavedProperty{ID: idx.New(), UserID: "u1", PropertyID: "p1", CreatedAt: now}
		require.ErrorIs(t, st.SavedProperties().SaveProperty(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("count and remove", func(t *testing.T) {
		n, err := st.SavedProperties().CountSavedPropertiesByUser(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, 1, n)

		require.NoError(t, st.SavedProperties().RemoveSavedProperty(ctx, "u1", "p1"))

		n, err = st.SavedProperties().CountSavedPropertiesByUser(ctx, "u1")
		require.NoError(t, err)
		require.Zero(t, n)
	})
}

func TestPaymentRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	now := time.Now().UTC()
	mk := func(due time.Time) domain.PaymentRequest {
		p := domain.PaymentRequest{
			ID: idx.New(), UserID: "u1", Amount: 125000, DueAt: due, CreatedAt: now,
		}
		require.NoError(t, st.PaymentRequests().CreatePaymentRequest(ctx, p))
		return p
	}

	upcoming := mk(now.Add(48 * time.Hour))
	mk(now.Add(-48 * time.Hour)) // overdue
	paid := mk(now.Add(24 * time.Hour))
	require.NoError(t, st.PaymentRequests().MarkPaymentPaid(ctx, paid.ID))

	n, err := st.PaymentRequests().CountUpcomingPaymentsByUser(ctx, "u1", now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Once the remaining request falls due it drops out too.
	n, err = st.PaymentRequests().CountUpcomingPaymentsByUser(ctx, "u1", upcoming.DueAt.Add(time.Minute))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWithTx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	t.Run("commit persists", func(t *testing.T) {
		err := st.WithTx(ctx, func(tx store.Tx) error {
			return tx.Identities().CreateIdentity(ctx, newIdentity("tx@example.com"))
		})
		require.NoError(t, err)

		_, err = st.Identities().GetIdentityByEmail(ctx, "tx@example.com")
		require.NoError(t, err)
	})

	t.Run("error rolls back", func(t *testing.T) {
		boom := errRollback{}
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Identities().CreateIdentity(ctx, newIdentity("gone@example.com")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = st.Identities().GetIdentityByEmail(ctx, "gone@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

type errRollback struct{}

func (errRollback) Error() string { return "rollback please" }
