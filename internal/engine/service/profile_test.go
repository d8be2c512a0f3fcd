package service

import (
	"context"
	"testing"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/stretchr/testify/require"
)

func TestProfileService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	identity := domain.Identity{
		ID:    "prof-1",
		Email: "tenant@example.com",
		Metadata: map[string]any{
			"full_name": "Alex Tenant",
			"phone":     "+61 400 000 000",
		},
	}

	t.Run("missing profile is created from identity metadata", func(t *testing.T) {
		s := NewProfileService(newTestStore(t), nil)

		p, err := s.Load(ctx, identity)
		require.NoError(t, err)
		require.Equal(t, "prof-1", p.ID)
		require.Equal(t, "Alex Tenant", p.FullName)
		require.Equal(t, "+61 400 000 000", p.Phone)
		require.Equal(t, true, p.Preferences["email_notifications"])
	})

	t.Run("second load returns the same record unchanged", func(t *testing.T) {
		s := NewProfileService(newTestStore(t), nil)

		first, err := s.Load(ctx, identity)
		require.NoError(t, err)
		second, err := s.Load(ctx, identity)
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("create is a no-op when the row already exists", func(t *testing.T) {
		st := newTestStore(t)
		s := NewProfileService(st, nil)

		_, err := s.Load(ctx, identity)
		require.NoError(t, err)

		// A concurrent creator's row must survive a second create.
		winner := domain.Identity{ID: "prof-1", Email: identity.Email,
			Metadata: map[string]any{"full_name": "Someone Else"}}
		p, err := s.Load(ctx, winner)
		require.NoError(t, err)
		require.Equal(t, "Alex Tenant", p.FullName)
	})

	t.Run("identity without metadata gets defaults", func(t *testing.T) {
		s := NewProfileService(newTestStore(t), nil)

		p, err := s.Load(ctx, domain.Identity{ID: "bare", Email: "bare@example.com"})
		require.NoError(t, err)
		require.Empty(t, p.FullName)
		require.Equal(t, domain.DefaultPreferences(), p.Preferences)
	})

	t.Run("update persists and returns the new record", func(t *testing.T) {
		s := NewProfileService(newTestStore(t), nil)

		_, err := s.Load(ctx, identity)
		require.NoError(t, err)

		name := "Alexandra Tenant"
		p, err := s.Update(ctx, identity.ID, domain.ProfileUpdate{FullName: &name})
		require.NoError(t, err)
		require.Equal(t, "Alexandra Tenant", p.FullName)
		require.Equal(t, "+61 400 000 000", p.Phone)

		reloaded, err := s.Load(ctx, identity)
		require.NoError(t, err)
		require.Equal(t, "Alexandra Tenant", reloaded.FullName)
	})
}
