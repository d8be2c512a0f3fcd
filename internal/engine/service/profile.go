package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/store"
)

// ProfileService fetches or lazily creates user profile records. A
// profile exists for every authenticated identity by the time dependent
// consumers read it.
type ProfileService struct {
	Store  store.Store
	Logger *slog.Logger
}

func NewProfileService(st store.Store, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{Store: st, Logger: logger}
}

// Load returns the profile for an identity, creating it from identity
// metadata when absent. Not-found is not an error; anything else is
// returned to the caller (who treats profiles as best-effort
// enrichment).
func (s *ProfileService) Load(ctx context.Context, identity domain.Identity) (*domain.Profile, error) {
	p, err := s.Store.Profiles().GetProfileByID(ctx, identity.ID)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load profile %s: %w", identity.ID, err)
	}

	return s.create(ctx, identity)
}

// create seeds a profile from identity metadata. Insert is a no-op when
// a concurrent creator got there first, so the subsequent read always
// returns the winning row.
func (s *ProfileService) create(ctx context.Context, identity domain.Identity) (*domain.Profile, error) {
	now := time.Now().UTC()
	seed := domain.Profile{
		ID:          identity.ID,
		FullName:    metadataString(identity.Metadata, "full_name"),
		Phone:       metadataString(identity.Metadata, "phone"),
		Preferences: domain.DefaultPreferences(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.Store.Profiles().InsertProfileIfAbsent(ctx, seed); err != nil {
		return nil, fmt.Errorf("create profile %s: %w", identity.ID, err)
	}

	s.Logger.Info("profile created", slog.String("user_id", identity.ID))

	p, err := s.Store.Profiles().GetProfileByID(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("reload profile %s: %w", identity.ID, err)
	}
	return &p, nil
}

// Update applies an explicit profile mutation and returns the updated
// record.
func (s *ProfileService) Update(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.Profile, error) {
	if err := s.Store.Profiles().UpdateProfile(ctx, userID, upd); err != nil {
		return nil, fmt.Errorf("update profile %s: %w", userID, err)
	}

	p, err := s.Store.Profiles().GetProfileByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload profile %s: %w", userID, err)
	}
	return &p, nil
}

func metadataString(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}
