// Package local is an embedded identity provider. It implements the
// provider boundary against the relational store directly: Argon2id
// password hashes, HS256 access tokens, rotating opaque refresh tokens
// and an email-confirmation flow.
package local

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/provider"
	"github.com/palmsestate/palms/internal/engine/store"
	"github.com/palmsestate/palms/pkg/cryptox"
	"github.com/palmsestate/palms/pkg/idx"
)

type Config struct {
	Issuer        string
	SigningSecret []byte
	AccessTTL     time.Duration // default 1h
	RefreshTTL    time.Duration // default 30d

	// RequireEmailConfirmation keeps new identities signed out until
	// they redeem a confirmation code.
	RequireEmailConfirmation bool

	// AttemptsPerWindow caps password and confirmation-code attempts
	// per email per AttemptWindow. Defaults: 5 per minute.
	AttemptsPerWindow int
	AttemptWindow     time.Duration
}

type Provider struct {
	store    store.Store
	logger   *slog.Logger
	cfg      Config
	attempts *attemptLimiter

	mu           sync.RWMutex
	current      *domain.Session
	listeners    map[int]func(provider.AuthEvent, *domain.Session)
	nextListener int
}

func New(st store.Store, logger *slog.Logger, cfg Config) *Provider {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "palms-local"
	}
	if cfg.AttemptsPerWindow <= 0 {
		cfg.AttemptsPerWindow = 5
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		store:     st,
		logger:    logger,
		cfg:       cfg,
		attempts:  newAttemptLimiter(cfg.AttemptsPerWindow, cfg.AttemptWindow),
		listeners: make(map[int]func(provider.AuthEvent, *domain.Session)),
	}
}

// GetSession returns the current session, or nil without error when
// signed out.
func (p *Provider) GetSession(_ context.Context) (*domain.Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current == nil {
		return nil, nil
	}
	cp := *p.current
	return &cp, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	if !p.attempts.allow(strings.ToLower(email)) {
		return nil, provider.ErrTooManyAttempts
	}

	rec, err := p.store.Identities().GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, provider.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(password, rec.PasswordHash); err != nil {
		return nil, provider.ErrInvalidCredentials
	}

	if p.cfg.RequireEmailConfirmation && !rec.Confirmed() {
		return nil, provider.ErrEmailNotConfirmed
	}

	sess, err := p.issueSession(ctx, rec)
	if err != nil {
		return nil, err
	}

	p.setCurrent(sess)
	p.fire(provider.EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the current refresh token and clears the session. The
// local session is cleared even when revocation fails; the error is
// still returned so callers can surface it.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	current := p.current
	p.current = nil
	p.mu.Unlock()

	var revokeErr error
	if current != nil && current.RefreshToken != "" {
		hash := cryptox.FingerprintToken(current.RefreshToken)
		revokeErr = p.store.RefreshTokens().RevokeRefreshToken(ctx, hash)
	}

	p.fire(provider.EventSignedOut, nil)
	return revokeErr
}

// RefreshSession rotates the refresh token and mints a new access
// token. A missing, revoked or expired refresh token yields
// ErrInvalidRefresh.
func (p *Provider) RefreshSession(ctx context.Context) (*domain.Session, error) {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()

	if current == nil || current.RefreshToken == "" {
		return nil, provider.ErrInvalidRefresh
	}

	hash := cryptox.FingerprintToken(current.RefreshToken)

	rt, err := p.store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, provider.ErrInvalidRefresh
		}
		return nil, err
	}
	if rt.Revoked || time.Now().UTC().After(rt.ExpiresAt) {
		return nil, provider.ErrInvalidRefresh
	}

	rec, err := p.store.Identities().GetIdentityByID(ctx, rt.IdentityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, provider.ErrInvalidRefresh
		}
		return nil, err
	}

	// Rotation: the old token dies with this refresh.
	if err := p.store.RefreshTokens().RevokeRefreshToken(ctx, hash); err != nil {
		return nil, err
	}

	sess, err := p.issueSession(ctx, rec)
	if err != nil {
		return nil, err
	}

	p.setCurrent(sess)
	p.fire(provider.EventTokenRefreshed, sess)
	return sess, nil
}

func (p *Provider) OnAuthStateChange(fn func(event provider.AuthEvent, s *domain.Session)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// issueSession mints an access token and stores a fresh refresh token
// for the identity.
func (p *Provider) issueSession(ctx context.Context, rec domain.IdentityRecord) (*domain.Session, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(p.cfg.AccessTTL)

	accessToken, err := p.mintAccessToken(rec, now, expiresAt)
	if err != nil {
		return nil, err
	}

	refreshToken, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	err = p.store.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID:         idx.New(),
		IdentityID: rec.ID,
		TokenHash:  cryptox.FingerprintToken(refreshToken),
		ExpiresAt:  now.Add(p.cfg.RefreshTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Identity: domain.Identity{
			ID:       rec.ID,
			Email:    rec.Email,
			Metadata: rec.Metadata,
		},
	}, nil
}

func (p *Provider) setCurrent(sess *domain.Session) {
	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()
}

// fire notifies listeners outside the provider lock so handlers may
// call back into the provider.
func (p *Provider) fire(event provider.AuthEvent, sess *domain.Session) {
	p.mu.RLock()
	fns := make([]func(provider.AuthEvent, *domain.Session), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(event, sess)
	}
}
