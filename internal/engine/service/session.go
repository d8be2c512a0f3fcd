package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/provider"
	"github.com/palmsestate/palms/pkg/slogx"
)

// DefaultRefreshInterval is how often the manager proactively refreshes
// the session.
const DefaultRefreshInterval = 30 * time.Minute

// SessionSnapshot is the read-only view of session state handed to
// consumers. All fields are replaced together; consumers never see a
// torn update.
type SessionSnapshot struct {
	State           domain.SessionState
	Loading         bool
	User            *domain.EnhancedUser
	Session         *domain.Session
	Profile         *domain.Profile
	Role            domain.Role
	IsAdmin         bool
	TestMode        bool
	IsAuthenticated bool
}

// SignInResult is returned from a successful sign-in.
type SignInResult struct {
	User    *domain.EnhancedUser
	Session *domain.Session
}

// SignUpResult is returned from a registration attempt. When the
// provider requires email confirmation there is no session and the
// manager stays signed out.
type SignUpResult struct {
	User                      *domain.EnhancedUser
	Session                   *domain.Session
	RequiresEmailConfirmation bool
}

// SessionManager owns the sign-in lifecycle: authentication, periodic
// token refresh, role derivation and profile loading. It is the single
// writer of session state; consumers observe it through Snapshot and
// OnChange.
type SessionManager struct {
	provider provider.IdentityProvider
	roles    *RoleResolver
	profiles *ProfileService
	logger   *slog.Logger

	refreshEvery time.Duration

	mu          sync.RWMutex
	state       domain.SessionState
	loading     bool
	session     *domain.Session
	user        *domain.EnhancedUser
	profile     *domain.Profile
	derivingFor string // identity id with a derivation in flight
	epoch       uint64 // bumps on every identity change; stale results are discarded

	listeners    map[int]func(SessionSnapshot)
	nextListener int

	// selfOp suppresses the auth-change listener while the manager is
	// mid provider call; the result is applied directly from the
	// return value instead of re-entering through the event.
	selfOp atomic.Bool

	unsubAuth func()
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func NewSessionManager(p provider.IdentityProvider, roles *RoleResolver, profiles *ProfileService, logger *slog.Logger, refreshEvery time.Duration) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if refreshEvery <= 0 {
		refreshEvery = DefaultRefreshInterval
	}

	return &SessionManager{
		provider:     p,
		roles:        roles,
		profiles:     profiles,
		logger:       logger,
		refreshEvery: refreshEvery,
		state:        domain.StateUnknown,
		loading:      true,
		listeners:    make(map[int]func(SessionSnapshot)),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start performs the initial session check, subscribes to provider
// auth-state changes and launches the refresh loop. It resolves the
// Unknown state before returning.
func (m *SessionManager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.unsubAuth = m.provider.OnAuthStateChange(m.handleAuthChange)

		sess, err := m.provider.GetSession(ctx)
		if err != nil {
			m.logger.Warn("initial session check failed", slog.String("error", err.Error()))
		}

		if sess != nil {
			m.applySession(ctx, sess)
		} else {
			m.clearSession()
		}

		m.started.Store(true)
		go m.refreshLoop()
	})
}

// Close tears the manager down: the auth listener is removed and the
// refresh loop stopped. Session state is left as-is.
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() {
		if m.unsubAuth != nil {
			m.unsubAuth()
		}
		close(m.stopCh)
		if m.started.Load() {
			<-m.doneCh
		}
	})
}

// SignIn authenticates against the identity provider and runs the full
// derivation pipeline. Provider rejections surface unmodified.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	var sess *domain.Session
	err := m.withSelfOp(func() error {
		var err error
		sess, err = m.provider.SignInWithPassword(ctx, email, password)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.applySession(ctx, sess)

	snap := m.Snapshot()
	return &SignInResult{User: snap.User, Session: snap.Session}, nil
}

// SignUp registers a new identity. When the provider requires email
// confirmation the manager stays signed out; otherwise the same
// pipeline as SignIn runs.
func (m *SessionManager) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	var result *provider.SignUpResult
	err := m.withSelfOp(func() error {
		var err error
		result, err = m.provider.SignUp(ctx, email, password, provider.SignUpOptions{Metadata: metadata})
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.RequiresEmailConfirmation || result.Session == nil {
		return &SignUpResult{RequiresEmailConfirmation: true}, nil
	}

	m.applySession(ctx, result.Session)

	snap := m.Snapshot()
	return &SignUpResult{User: snap.User, Session: snap.Session}, nil
}

// ResendConfirmation re-issues the sign-up confirmation message for an
// address that registered but has not confirmed yet.
func (m *SessionManager) ResendConfirmation(ctx context.Context, email string) error {
	return m.provider.Resend(ctx, provider.ResendSignUp, email)
}

// SignOut revokes the session with the provider and clears local state.
// Local state is released unconditionally; a failed remote revoke is
// returned to the caller but does not keep the user signed in here.
func (m *SessionManager) SignOut(ctx context.Context) error {
	remoteErr := m.withSelfOp(func() error {
		return m.provider.SignOut(ctx)
	})
	if remoteErr != nil {
		m.logger.Warn("remote sign-out failed, clearing local state anyway",
			slog.String("error", remoteErr.Error()))
	}

	m.clearSession()
	return remoteErr
}

// RefreshSession refreshes the provider session. An invalid refresh
// token forces sign-out as a side effect and is not returned as an
// error; all other failures are returned for the caller (or the
// interval loop) to retry later.
func (m *SessionManager) RefreshSession(ctx context.Context) error {
	m.mu.RLock()
	signedIn := m.state == domain.StateSignedIn
	m.mu.RUnlock()
	if !signedIn {
		return nil
	}

	var sess *domain.Session
	err := m.withSelfOp(func() error {
		var err error
		sess, err = m.provider.RefreshSession(ctx)
		return err
	})
	if err != nil {
		if isInvalidRefresh(err) {
			m.logger.Warn("refresh token rejected, forcing sign-out")
			m.forceSignOut(ctx)
			return nil
		}
		return err
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()
	m.emit()
	return nil
}

// UpdateProfile persists an explicit profile mutation for the signed-in
// user and refreshes the cached copy.
func (m *SessionManager) UpdateProfile(ctx context.Context, upd domain.ProfileUpdate) (*domain.Profile, error) {
	m.mu.RLock()
	user := m.user
	m.mu.RUnlock()
	if user == nil {
		return nil, provider.ErrInvalidCredentials
	}

	p, err := m.profiles.Update(ctx, user.Identity.ID, upd)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// Only cache if the same user is still signed in.
	if m.user != nil && m.user.Identity.ID == p.ID {
		m.profile = p
	}
	m.mu.Unlock()
	m.emit()
	return p, nil
}

// Snapshot returns the current consumer-facing view.
func (m *SessionManager) Snapshot() SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := SessionSnapshot{
		State:   m.state,
		Loading: m.loading,
		User:    m.user,
		Session: m.session,
		Profile: m.profile,
	}
	if m.user != nil {
		snap.Role = m.user.Role
		snap.IsAdmin = m.user.IsAdmin
		snap.TestMode = m.user.TestMode
		snap.IsAuthenticated = true
	}
	return snap
}

// OnChange registers a listener invoked with a fresh snapshot after
// every state change. The returned function removes the listener.
func (m *SessionManager) OnChange(fn func(SessionSnapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// handleAuthChange reacts to provider-originated transitions (e.g. the
// token invalidated by another consumer of the provider). Events caused
// by the manager's own provider calls are suppressed; their results are
// applied directly at the call site.
func (m *SessionManager) handleAuthChange(event provider.AuthEvent, sess *domain.Session) {
	if m.selfOp.Load() {
		return
	}

	ctx := context.Background()

	if sess == nil {
		m.logger.Info("external auth change: signed out", slog.String("event", string(event)))
		m.clearSession()
		return
	}

	m.mu.RLock()
	currentID := ""
	if m.user != nil {
		currentID = m.user.Identity.ID
	}
	sameIdentity := m.state == domain.StateSignedIn && currentID == sess.Identity.ID
	m.mu.RUnlock()

	if sameIdentity {
		// Same principal, fresher tokens. No re-derivation.
		m.mu.Lock()
		m.session = sess
		m.mu.Unlock()
		m.emit()
		return
	}

	m.logger.Info("external auth change: identity transition",
		slog.String("event", string(event)), slog.String("user_id", sess.Identity.ID))
	m.applySession(ctx, sess)
}

// applySession runs the derivation pipeline for a session: role
// resolution followed by profile load, then one atomic state
// replacement. A duplicate call for an identity already being derived
// is a no-op, and results landing after a newer identity change are
// discarded.
func (m *SessionManager) applySession(ctx context.Context, sess *domain.Session) {
	m.mu.Lock()
	if m.derivingFor == sess.Identity.ID {
		m.mu.Unlock()
		return
	}
	m.derivingFor = sess.Identity.ID
	m.epoch++
	epoch := m.epoch
	m.session = sess
	m.mu.Unlock()

	// Downstream log records carry the user id for the whole pipeline.
	ctx = slogx.WithUserID(slogx.WithContext(ctx, m.logger), sess.Identity.ID)

	info := m.roles.Resolve(ctx, sess.Identity)

	prof, err := m.profiles.Load(ctx, sess.Identity)
	if err != nil {
		// Best-effort enrichment: sign-in completes without a profile.
		slogx.FromContext(ctx).Warn("profile load failed", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	if m.epoch != epoch {
		// A newer identity change won; drop this result.
		m.mu.Unlock()
		return
	}
	m.user = &domain.EnhancedUser{
		Identity: sess.Identity,
		Role:     info.Role,
		IsAdmin:  info.IsAdmin,
		TestMode: info.TestMode,
	}
	m.profile = prof
	m.state = domain.StateSignedIn
	m.loading = false
	m.derivingFor = ""
	m.mu.Unlock()

	m.emit()
}

// clearSession drops all local session state and moves to SignedOut.
// Bumping the epoch invalidates any in-flight derivation.
func (m *SessionManager) clearSession() {
	m.mu.Lock()
	m.epoch++
	m.session = nil
	m.user = nil
	m.profile = nil
	m.state = domain.StateSignedOut
	m.loading = false
	m.derivingFor = ""
	m.mu.Unlock()

	m.emit()
}

// forceSignOut is the invalid-refresh-token path: remote revoke is best
// effort, local state always goes.
func (m *SessionManager) forceSignOut(ctx context.Context) {
	err := m.withSelfOp(func() error {
		return m.provider.SignOut(ctx)
	})
	if err != nil {
		m.logger.Warn("remote sign-out during forced sign-out failed",
			slog.String("error", err.Error()))
	}
	m.clearSession()
}

func (m *SessionManager) refreshLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.RefreshSession(context.Background()); err != nil {
				// Transient; retried on the next tick.
				m.logger.Warn("scheduled session refresh failed",
					slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

func (m *SessionManager) withSelfOp(fn func() error) error {
	m.selfOp.Store(true)
	defer m.selfOp.Store(false)
	return fn()
}

func (m *SessionManager) emit() {
	m.mu.RLock()
	fns := make([]func(SessionSnapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	snap := m.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func isInvalidRefresh(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "invalid refresh token")
}
