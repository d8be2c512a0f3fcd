package local

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/provider"
	"github.com/palmsestate/palms/internal/engine/store/drivers/sqlite"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, cfg Config) *Provider {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	if cfg.SigningSecret == nil {
		cfg.SigningSecret = []byte("test-signing-secret")
	}
	return New(st, nil, cfg)
}

func TestSignUpAndSignIn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("immediate session without confirmation", func(t *testing.T) {
		p := newTestProvider(t, Config{})

		res, err := p.SignUp(ctx, "kim@example.com", "hunter22", provider.SignUpOptions{
			Metadata: map[string]any{"full_name": "Kim Reed"},
		})
		require.NoError(t, err)
		require.False(t, res.RequiresEmailConfirmation)
		require.NotNil(t, res.Session)
		require.Equal(t, "kim@example.com", res.Session.Identity.Email)
		require.Equal(t, "Kim Reed", res.Session.Identity.Metadata["full_name"])

		sess, err := p.GetSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, sess)
		require.Equal(t, res.Session.AccessToken, sess.AccessToken)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		p := newTestProvider(t, Config{})

		_, err := p.SignUp(ctx, "dup@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		_, err = p.SignUp(ctx, "dup@example.com", "other-pass", provider.SignUpOptions{})
		require.ErrorIs(t, err, provider.ErrEmailTaken)
	})

	t.Run("sign in verifies the password", func(t *testing.T) {
		p := newTestProvider(t, Config{})
		_, err := p.SignUp(ctx, "lee@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)
		require.NoError(t, p.SignOut(ctx))

		_, err = p.SignInWithPassword(ctx, "lee@example.com", "wrong")
		require.ErrorIs(t, err, provider.ErrInvalidCredentials)

		_, err = p.SignInWithPassword(ctx, "nobody@example.com", "hunter22")
		require.ErrorIs(t, err, provider.ErrInvalidCredentials)

		sess, err := p.SignInWithPassword(ctx, "lee@example.com", "hunter22")
		require.NoError(t, err)
		require.Equal(t, "lee@example.com", sess.Identity.Email)
		require.NotEmpty(t, sess.AccessToken)
		require.NotEmpty(t, sess.RefreshToken)
	})
}

func TestEmailConfirmation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sign up stays signed out until confirmed", func(t *testing.T) {
		p := newTestProvider(t, Config{RequireEmailConfirmation: true})

		res, err := p.SignUp(ctx, "mia@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)
		require.True(t, res.RequiresEmailConfirmation)
		require.Nil(t, res.Session)

		sess, err := p.GetSession(ctx)
		require.NoError(t, err)
		require.Nil(t, sess)

		_, err = p.SignInWithPassword(ctx, "mia@example.com", "hunter22")
		require.ErrorIs(t, err, provider.ErrEmailNotConfirmed)
	})

	t.Run("valid code opens a session", func(t *testing.T) {
		p := newTestProvider(t, Config{RequireEmailConfirmation: true})

		_, err := p.SignUp(ctx, "ana@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		rec, err := p.store.Identities().GetIdentityByEmail(ctx, "ana@example.com")
		require.NoError(t, err)
		code, err := totp.GenerateCodeCustom(rec.ConfirmationSecret, time.Now().UTC(), confirmationOpts)
		require.NoError(t, err)

		sess, err := p.ConfirmEmail(ctx, "ana@example.com", code)
		require.NoError(t, err)
		require.Equal(t, "ana@example.com", sess.Identity.Email)

		rec, err = p.store.Identities().GetIdentityByEmail(ctx, "ana@example.com")
		require.NoError(t, err)
		require.True(t, rec.Confirmed())

		// Password sign-in now works too.
		_, err = p.SignInWithPassword(ctx, "ana@example.com", "hunter22")
		require.NoError(t, err)
	})

	t.Run("bad code is rejected", func(t *testing.T) {
		p := newTestProvider(t, Config{RequireEmailConfirmation: true})

		_, err := p.SignUp(ctx, "zed@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		_, err = p.ConfirmEmail(ctx, "zed@example.com", "000000")
		require.ErrorIs(t, err, provider.ErrInvalidCode)

		_, err = p.ConfirmEmail(ctx, "unknown@example.com", "123456")
		require.ErrorIs(t, err, provider.ErrInvalidCode)
	})

	t.Run("resend never leaks registration state", func(t *testing.T) {
		p := newTestProvider(t, Config{RequireEmailConfirmation: true})

		_, err := p.SignUp(ctx, "ren@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		require.NoError(t, p.Resend(ctx, provider.ResendSignUp, "ren@example.com"))
		require.NoError(t, p.Resend(ctx, provider.ResendSignUp, "ghost@example.com"))
		require.NoError(t, p.Resend(ctx, "other-kind", "ren@example.com"))
	})
}

func TestRefreshRotation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("refresh rotates tokens", func(t *testing.T) {
		p := newTestProvider(t, Config{})
		res, err := p.SignUp(ctx, "rot@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)
		old := res.Session.RefreshToken

		sess, err := p.RefreshSession(ctx)
		require.NoError(t, err)
		require.NotEqual(t, old, sess.RefreshToken)
		require.Equal(t, res.Session.Identity.ID, sess.Identity.ID)
	})

	t.Run("rotated-out token cannot be replayed", func(t *testing.T) {
		p := newTestProvider(t, Config{})
		res, err := p.SignUp(ctx, "replay@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		_, err = p.RefreshSession(ctx)
		require.NoError(t, err)

		// Force the old token back as current and refresh again.
		stale := *res.Session
		p.setCurrent(&stale)
		_, err = p.RefreshSession(ctx)
		require.ErrorIs(t, err, provider.ErrInvalidRefresh)
	})

	t.Run("refresh while signed out fails", func(t *testing.T) {
		p := newTestProvider(t, Config{})
		_, err := p.RefreshSession(ctx)
		require.ErrorIs(t, err, provider.ErrInvalidRefresh)
	})

	t.Run("expired token fails", func(t *testing.T) {
		p := newTestProvider(t, Config{RefreshTTL: time.Millisecond})
		_, err := p.SignUp(ctx, "exp@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)
		_, err = p.RefreshSession(ctx)
		require.ErrorIs(t, err, provider.ErrInvalidRefresh)
	})

	t.Run("sign out revokes the refresh token", func(t *testing.T) {
		p := newTestProvider(t, Config{})
		res, err := p.SignUp(ctx, "out@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)
		require.NoError(t, p.SignOut(ctx))

		sess, err := p.GetSession(ctx)
		require.NoError(t, err)
		require.Nil(t, sess)

		stale := *res.Session
		p.setCurrent(&stale)
		_, err = p.RefreshSession(ctx)
		require.ErrorIs(t, err, provider.ErrInvalidRefresh)
	})
}

func TestCredentialAttemptThrottle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("password attempts are capped per email", func(t *testing.T) {
		p := newTestProvider(t, Config{AttemptsPerWindow: 3, AttemptWindow: time.Hour})
		_, err := p.SignUp(ctx, "careful@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)
		require.NoError(t, p.SignOut(ctx))

		for i := 0; i < 3; i++ {
			_, err := p.SignInWithPassword(ctx, "careful@example.com", "wrong")
			require.ErrorIs(t, err, provider.ErrInvalidCredentials)
		}

		// Budget exhausted: even the correct password is rejected now.
		_, err = p.SignInWithPassword(ctx, "careful@example.com", "hunter22")
		require.ErrorIs(t, err, provider.ErrTooManyAttempts)

		// Other addresses keep their own budget.
		_, err = p.SignInWithPassword(ctx, "other@example.com", "whatever")
		require.ErrorIs(t, err, provider.ErrInvalidCredentials)
	})

	t.Run("confirmation codes cannot be brute forced", func(t *testing.T) {
		p := newTestProvider(t, Config{
			RequireEmailConfirmation: true,
			AttemptsPerWindow:        2,
			AttemptWindow:            time.Hour,
		})
		_, err := p.SignUp(ctx, "guess@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err := p.ConfirmEmail(ctx, "guess@example.com", "000000")
			require.ErrorIs(t, err, provider.ErrInvalidCode)
		}

		_, err = p.ConfirmEmail(ctx, "guess@example.com", "000000")
		require.ErrorIs(t, err, provider.ErrTooManyAttempts)
	})
}

func TestAccessTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("minted token parses back", func(t *testing.T) {
		p := newTestProvider(t, Config{Issuer: "palms-test"})
		res, err := p.SignUp(ctx, "jwt@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		claims, err := p.ParseAccessToken(res.Session.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "jwt@example.com", claims.Email)
		require.Equal(t, res.Session.Identity.ID, claims.Subject)
		require.Equal(t, "palms-test", claims.Issuer)
	})

	t.Run("foreign signature is rejected", func(t *testing.T) {
		a := newTestProvider(t, Config{SigningSecret: []byte("secret-a")})
		b := newTestProvider(t, Config{SigningSecret: []byte("secret-b")})

		res, err := a.SignUp(ctx, "x@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		_, err = b.ParseAccessToken(res.Session.AccessToken)
		require.Error(t, err)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		p := newTestProvider(t, Config{AccessTTL: time.Millisecond})
		res, err := p.SignUp(ctx, "old@example.com", "hunter22", provider.SignUpOptions{})
		require.NoError(t, err)

		time.Sleep(time.Second + 20*time.Millisecond)
		_, err = p.ParseAccessToken(res.Session.AccessToken)
		require.Error(t, err)
	})
}

func TestAuthStateListeners(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	p := newTestProvider(t, Config{})

	var events []provider.AuthEvent
	unsub := p.OnAuthStateChange(func(ev provider.AuthEvent, _ *domain.Session) {
		events = append(events, ev)
	})

	_, err := p.SignUp(ctx, "ev@example.com", "hunter22", provider.SignUpOptions{})
	require.NoError(t, err)
	_, err = p.RefreshSession(ctx)
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx))

	require.Equal(t, []provider.AuthEvent{
		provider.EventSignedIn,
		provider.EventTokenRefreshed,
		provider.EventSignedOut,
	}, events)

	unsub()
	_, err = p.SignInWithPassword(ctx, "ev@example.com", "hunter22")
	require.NoError(t, err)
	require.Len(t, events, 3)
}
