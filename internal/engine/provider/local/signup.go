package local

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/provider"
	"github.com/palmsestate/palms/internal/engine/store"
	"github.com/palmsestate/palms/pkg/cryptox"
	"github.com/palmsestate/palms/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Confirmation codes are TOTP passcodes over a per-identity secret with
// a long period, so Resend within the window re-issues the same code.
var confirmationOpts = totp.ValidateOpts{
	Period:    900, // 15 minutes
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// SignUp registers a new identity. With confirmation enabled the result
// carries no session; the caller stays signed out until ConfirmEmail.
func (p *Provider) SignUp(ctx context.Context, email, password string, opts provider.SignUpOptions) (*provider.SignUpResult, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := domain.IdentityRecord{
		ID:           idx.New(),
		Email:        email,
		PasswordHash: hash,
		Metadata:     opts.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if p.cfg.RequireEmailConfirmation {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      p.cfg.Issuer,
			AccountName: email,
		})
		if err != nil {
			return nil, err
		}
		rec.ConfirmationSecret = key.Secret()
	} else {
		rec.ConfirmedAt = &now
	}

	if err := p.store.Identities().CreateIdentity(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, provider.ErrEmailTaken
		}
		return nil, err
	}

	identity := domain.Identity{ID: rec.ID, Email: rec.Email, Metadata: rec.Metadata}

	if p.cfg.RequireEmailConfirmation {
		p.sendConfirmationCode(rec)
		return &provider.SignUpResult{
			Identity:                  identity,
			RequiresEmailConfirmation: true,
		}, nil
	}

	sess, err := p.issueSession(ctx, rec)
	if err != nil {
		return nil, err
	}
	p.setCurrent(sess)
	p.fire(provider.EventSignedIn, sess)

	return &provider.SignUpResult{Identity: identity, Session: sess}, nil
}

// Resend re-issues the sign-up confirmation code for an unconfirmed
// identity. Unknown emails and already-confirmed identities are treated
// as a no-op to avoid leaking registration state.
func (p *Provider) Resend(ctx context.Context, kind provider.ResendKind, email string) error {
	if kind != provider.ResendSignUp {
		return nil
	}

	rec, err := p.store.Identities().GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.Confirmed() || rec.ConfirmationSecret == "" {
		return nil
	}

	p.sendConfirmationCode(rec)
	return nil
}

// ConfirmEmail redeems a confirmation code, activates the identity and
// opens a session for it.
func (p *Provider) ConfirmEmail(ctx context.Context, email, code string) (*domain.Session, error) {
	if !p.attempts.allow(strings.ToLower(email)) {
		return nil, provider.ErrTooManyAttempts
	}

	rec, err := p.store.Identities().GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, provider.ErrInvalidCode
		}
		return nil, err
	}

	if !rec.Confirmed() {
		ok, err := totp.ValidateCustom(code, rec.ConfirmationSecret, time.Now().UTC(), confirmationOpts)
		if err != nil || !ok {
			return nil, provider.ErrInvalidCode
		}

		if err := p.store.Identities().ConfirmIdentity(ctx, rec.ID, time.Now().UTC()); err != nil {
			return nil, err
		}
	}

	sess, err := p.issueSession(ctx, rec)
	if err != nil {
		return nil, err
	}
	p.setCurrent(sess)
	p.fire(provider.EventSignedIn, sess)
	return sess, nil
}

// sendConfirmationCode stands in for outbound email delivery: the code
// is written to the log where the operator (or a test) can read it.
func (p *Provider) sendConfirmationCode(rec domain.IdentityRecord) {
	code, err := totp.GenerateCodeCustom(rec.ConfirmationSecret, time.Now().UTC(), confirmationOpts)
	if err != nil {
		p.logger.Error("failed to generate confirmation code",
			slog.String("email", rec.Email), slog.String("error", err.Error()))
		return
	}
	p.logger.Info("confirmation code issued",
		slog.String("email", rec.Email), slog.String("code", code))
}
