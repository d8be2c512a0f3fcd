package sqlite

import (
	"context"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, identity_id, token_hash, revoked, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.IdentityID, t.TokenHash, t.Revoked, t.ExpiresAt, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.QueryRowContext(ctx, `
		SELECT id, identity_id, token_hash, revoked, expires_at, created_at, updated_at
		FROM refresh_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.ID, &t.IdentityID, &t.TokenHash, &t.Revoked, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE token_hash = ?`,
		time.Now().UTC(), hash)
	return err
}

func (r *refreshTokensRepo) RevokeAllIdentityRefreshTokens(ctx context.Context, identityID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE identity_id = ? AND revoked = 0`,
		time.Now().UTC(), identityID)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < ?`, time.Now().UTC())
	return err
}
