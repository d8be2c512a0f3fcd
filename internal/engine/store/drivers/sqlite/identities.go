package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/store"
)

type identitiesRepo struct {
	db dbtx
}

func (r *identitiesRepo) CreateIdentity(ctx context.Context, rec domain.IdentityRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, email, password_hash, metadata, confirmation_secret, confirmed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Email, rec.PasswordHash, marshalJSON(rec.Metadata),
		rec.ConfirmationSecret, mapOptionalTime(rec.ConfirmedAt), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *identitiesRepo) GetIdentityByID(ctx context.Context, id string) (domain.IdentityRecord, error) {
	return r.scanIdentity(r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, metadata, confirmation_secret, confirmed_at, created_at, updated_at
		FROM identities WHERE id = ?`, id))
}

func (r *identitiesRepo) GetIdentityByEmail(ctx context.Context, email string) (domain.IdentityRecord, error) {
	return r.scanIdentity(r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, metadata, confirmation_secret, confirmed_at, created_at, updated_at
		FROM identities WHERE email = ?`, email))
}

func (r *identitiesRepo) ConfirmIdentity(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE identities SET confirmed_at = ?, updated_at = ? WHERE id = ?`,
		at, at, id)
	return err
}

func (r *identitiesRepo) UpdateConfirmationSecret(ctx context.Context, id string, secret string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE identities SET confirmation_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), id)
	return err
}

func (r *identitiesRepo) scanIdentity(row *sql.Row) (domain.IdentityRecord, error) {
	var rec domain.IdentityRecord
	var metadata string
	var confirmedAt sql.NullTime

	err := row.Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &metadata,
		&rec.ConfirmationSecret, &confirmedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.IdentityRecord{}, mapNotFound(err)
	}

	rec.Metadata = unmarshalJSON(metadata)
	rec.ConfirmedAt = mapNullTime(confirmedAt)
	return rec, nil
}
