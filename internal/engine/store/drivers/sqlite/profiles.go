package sqlite

import (
	"context"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
)

type profilesRepo struct {
	db dbtx
}

func (r *profilesRepo) GetProfileByID(ctx context.Context, id string) (domain.Profile, error) {
	var p domain.Profile
	var prefs string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, phone, preferences, created_at, updated_at
		FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.FullName, &p.Phone, &prefs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	p.Preferences = unmarshalJSON(prefs)
	return p, nil
}

func (r *profilesRepo) InsertProfileIfAbsent(ctx context.Context, p domain.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, phone, preferences, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.FullName, p.Phone, marshalJSON(p.Preferences), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *profilesRepo) UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) error {
	now := time.Now().UTC()

	if upd.FullName != nil {
		if _, err := r.db.ExecContext(ctx, `
			UPDATE profiles SET full_name = ?, updated_at = ? WHERE id = ?`,
			*upd.FullName, now, id); err != nil {
			return err
		}
	}
	if upd.Phone != nil {
		if _, err := r.db.ExecContext(ctx, `
			UPDATE profiles SET phone = ?, updated_at = ? WHERE id = ?`,
			*upd.Phone, now, id); err != nil {
			return err
		}
	}
	if upd.Preferences != nil {
		if _, err := r.db.ExecContext(ctx, `
			UPDATE profiles SET preferences = ?, updated_at = ? WHERE id = ?`,
			marshalJSON(upd.Preferences), now, id); err != nil {
			return err
		}
	}
	return nil
}
