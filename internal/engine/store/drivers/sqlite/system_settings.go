package sqlite

import (
	"context"

	"github.com/palmsestate/palms/internal/engine/domain"
)

type systemSettingsRepo struct {
	db dbtx
}

func (r *systemSettingsRepo) GetSetting(ctx context.Context, key string) (domain.SystemSetting, error) {
	var s domain.SystemSetting
	var value string
	err := r.db.QueryRowContext(ctx, `
		SELECT key, value, updated_at FROM system_settings WHERE key = ?`, key,
	).Scan(&s.Key, &value, &s.UpdatedAt)
	if err != nil {
		return domain.SystemSetting{}, mapNotFound(err)
	}
	s.Value = unmarshalJSON(value)
	return s, nil
}

func (r *systemSettingsRepo) UpsertSetting(ctx context.Context, setting domain.SystemSetting) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		setting.Key, marshalJSON(setting.Value), setting.UpdatedAt,
	)
	return err
}
