package sqlite

import (
	"context"
	"strings"

	"github.com/palmsestate/palms/internal/engine/domain"
	"github.com/palmsestate/palms/internal/engine/store"
)

type savedPropertiesRepo struct {
	db dbtx
}

func (r *savedPropertiesRepo) SaveProperty(ctx context.Context, sp domain.SavedProperty) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO saved_properties (id, user_id, property_id, created_at)
		VALUES (?, ?, ?, ?)`,
		sp.ID, sp.UserID, sp.PropertyID, sp.CreatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *savedPropertiesRepo) RemoveSavedProperty(ctx context.Context, userID string, propertyID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM saved_properties WHERE user_id = ? AND property_id = ?`,
		userID, propertyID)
	return err
}

func (r *savedPropertiesRepo) CountSavedPropertiesByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM saved_properties WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
