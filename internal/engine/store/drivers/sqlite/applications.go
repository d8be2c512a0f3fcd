package sqlite

import (
	"context"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
)

type applicationsRepo struct {
	db dbtx
}

func (r *applicationsRepo) CreateApplication(ctx context.Context, a domain.Application) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO applications (id, user_id, property_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.PropertyID, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *applicationsRepo) UpdateApplicationStatus(ctx context.Context, id string, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE applications SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	return err
}

func (r *applicationsRepo) CountApplicationsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM applications WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func (r *applicationsRepo) CountApplicationsByUserAndStatus(ctx context.Context, userID string, status string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM applications WHERE user_id = ? AND status = ?`, userID, status).Scan(&n)
	return n, err
}

func (r *applicationsRepo) ListRecentApplicationsByUser(ctx context.Context, userID string, limit int) ([]domain.Application, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, property_id, status, created_at, updated_at
		FROM applications WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		var a domain.Application
		if err := rows.Scan(&a.ID, &a.UserID, &a.PropertyID, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}
