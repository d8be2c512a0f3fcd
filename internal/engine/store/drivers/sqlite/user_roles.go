package sqlite

import (
	"context"

	"github.com/palmsestate/palms/internal/engine/domain"
)

type userRolesRepo struct {
	db dbtx
}

func (r *userRolesRepo) GetUserRole(ctx context.Context, userID string) (domain.UserRole, error) {
	var ur domain.UserRole
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, role, test_mode, created_at, updated_at
		FROM user_roles WHERE user_id = ?`, userID,
	).Scan(&ur.UserID, &role, &ur.TestMode, &ur.CreatedAt, &ur.UpdatedAt)
	if err != nil {
		return domain.UserRole{}, mapNotFound(err)
	}
	ur.Role = domain.Role(role)
	return ur, nil
}

func (r *userRolesRepo) UpsertUserRole(ctx context.Context, role domain.UserRole) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role, test_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			role = excluded.role,
			test_mode = excluded.test_mode,
			updated_at = excluded.updated_at`,
		role.UserID, string(role.Role), role.TestMode, role.CreatedAt, role.UpdatedAt,
	)
	return err
}

func (r *userRolesRepo) DeleteUserRole(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, userID)
	return err
}
