package sqlite

import (
	"context"
	"time"

	"github.com/palmsestate/palms/internal/engine/domain"
)

type paymentRequestsRepo struct {
	db dbtx
}

func (r *paymentRequestsRepo) CreatePaymentRequest(ctx context.Context, p domain.PaymentRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_requests (id, user_id, amount, due_at, paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Amount, p.DueAt, p.Paid, p.CreatedAt,
	)
	return err
}

func (r *paymentRequestsRepo) MarkPaymentPaid(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_requests SET paid = 1 WHERE id = ?`, id)
	return err
}

func (r *paymentRequestsRepo) CountUpcomingPaymentsByUser(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM payment_requests WHERE user_id = ? AND paid = 0 AND due_at > ?`,
		userID, now).Scan(&n)
	return n, err
}
