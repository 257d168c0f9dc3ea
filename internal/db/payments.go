package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jewelhouse/jewelhouse/internal/models"
)

var ErrDuplicatePayment = errors.New("payment transaction already recorded")

type PaymentStore struct {
	pool *pgxpool.Pool
}

func NewPaymentStore(pool *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

// Record stores the payment. A successful payment also marks its order paid
// in the same transaction, so a payment row never exists without the order
// update it implies. marked is false when the order had already moved past
// paid and was left alone.
func (s *PaymentStore) Record(ctx context.Context, payment *Payment) (marked bool, err error) {
	if payment == nil {
		return false, fmt.Errorf("payment is required")
	}
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint
	}()

	transactionID := pgtype.Text{String: payment.TransactionID, Valid: payment.TransactionID != ""}

	var createdAt pgtype.Timestamptz
	err = tx.QueryRow(ctx, `
		INSERT INTO payments (id, order_id, amount, method, status, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, payment.ID, payment.OrderID, payment.Amount, payment.Method, string(payment.Status), transactionID).Scan(&createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return false, ErrDuplicatePayment
			case "23503":
				return false, ErrOrderNotFound
			}
		}
		return false, err
	}

	if payment.Status == models.PaymentSuccess {
		marked, err = markOrderPaid(ctx, tx, payment.OrderID)
		if err != nil {
			return false, fmt.Errorf("failed to mark order paid: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	payment.CreatedAt = createdAt.Time
	return marked, nil
}

// markOrderPaid moves a pending order to paid. Repeating it on a paid order
// keeps the first paid_at. Orders past paid are not touched.
func markOrderPaid(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error) {
	cmdTag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, is_paid = TRUE, paid_at = COALESCE(paid_at, NOW()), updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'paid')
	`, string(StatusPaid), orderID)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}
