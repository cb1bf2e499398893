package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PGPaymentRepository {
	return &PGPaymentRepository{db: db}
}

// Record stores one payment per booking; a repeated call with the same booking is a no-op.
func (r *PGPaymentRepository) Record(ctx context.Context, bookingID, amountCents int64, method string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO payments (booking_id, amount_cents, method, recorded_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (booking_id) DO NOTHING`, bookingID, amountCents, method)
	if err != nil {
		return fmt.Errorf("record payment for booking %d: %w", bookingID, err)
	}
	return nil
}
