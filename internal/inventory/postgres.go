package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps counters in the seat_inventory table. The row lock taken by
// a single conditional UPDATE serialises writers on one key; lock_timeout bounds
// how long a writer waits for it.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

func (s *PostgresStore) Ensure(ctx context.Context, key domain.InventoryKey, totalSeats int) error {
	if totalSeats < 0 {
		return domain.InvalidInput("inventory.Ensure", "totalSeats", "must not be negative")
	}
	_, err := s.db.Exec(ctx, `INSERT INTO seat_inventory (train_id, class_id, journey_date, total_seats, held_seats)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (train_id, class_id, journey_date) DO NOTHING`,
		key.TrainID, key.ClassID, key.JourneyDate, totalSeats)
	if err != nil {
		return classify("inventory.Ensure", err)
	}
	return nil
}

func (s *PostgresStore) TryReserve(ctx context.Context, key domain.InventoryKey, count int) (Reservation, error) {
	const op = "inventory.TryReserve"
	if err := validateCount(op, count); err != nil {
		return Reservation{}, err
	}

	var held int
	err := s.withLockTimeout(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `UPDATE seat_inventory
			SET held_seats = held_seats + $4, version = version + 1, updated_at = now()
			WHERE train_id=$1 AND class_id=$2 AND journey_date=$3 AND total_seats - held_seats >= $4
			RETURNING held_seats`, key.TrainID, key.ClassID, key.JourneyDate, count).Scan(&held)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		if _, _, lookupErr := s.CapacityOf(ctx, key); lookupErr != nil {
			return Reservation{}, lookupErr
		}
		return Reservation{}, domain.E(domain.KindCapacityExceeded, op, "not enough seats available")
	}
	if err != nil {
		return Reservation{}, classify(op, err)
	}
	return Reservation{Key: key, Count: count, Token: uuid.NewString()}, nil
}

func (s *PostgresStore) Release(ctx context.Context, key domain.InventoryKey, count int) error {
	const op = "inventory.Release"
	if err := validateCount(op, count); err != nil {
		return err
	}

	var affected int64
	err := s.withLockTimeout(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE seat_inventory
			SET held_seats = GREATEST(held_seats - $4, 0), version = version + 1, updated_at = now()
			WHERE train_id=$1 AND class_id=$2 AND journey_date=$3`, key.TrainID, key.ClassID, key.JourneyDate, count)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return classify(op, err)
	}
	if affected == 0 {
		return domain.NotFound(op, "inventory")
	}
	return nil
}

// ReleaseOnce records token in inventory_releases and releases in the same
// transaction; a token that is already recorded leaves the counter alone.
func (s *PostgresStore) ReleaseOnce(ctx context.Context, key domain.InventoryKey, count int, token string) (bool, error) {
	const op = "inventory.ReleaseOnce"
	if err := validateCount(op, count); err != nil {
		return false, err
	}
	if err := validateToken(op, token); err != nil {
		return false, err
	}

	var applied bool
	err := s.withLockTimeout(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO inventory_releases (token, train_id, class_id, journey_date, seats)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (token) DO NOTHING`, token, key.TrainID, key.ClassID, key.JourneyDate, count)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		tag, err = tx.Exec(ctx, `UPDATE seat_inventory
			SET held_seats = GREATEST(held_seats - $4, 0), version = version + 1, updated_at = now()
			WHERE train_id=$1 AND class_id=$2 AND journey_date=$3`, key.TrainID, key.ClassID, key.JourneyDate, count)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.NotFound(op, "inventory")
		}
		applied = true
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	if err != nil {
		return false, classify(op, err)
	}
	return applied, nil
}

func (s *PostgresStore) CapacityOf(ctx context.Context, key domain.InventoryKey) (int, int, error) {
	var total, held int
	err := s.db.QueryRow(ctx, `SELECT total_seats, held_seats FROM seat_inventory
		WHERE train_id=$1 AND class_id=$2 AND journey_date=$3`, key.TrainID, key.ClassID, key.JourneyDate).Scan(&total, &held)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, domain.NotFound("inventory.CapacityOf", "inventory")
	}
	if err != nil {
		return 0, 0, classify("inventory.CapacityOf", err)
	}
	return total, held, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, key domain.InventoryKey) (domain.SeatClassInventory, error) {
	const op = "inventory.Snapshot"
	inv := domain.SeatClassInventory{Key: key}
	err := s.db.QueryRow(ctx, `SELECT total_seats, held_seats, version, updated_at FROM seat_inventory
		WHERE train_id=$1 AND class_id=$2 AND journey_date=$3`, key.TrainID, key.ClassID, key.JourneyDate).
		Scan(&inv.TotalSeats, &inv.HeldSeats, &inv.Version, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SeatClassInventory{}, domain.NotFound(op, "inventory")
	}
	if err != nil {
		return domain.SeatClassInventory{}, classify(op, err)
	}
	return inv, nil
}

func (s *PostgresStore) Reconcile(ctx context.Context, key domain.InventoryKey, expectedVersion int64, held int) error {
	const op = "inventory.Reconcile"
	var affected int64
	err := s.withLockTimeout(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE seat_inventory
			SET held_seats = LEAST(GREATEST($4, 0), total_seats), version = version + 1, updated_at = now()
			WHERE train_id=$1 AND class_id=$2 AND journey_date=$3 AND version=$5`,
			key.TrainID, key.ClassID, key.JourneyDate, held, expectedVersion)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return classify(op, err)
	}
	if affected == 0 {
		if _, err := s.Snapshot(ctx, key); err != nil {
			return err
		}
		return ErrStaleInventory
	}
	return nil
}

func (s *PostgresStore) withLockTimeout(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, lockTimeoutStatement(s.lockTimeout)); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func lockTimeoutStatement(d time.Duration) string {
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())
}

// Postgres error codes that mean "try again later".
var transientCodes = map[string]bool{
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled (statement/lock timeout)
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
}

func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && transientCodes[pgErr.Code]:
		return domain.Wrap(domain.KindTransient, op, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.Wrap(domain.KindTransient, op, err)
	case pgconn.Timeout(err), pgconn.SafeToRetry(err):
		return domain.Wrap(domain.KindTransient, op, err)
	}
	return domain.Wrap(domain.KindInternal, op, err)
}

var _ Store = (*PostgresStore)(nil)
