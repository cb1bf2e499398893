// Package inventory owns the per-(train, class, date) seat counters. Nothing else
// in the service mutates held seats; callers go through TryReserve and Release.
package inventory

import (
	"context"

	"github.com/Domenick1991/railbooking/internal/domain"
)

// Reservation is the receipt of a successful TryReserve.
type Reservation struct {
	Key   domain.InventoryKey
	Count int
	Token string
}

type Store interface {
	// Ensure creates the counter for key with totalSeats capacity if it does not exist yet.
	Ensure(ctx context.Context, key domain.InventoryKey, totalSeats int) error
	// TryReserve atomically checks free capacity and holds count seats.
	TryReserve(ctx context.Context, key domain.InventoryKey, count int) (Reservation, error)
	// Release returns count seats to the pool, never dropping below zero held.
	Release(ctx context.Context, key domain.InventoryKey, count int) error
	// ReleaseOnce releases count seats unless token was already applied to key.
	// The token is recorded in the same atomic step, so a redelivered request is a no-op.
	ReleaseOnce(ctx context.Context, key domain.InventoryKey, count int, token string) (applied bool, err error)
	// CapacityOf is a point-in-time read and must not drive a later mutation.
	CapacityOf(ctx context.Context, key domain.InventoryKey) (total, held int, err error)
	// Snapshot is CapacityOf plus the counter version.
	Snapshot(ctx context.Context, key domain.InventoryKey) (domain.SeatClassInventory, error)
	// Reconcile overwrites held only if the counter is still at expectedVersion,
	// otherwise it returns ErrStaleInventory and changes nothing.
	Reconcile(ctx context.Context, key domain.InventoryKey, expectedVersion int64, held int) error
}

// ErrStaleInventory means the counter changed after the caller read it.
var ErrStaleInventory = domain.E(domain.KindConflict, "inventory.Reconcile", "inventory changed since it was read")

func validateToken(op, token string) error {
	if token == "" {
		return domain.InvalidInput(op, "token", "must not be empty")
	}
	return nil
}

func validateCount(op string, count int) error {
	if count <= 0 {
		return domain.InvalidInput(op, "count", "must be positive")
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
