// Package ledger stores booking records and their passenger manifests.
package ledger

import (
	"context"

	"github.com/Domenick1991/railbooking/internal/domain"
)

var (
	// ErrPNRTaken is returned by Insert when the reference already exists.
	ErrPNRTaken = domain.E(domain.KindConflict, "ledger.Insert", "pnr already exists")
	// ErrStaleBooking is returned by Update when the record changed since it was read.
	ErrStaleBooking = domain.E(domain.KindInvalidState, "ledger.Update", "booking was modified concurrently")
)

type Ledger interface {
	// Insert stores b and fills ID, Version and timestamps. Nothing is written on error.
	Insert(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
	// Update replaces the stored record if its version still equals b.Version.
	Update(ctx context.Context, b *domain.Booking) error
	// ActiveSeatCounts sums passengers of confirmed bookings for every referenced key.
	ActiveSeatCounts(ctx context.Context) ([]domain.KeyCount, error)
}
