package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
)

type MemoryLedger struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*domain.Booking
	byPNR  map[string]int64
	byUser map[int64][]int64
	now    func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byID:   make(map[int64]*domain.Booking),
		byPNR:  make(map[string]int64),
		byUser: make(map[int64][]int64),
		now:    time.Now,
	}
}

func (l *MemoryLedger) Insert(_ context.Context, b *domain.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byPNR[b.PNR]; ok {
		return ErrPNRTaken
	}

	l.nextID++
	now := l.now().UTC()
	b.ID = l.nextID
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now

	l.byID[b.ID] = b.Clone()
	l.byPNR[b.PNR] = b.ID
	l.byUser[b.UserID] = append(l.byUser[b.UserID], b.ID)
	return nil
}

func (l *MemoryLedger) GetByID(_ context.Context, id int64) (*domain.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.byID[id]
	if !ok {
		return nil, domain.NotFound("ledger.GetByID", "booking")
	}
	return b.Clone(), nil
}

func (l *MemoryLedger) GetByPNR(_ context.Context, pnr string) (*domain.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, ok := l.byPNR[pnr]
	if !ok {
		return nil, domain.NotFound("ledger.GetByPNR", "booking")
	}
	return l.byID[id].Clone(), nil
}

func (l *MemoryLedger) ListByUser(_ context.Context, userID int64) ([]domain.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.byUser[userID]
	out := make([]domain.Booking, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, *l.byID[ids[i]].Clone())
	}
	return out, nil
}

func (l *MemoryLedger) Update(_ context.Context, b *domain.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.byID[b.ID]
	if !ok {
		return domain.NotFound("ledger.Update", "booking")
	}
	if cur.Version != b.Version {
		return ErrStaleBooking
	}
	if cur.PNR != b.PNR {
		return domain.E(domain.KindInvalidInput, "ledger.Update", "pnr is immutable")
	}

	b.Version++
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = l.now().UTC()
	l.byID[b.ID] = b.Clone()
	return nil
}

func (l *MemoryLedger) ActiveSeatCounts(_ context.Context) ([]domain.KeyCount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sums := make(map[domain.InventoryKey]int)
	for _, b := range l.byID {
		k := b.Key()
		if b.Status == domain.BookingStatusConfirmed {
			sums[k] += b.SeatCount()
		} else if _, ok := sums[k]; !ok {
			sums[k] = 0
		}
	}

	out := make([]domain.KeyCount, 0, len(sums))
	for k, n := range sums {
		out = append(out, domain.KeyCount{Key: k, Seats: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

// IsPNRTaken reports whether err is an Insert collision on the reference.
func IsPNRTaken(err error) bool {
	return errors.Is(err, ErrPNRTaken)
}

var _ Ledger = (*MemoryLedger)(nil)
