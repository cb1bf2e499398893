package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/google/uuid"
)

type memoryEntry struct {
	// lock is a one-slot semaphore so acquisition can honour a deadline.
	lock    chan struct{}
	total   int
	held    atomic.Int64
	version atomic.Int64
	// released holds ReleaseOnce tokens; guarded by lock.
	released map[string]struct{}
}

// setHeld must be called with the entry lock held.
func (e *memoryEntry) setHeld(held int) {
	e.held.Store(int64(held))
	e.version.Add(1)
}

// MemoryStore keeps counters in process. Each key has its own lock, so
// reservations on different keys never wait for each other.
type MemoryStore struct {
	mu          sync.RWMutex
	entries     map[domain.InventoryKey]*memoryEntry
	lockTimeout time.Duration
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &MemoryStore{
		entries:     make(map[domain.InventoryKey]*memoryEntry),
		lockTimeout: lockTimeout,
	}
}

func (s *MemoryStore) Ensure(_ context.Context, key domain.InventoryKey, totalSeats int) error {
	if totalSeats < 0 {
		return domain.InvalidInput("inventory.Ensure", "totalSeats", "must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		s.entries[key] = &memoryEntry{lock: make(chan struct{}, 1), total: totalSeats, released: make(map[string]struct{})}
	}
	return nil
}

func (s *MemoryStore) TryReserve(ctx context.Context, key domain.InventoryKey, count int) (Reservation, error) {
	const op = "inventory.TryReserve"
	if err := validateCount(op, count); err != nil {
		return Reservation{}, err
	}
	e, err := s.acquire(ctx, op, key)
	if err != nil {
		return Reservation{}, err
	}
	defer s.unlock(e)

	held := int(e.held.Load())
	if e.total-held < count {
		return Reservation{}, domain.E(domain.KindCapacityExceeded, op, "not enough seats available")
	}
	e.setHeld(held + count)
	return Reservation{Key: key, Count: count, Token: uuid.NewString()}, nil
}

func (s *MemoryStore) Release(ctx context.Context, key domain.InventoryKey, count int) error {
	const op = "inventory.Release"
	if err := validateCount(op, count); err != nil {
		return err
	}
	e, err := s.acquire(ctx, op, key)
	if err != nil {
		return err
	}
	defer s.unlock(e)

	e.setHeld(max(int(e.held.Load())-count, 0))
	return nil
}

func (s *MemoryStore) ReleaseOnce(ctx context.Context, key domain.InventoryKey, count int, token string) (bool, error) {
	const op = "inventory.ReleaseOnce"
	if err := validateCount(op, count); err != nil {
		return false, err
	}
	if err := validateToken(op, token); err != nil {
		return false, err
	}
	e, err := s.acquire(ctx, op, key)
	if err != nil {
		return false, err
	}
	defer s.unlock(e)

	if _, done := e.released[token]; done {
		return false, nil
	}
	e.released[token] = struct{}{}
	e.setHeld(max(int(e.held.Load())-count, 0))
	return true, nil
}

func (s *MemoryStore) CapacityOf(_ context.Context, key domain.InventoryKey) (int, int, error) {
	e, ok := s.entry(key)
	if !ok {
		return 0, 0, domain.NotFound("inventory.CapacityOf", "inventory")
	}
	return e.total, int(e.held.Load()), nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, key domain.InventoryKey) (domain.SeatClassInventory, error) {
	e, err := s.acquire(ctx, "inventory.Snapshot", key)
	if err != nil {
		return domain.SeatClassInventory{}, err
	}
	defer s.unlock(e)
	return domain.SeatClassInventory{
		Key:        key,
		TotalSeats: e.total,
		HeldSeats:  int(e.held.Load()),
		Version:    e.version.Load(),
	}, nil
}

func (s *MemoryStore) Reconcile(ctx context.Context, key domain.InventoryKey, expectedVersion int64, held int) error {
	e, err := s.acquire(ctx, "inventory.Reconcile", key)
	if err != nil {
		return err
	}
	defer s.unlock(e)
	if e.version.Load() != expectedVersion {
		return ErrStaleInventory
	}
	e.setHeld(clamp(held, 0, e.total))
	return nil
}

func (s *MemoryStore) entry(key domain.InventoryKey) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MemoryStore) acquire(ctx context.Context, op string, key domain.InventoryKey) (*memoryEntry, error) {
	e, ok := s.entry(key)
	if !ok {
		return nil, domain.NotFound(op, "inventory")
	}

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case e.lock <- struct{}{}:
		return e, nil
	case <-ctx.Done():
		return nil, domain.Wrap(domain.KindTransient, op, ctx.Err())
	case <-timer.C:
		return nil, domain.E(domain.KindTransient, op, "timed out waiting for inventory lock on "+key.String())
	}
}

func (s *MemoryStore) unlock(e *memoryEntry) {
	<-e.lock
}

var _ Store = (*MemoryStore)(nil)
