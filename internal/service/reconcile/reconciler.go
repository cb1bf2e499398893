// Package reconcile repairs inventory counters that no longer match the ledger:
// it applies queued release obligations and sweeps for drift.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/inventory"
	"github.com/Domenick1991/railbooking/internal/kafka"
	kafkaGo "github.com/segmentio/kafka-go"
)

type SeatCounter interface {
	ActiveSeatCounts(ctx context.Context) ([]domain.KeyCount, error)
}

// Drift is a key whose held counter differs from the seats of its confirmed bookings.
type Drift struct {
	Key       domain.InventoryKey
	Held      int
	Confirmed int
	// Version is the counter version the sweep read.
	Version int64
	// Stable is set when the counter and the ledger are unchanged since the previous sweep.
	Stable   bool
	Repaired bool
}

type Reconciler struct {
	store    inventory.Store
	bookings SeatCounter
	repair   bool
	log      *slog.Logger

	mu       sync.Mutex
	previous map[domain.InventoryKey]Drift
	// hints are keys named by release obligations; they are swept even when
	// no confirmed booking references them.
	hints map[domain.InventoryKey]struct{}
}

func NewReconciler(store inventory.Store, bookings SeatCounter, repair bool, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:    store,
		bookings: bookings,
		repair:   repair,
		log:      log,
		previous: make(map[domain.InventoryKey]Drift),
		hints:    make(map[domain.InventoryKey]struct{}),
	}
}

// Sweep compares every referenced key with the ledger. A booking in flight
// shows up as drift for one sweep, so only drift whose counter version and
// confirmed seats are unchanged since the previous sweep is repaired, and only
// when repair is enabled. The repair is conditional on that version, so a
// reservation taken after the read makes the repair a no-op.
func (r *Reconciler) Sweep(ctx context.Context) ([]Drift, error) {
	counts, err := r.bookings.ActiveSeatCounts(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	confirmed := make(map[domain.InventoryKey]int, len(counts)+len(r.hints))
	keys := make([]domain.InventoryKey, 0, len(counts)+len(r.hints))
	for _, c := range counts {
		if _, ok := confirmed[c.Key]; !ok {
			keys = append(keys, c.Key)
		}
		confirmed[c.Key] += c.Seats
	}
	for k := range r.hints {
		if _, ok := confirmed[k]; !ok {
			confirmed[k] = 0
			keys = append(keys, k)
		}
	}

	seen := make(map[domain.InventoryKey]Drift)
	var drifts []Drift
	for _, k := range keys {
		want := confirmed[k]
		snap, err := r.store.Snapshot(ctx, k)
		if errors.Is(err, domain.ErrNotFound) {
			if want > 0 {
				r.log.ErrorContext(ctx, "confirmed bookings reference missing inventory", "key", k.String(), "seats", want)
			}
			delete(r.hints, k)
			continue
		}
		if err != nil {
			r.previous = seen
			return drifts, err
		}
		if snap.HeldSeats == want {
			delete(r.hints, k)
			continue
		}

		d := Drift{Key: k, Held: snap.HeldSeats, Confirmed: want, Version: snap.Version}
		if prev, ok := r.previous[k]; ok && prev.Version == snap.Version && prev.Confirmed == want {
			d.Stable = true
		}
		if d.Stable && r.repair {
			err := r.store.Reconcile(ctx, k, snap.Version, want)
			switch {
			case err == nil:
				d.Repaired = true
				delete(r.hints, k)
			case errors.Is(err, inventory.ErrStaleInventory):
				r.log.InfoContext(ctx, "inventory changed during repair, skipped", "key", k.String())
			default:
				r.log.ErrorContext(ctx, "inventory repair failed", "key", k.String(), "error", err)
			}
		}

		r.log.WarnContext(ctx, "inventory drift",
			"key", k.String(), "held", snap.HeldSeats, "confirmed", want, "stable", d.Stable, "repaired", d.Repaired)
		if !d.Repaired {
			seen[k] = d
		}
		drifts = append(drifts, d)
	}
	r.previous = seen
	return drifts, nil
}

// Run sweeps every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			drifts, err := r.Sweep(ctx)
			if err != nil {
				r.log.ErrorContext(ctx, "reconcile sweep failed", "error", err)
				continue
			}
			if len(drifts) > 0 {
				r.log.InfoContext(ctx, "reconcile sweep finished", "drifted_keys", len(drifts))
			}
		case <-ctx.Done():
			return
		}
	}
}

// HandleObligation settles one release obligation. With repair enabled the
// key is handed to the sweep, which sets the counter from the ledger; otherwise
// the seats are released once per event id, so a redelivered obligation does
// not free seats twice.
func (r *Reconciler) HandleObligation(ctx context.Context, msg kafkaGo.Message) error {
	const op = "reconcile.HandleObligation"

	var o kafka.ReleaseObligation
	if err := json.Unmarshal(msg.Value, &o); err != nil {
		return domain.Wrap(domain.KindInvalidInput, op, err)
	}
	key, err := o.Key()
	if err != nil {
		return domain.Wrap(domain.KindInvalidInput, op, err)
	}
	if o.Count <= 0 {
		return domain.InvalidInput(op, "count", "must be positive")
	}
	if o.EventID == "" {
		return domain.InvalidInput(op, "event_id", "must not be empty")
	}

	if r.repair {
		r.mu.Lock()
		r.hints[key] = struct{}{}
		r.mu.Unlock()
		r.log.InfoContext(ctx, "release obligation queued for sweep",
			"key", key.String(), "count", o.Count, "pnr", o.PNR, "event_id", o.EventID)
		return nil
	}

	applied, err := r.store.ReleaseOnce(ctx, key, o.Count, o.EventID)
	if err != nil {
		return err
	}
	if !applied {
		r.log.InfoContext(ctx, "release obligation already applied", "key", key.String(), "pnr", o.PNR, "event_id", o.EventID)
		return nil
	}
	r.log.InfoContext(ctx, "release obligation applied",
		"key", key.String(), "count", o.Count, "reason", o.Reason, "pnr", o.PNR, "event_id", o.EventID)
	return nil
}
