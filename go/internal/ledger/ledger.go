// Package ledger records coinflips the user created and has not yet been told
// about. The ledger lives in shared storage so that every running client sees
// the same entries and the "someone joined" alert fires once, not once per
// client.
//
// Updates are read-modify-write with no transaction across writers. Two
// clients writing at the same moment can lose one update; the worst outcome
// is a duplicate or missing alert, which is accepted.
//
// Watch reports writes made by other ledgers only. A change notification
// whose stored entries equal this ledger's own last write is dropped, so a
// watcher is not woken by its own bookkeeping.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/storage"
)

const (
	StorageKey = "pendingCoinflips"

	// Retention bounds the life of any entry, resolved or not.
	Retention = time.Hour
	// ResolvedGrace is how long a resolved entry is kept so that a client
	// polling slightly behind can still see it was handled.
	ResolvedGrace = time.Minute
)

var ErrEmptyEventID = errors.New("ledger: empty event id")

type PendingEvent struct {
	EventID    models.ID
	CreatedAt  time.Time
	Notified   bool
	ResolvedAt time.Time
}

func (e PendingEvent) Resolved() bool {
	return !e.ResolvedAt.IsZero()
}

// record is the persisted form, keyed by event id.
type record struct {
	Created    int64 `json:"created"`
	Notified   bool  `json:"notified"`
	ResolvedAt int64 `json:"resolvedAt,omitempty"`
}

type Ledger struct {
	store storage.Store
	clock clockwork.Clock

	mu        sync.Mutex
	lastSaved map[string]record
}

func New(store storage.Store, clock clockwork.Clock) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{store: store, clock: clock}
}

// Register adds a freshly created event, replacing any entry with the same id.
func (l *Ledger) Register(ctx context.Context, id models.ID) error {
	if id.IsZero() {
		return ErrEmptyEventID
	}
	return l.update(ctx, func(entries map[string]record) bool {
		entries[id.String()] = record{Created: l.clock.Now().UnixMilli()}
		return true
	})
}

// MarkNotified flips the notified flag and reports whether this call did it.
// Unknown and already notified ids return false.
func (l *Ledger) MarkNotified(ctx context.Context, id models.ID) (bool, error) {
	flipped := false
	err := l.update(ctx, func(entries map[string]record) bool {
		rec, ok := entries[id.String()]
		if !ok || rec.Notified {
			return false
		}
		rec.Notified = true
		entries[id.String()] = rec
		flipped = true
		return true
	})
	if err != nil {
		return false, err
	}
	return flipped, nil
}

// MarkResolved stamps the time the event finished. The entry is pruned once
// ResolvedGrace has passed.
func (l *Ledger) MarkResolved(ctx context.Context, id models.ID) error {
	return l.update(ctx, func(entries map[string]record) bool {
		rec, ok := entries[id.String()]
		if !ok || rec.ResolvedAt != 0 {
			return false
		}
		rec.ResolvedAt = l.clock.Now().UnixMilli()
		entries[id.String()] = rec
		return true
	})
}

func (l *Ledger) Remove(ctx context.Context, id models.ID) error {
	return l.update(ctx, func(entries map[string]record) bool {
		if _, ok := entries[id.String()]; !ok {
			return false
		}
		delete(entries, id.String())
		return true
	})
}

// Pending lists every entry, oldest first.
func (l *Ledger) Pending(ctx context.Context) ([]PendingEvent, error) {
	entries, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	events := lo.MapToSlice(entries, func(id string, rec record) PendingEvent {
		return rec.event(models.ID(id))
	})
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].EventID < events[j].EventID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// Unnotified lists the entries nobody has alerted on yet.
func (l *Ledger) Unnotified(ctx context.Context) ([]PendingEvent, error) {
	events, err := l.Pending(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(events, func(e PendingEvent, _ int) bool { return !e.Notified }), nil
}

// Prune drops entries older than Retention and resolved entries past their
// grace period. It returns how many were removed.
func (l *Ledger) Prune(ctx context.Context) (int, error) {
	now := l.clock.Now()
	removed := 0
	err := l.update(ctx, func(entries map[string]record) bool {
		for id, rec := range entries {
			if rec.expired(now) {
				delete(entries, id)
				removed++
			}
		}
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("pruned pending coinflips")
	}
	return removed, nil
}

// Watch calls onChange whenever another writer updates the ledger. It blocks
// until ctx is done.
func (l *Ledger) Watch(ctx context.Context, onChange func()) error {
	return l.store.Watch(ctx, StorageKey, func() {
		if l.echoesOwnWrite(ctx) {
			return
		}
		onChange()
	})
}

// echoesOwnWrite reports whether the stored entries are exactly what this
// ledger last saved. Entries are compared decoded, since some backends
// normalize the JSON they return.
func (l *Ledger) echoesOwnWrite(ctx context.Context) bool {
	l.mu.Lock()
	last := l.lastSaved
	l.mu.Unlock()
	if last == nil {
		return false
	}

	entries, err := l.load(ctx)
	if err != nil {
		return false
	}
	return maps.Equal(entries, last)
}

func (r record) event(id models.ID) PendingEvent {
	e := PendingEvent{
		EventID:   id,
		CreatedAt: time.UnixMilli(r.Created),
		Notified:  r.Notified,
	}
	if r.ResolvedAt != 0 {
		e.ResolvedAt = time.UnixMilli(r.ResolvedAt)
	}
	return e
}

func (r record) expired(now time.Time) bool {
	if now.Sub(time.UnixMilli(r.Created)) > Retention {
		return true
	}
	return r.ResolvedAt != 0 && now.Sub(time.UnixMilli(r.ResolvedAt)) >= ResolvedGrace
}

// update loads the entries, applies fn and writes them back when fn reports a
// change.
func (l *Ledger) update(ctx context.Context, fn func(map[string]record) bool) error {
	entries, err := l.load(ctx)
	if err != nil {
		return err
	}
	if !fn(entries) {
		return nil
	}
	return l.save(ctx, entries)
}

// load treats missing or unreadable data as an empty ledger.
func (l *Ledger) load(ctx context.Context) (map[string]record, error) {
	entries := make(map[string]record)

	raw, ok, err := l.store.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if !ok || raw == "" {
		return entries, nil
	}

	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Warn().Err(err).Msg("discarding unreadable pending coinflips")
		return make(map[string]record), nil
	}
	if entries == nil {
		entries = make(map[string]record)
	}
	return entries, nil
}

func (l *Ledger) save(ctx context.Context, entries map[string]record) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	// recorded before the write: some stores notify watchers from inside Set
	l.mu.Lock()
	l.lastSaved = maps.Clone(entries)
	l.mu.Unlock()

	if err := l.store.Set(ctx, StorageKey, string(raw)); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}
