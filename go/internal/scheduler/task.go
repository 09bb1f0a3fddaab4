// Package scheduler runs periodic, cancellable polling tasks.
//
// A Task owns one goroutine per running generation. Ticks execute inline on
// that goroutine, so a slow tick is never raced by the next one: ticker
// deliveries that arrive while a tick is in flight are dropped, not queued.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// FirstTickImmediate ticks as soon as the task starts.
	FirstTickImmediate time.Duration = 0
	// FirstTickOnInterval waits a full interval before the first tick.
	FirstTickOnInterval time.Duration = -1
)

// ErrInvalidInterval is returned by Start when the interval is not positive.
var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

// TickFunc is one unit of periodic work. It must return promptly once ctx is
// cancelled.
type TickFunc func(ctx context.Context)

type Config struct {
	Name     string
	Interval time.Duration
	// FirstTick is the delay before the first tick of each generation.
	// See FirstTickImmediate and FirstTickOnInterval.
	FirstTick time.Duration
	// Warmup, when set, runs once at the start of every generation before
	// any tick (for example a full reload after the task is resumed).
	Warmup TickFunc
}

// Task is a restartable periodic job.
type Task struct {
	cfg   Config
	tick  TickFunc
	clock clockwork.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// runMu is held by a generation for its whole life, so a Start racing a
	// Stop cannot overlap the old generation's last tick.
	runMu sync.Mutex

	wakeCh chan struct{}
	ticks  atomic.Uint64
}

func NewTask(cfg Config, tick TickFunc, clock clockwork.Clock) *Task {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Task{
		cfg:    cfg,
		tick:   tick,
		clock:  clock,
		wakeCh: make(chan struct{}, 1),
	}
}

func (t *Task) Name() string {
	return t.cfg.Name
}

// Start launches a new generation. Starting a running task is a no-op.
func (t *Task) Start(ctx context.Context) error {
	if t.cfg.Interval <= 0 {
		return ErrInvalidInterval
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go t.run(runCtx, done)

	log.Debug().
		Str("task", t.cfg.Name).
		Dur("interval", t.cfg.Interval).
		Msg("task started")
	return nil
}

// Stop cancels the running generation and waits for an in-flight tick to
// return. It must not be called from inside a tick.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	log.Debug().Str("task", t.cfg.Name).Msg("task stopped")
}

func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Trigger asks a running task to tick now. Calls made while a wake-up is
// already queued, or while the task is stopped, are dropped.
func (t *Task) Trigger() {
	if !t.Running() {
		return
	}
	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
}

// Ticks reports how many ticks have completed across all generations.
func (t *Task) Ticks() uint64 {
	return t.ticks.Load()
}

func (t *Task) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	t.runMu.Lock()
	defer t.runMu.Unlock()

	select {
	case <-t.wakeCh:
	default:
	}

	if t.cfg.Warmup != nil {
		t.cfg.Warmup(ctx)
	}

	ticker := t.clock.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	var first <-chan time.Time
	switch {
	case t.cfg.FirstTick == FirstTickImmediate:
		t.invoke(ctx)
	case t.cfg.FirstTick > 0:
		timer := t.clock.NewTimer(t.cfg.FirstTick)
		defer timer.Stop()
		first = timer.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-first:
			first = nil
			t.invoke(ctx)
		case <-ticker.Chan():
			t.invoke(ctx)
		case <-t.wakeCh:
			t.invoke(ctx)
		}
	}
}

func (t *Task) invoke(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	t.tick(ctx)
	t.ticks.Add(1)
}
