// Package balance keeps the displayed account balance close to the server's.
//
// Local actions (placing a bet, cashing out) adjust the display right away;
// the poll loop then overwrites it with the server value whenever the two
// disagree. The server always wins.
//
// Until a value is known, from the first successful fetch or from Set, local
// adjustments are ignored: there is nothing to adjust yet.
package balance

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/donut/go/internal/metrics"
	"github.com/mcdev12/donut/go/internal/money"
	"github.com/mcdev12/donut/go/internal/scheduler"
)

const (
	PollInterval = 3 * time.Second

	// ReconcileEpsilon is the largest server/display difference left alone.
	ReconcileEpsilon = 0.001
	// PulseThreshold is the smallest change that flashes the display.
	PulseThreshold = 0.01
)

var ErrInvalidAmount = errors.New("balance: amount must be a non-negative number")

type Direction int

const (
	Spend Direction = iota
	Gain
)

type API interface {
	Balance(ctx context.Context) (float64, error)
}

// Display shows the balance. label is the formatted value.
type Display interface {
	Render(value float64, label string)
	Pulse()
}

type Deps struct {
	API     API
	Display Display
	Metrics metrics.Collector
	Clock   clockwork.Clock
	// Interval overrides PollInterval when positive.
	Interval time.Duration
}

type Session struct {
	api     API
	display Display
	metrics metrics.Collector
	clock   clockwork.Clock
	task    *scheduler.Task

	mu        sync.Mutex
	displayed float64
	seeded    bool
}

func NewSession(deps Deps) *Session {
	s := &Session{
		api:     deps.API,
		display: deps.Display,
		metrics: deps.Metrics,
		clock:   deps.Clock,
	}
	if s.metrics == nil {
		s.metrics = metrics.NoOpCollector{}
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = PollInterval
	}
	s.task = scheduler.NewTask(scheduler.Config{
		Name:      "balance",
		Interval:  interval,
		FirstTick: scheduler.FirstTickImmediate,
	}, s.poll, s.clock)

	return s
}

// Start fetches immediately, then on every interval.
func (s *Session) Start(ctx context.Context) error {
	return s.task.Start(ctx)
}

func (s *Session) Stop() {
	s.task.Stop()
}

func (s *Session) Running() bool {
	return s.task.Running()
}

// FetchAndReconcile replaces the displayed value with the server's when they
// differ by more than ReconcileEpsilon.
func (s *Session) FetchAndReconcile(ctx context.Context) error {
	server, err := s.api.Balance(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded || math.Abs(server-s.displayed) > ReconcileEpsilon {
		log.Debug().
			Float64("displayed", s.displayed).
			Float64("server", server).
			Msg("balance reconciled")
		s.setLocked(server)
	}
	return nil
}

// ApplyOptimisticDelta moves the displayed balance before the server confirms
// it. Spending never takes the display below zero.
func (s *Session) ApplyOptimisticDelta(amount float64, dir Direction) error {
	if !valid(amount) {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		log.Debug().Float64("amount", amount).Msg("balance not loaded yet, skipping local update")
		return nil
	}
	next := s.displayed + amount
	if dir == Spend {
		next = math.Max(0, s.displayed-amount)
	}
	s.setLocked(next)
	return nil
}

func (s *Session) Deduct(amount float64) error {
	return s.ApplyOptimisticDelta(amount, Spend)
}

func (s *Session) Add(amount float64) error {
	return s.ApplyOptimisticDelta(amount, Gain)
}

func (s *Session) Set(value float64) error {
	if !valid(value) {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(value)
	return nil
}

// Seeded reports whether the balance has been loaded or set.
func (s *Session) Seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded
}

func (s *Session) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayed
}

// setLocked renders value. The first value only renders; later ones pulse
// when they move the display noticeably.
func (s *Session) setLocked(value float64) {
	prev, seeded := s.displayed, s.seeded
	s.displayed, s.seeded = value, true
	s.display.Render(value, money.Format(value))
	if seeded && math.Abs(value-prev) > PulseThreshold {
		s.display.Pulse()
	}
}

func (s *Session) poll(ctx context.Context) {
	start := s.clock.Now()
	err := s.FetchAndReconcile(ctx)
	s.metrics.RecordPoll("balance", err == nil, s.clock.Since(start))
	if err != nil && ctx.Err() == nil {
		log.Debug().Err(err).Msg("balance poll failed")
	}
}

func valid(amount float64) bool {
	return amount >= 0 && !math.IsInf(amount, 0)
}
