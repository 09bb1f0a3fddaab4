// Package visibility tracks whether the client is in the foreground and
// pauses background work while it is not.
package visibility

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

type State int

const (
	Visible State = iota
	Hidden
)

func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Gated is work that only runs while the client is visible. Start must do its
// own immediate refresh; Stop must cancel pending timers.
type Gated interface {
	Start(ctx context.Context) error
	Stop()
}

type binding struct {
	ctx  context.Context
	work Gated
}

// Tracker fans visibility transitions out to bound work. Transitions are
// applied under a single lock so rapid hide/show sequences never interleave.
type Tracker struct {
	mu        sync.Mutex
	state     State
	bindings  []binding
	listeners []func(State)
}

func NewTracker(initial State) *Tracker {
	return &Tracker{state: initial}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Visible() bool {
	return t.State() == Visible
}

// Bind registers work with the tracker and starts it at once when visible.
func (t *Tracker) Bind(ctx context.Context, work Gated) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bindings = append(t.bindings, binding{ctx: ctx, work: work})
	if t.state == Visible {
		return work.Start(ctx)
	}
	return nil
}

// OnChange registers fn to run after every transition.
func (t *Tracker) OnChange(fn func(State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Tracker) SetVisible(visible bool) {
	if visible {
		t.Set(Visible)
		return
	}
	t.Set(Hidden)
}

// Set applies a transition. Hidden stops every bound task; Visible restarts
// them, each with an immediate refresh. Setting the current state is a no-op.
func (t *Tracker) Set(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state == t.state {
		return
	}
	t.state = state

	for _, b := range t.bindings {
		switch state {
		case Hidden:
			b.work.Stop()
		case Visible:
			if err := b.work.Start(b.ctx); err != nil {
				log.Error().Err(err).Msg("failed to resume background work")
			}
		}
	}

	for _, fn := range t.listeners {
		fn(state)
	}

	log.Debug().Str("state", state.String()).Int("bound", len(t.bindings)).Msg("visibility changed")
}

// StopAll stops every bound task without changing the tracked state.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range t.bindings {
		b.work.Stop()
	}
}
