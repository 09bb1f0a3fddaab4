// Package toast shows transient text banners that dismiss themselves.
//
// A Notifier is the single toast container of a surface. It performs no
// de-duplication: callers that need notify-once semantics enforce them.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

const (
	DisplayDuration = 4500 * time.Millisecond
	FadeDuration    = 300 * time.Millisecond
	// FrameDelay defers the reveal to the next frame so the entry is drawn
	// hidden first and then animated in.
	FrameDelay = 16 * time.Millisecond
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

type Phase int

const (
	PhaseMounted Phase = iota
	PhaseVisible
	PhaseHiding
)

type Entry struct {
	ID        uuid.UUID
	Message   string
	Kind      Kind
	CreatedAt time.Time
	Phase     Phase
}

// Surface draws toast entries. Calls for one entry arrive in order
// Mount, Reveal, Hide, Unmount; Reveal is skipped for entries dismissed first.
type Surface interface {
	Mount(entry Entry)
	Reveal(id uuid.UUID)
	Hide(id uuid.UUID)
	Unmount(id uuid.UUID)
}

type toastState struct {
	entry   Entry
	display clockwork.Timer
}

type Notifier struct {
	clock   clockwork.Clock
	surface Surface

	mu      sync.Mutex
	entries []*toastState
}

func NewNotifier(surface Surface, clock clockwork.Clock) *Notifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Notifier{
		clock:   clock,
		surface: surface,
	}
}

// Show displays message; isError selects the error styling. Empty messages
// are ignored.
func (n *Notifier) Show(message string, isError bool) {
	kind := KindSuccess
	if isError {
		kind = KindError
	}
	n.Push(message, kind)
}

// Push is Show returning the created entry; ok is false for empty messages.
func (n *Notifier) Push(message string, kind Kind) (Entry, bool) {
	if message == "" {
		return Entry{}, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	st := &toastState{
		entry: Entry{
			ID:        uuid.New(),
			Message:   message,
			Kind:      kind,
			CreatedAt: n.clock.Now(),
			Phase:     PhaseMounted,
		},
	}
	n.entries = append(n.entries, st)
	n.surface.Mount(st.entry)

	id := st.entry.ID
	n.clock.AfterFunc(FrameDelay, func() { n.reveal(id) })
	st.display = n.clock.AfterFunc(DisplayDuration, func() { n.hide(id) })

	return st.entry, true
}

// Dismiss starts the fade-out of an entry right away.
func (n *Notifier) Dismiss(id uuid.UUID) {
	n.mu.Lock()
	st := n.find(id)
	if st != nil && st.display != nil {
		st.display.Stop()
	}
	n.mu.Unlock()

	n.hide(id)
}

// Active returns the entries currently on the surface, oldest first.
func (n *Notifier) Active() []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lo.Map(n.entries, func(st *toastState, _ int) Entry { return st.entry })
}

func (n *Notifier) reveal(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := n.find(id)
	if st == nil || st.entry.Phase != PhaseMounted {
		return
	}
	st.entry.Phase = PhaseVisible
	n.surface.Reveal(id)
}

func (n *Notifier) hide(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := n.find(id)
	if st == nil || st.entry.Phase == PhaseHiding {
		return
	}
	st.entry.Phase = PhaseHiding
	n.surface.Hide(id)
	n.clock.AfterFunc(FadeDuration, func() { n.unmount(id) })
}

func (n *Notifier) unmount(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.find(id) == nil {
		return
	}
	n.entries = lo.Reject(n.entries, func(st *toastState, _ int) bool { return st.entry.ID == id })
	n.surface.Unmount(id)
}

func (n *Notifier) find(id uuid.UUID) *toastState {
	st, _ := lo.Find(n.entries, func(st *toastState) bool { return st.entry.ID == id })
	return st
}
