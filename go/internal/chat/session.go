// Package chat keeps the local chat feed in step with the server by polling.
//
// Messages carry strictly increasing ids. The session remembers the highest
// id it has rendered and only ever appends messages above it, so overlapping
// snapshots, a send racing a poll, or a resumed loop never duplicate a line.
// Only Load, the full reload, may rewrite the feed.
package chat

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mcdev12/donut/go/clients/site_client"
	"github.com/mcdev12/donut/go/internal/metrics"
	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/scheduler"
	"github.com/mcdev12/donut/go/internal/storage"
)

const (
	PollInterval = 5 * time.Second

	SystemLineDuration          = 5 * time.Second
	MultilineSystemLineDuration = 10 * time.Second

	// PanelKey stores whether the chat panel is open as "true" or "false".
	PanelKey = "chatOpen"

	DeletePrompt = "Delete this message?"

	sendFailedMessage   = "Failed to send message"
	deleteFailedMessage = "Failed to delete message"
)

var (
	ErrEmptyMessage = errors.New("chat: empty message")
	ErrSendInFlight = errors.New("chat: a message is already being sent")
	ErrDeclined     = errors.New("chat: delete not confirmed")
)

type Deps struct {
	API       API
	Feed      Feed
	Confirmer Confirmer
	Notifier  Notifier
	Store     storage.Store
	Metrics   metrics.Collector
	Clock     clockwork.Clock
	// Interval overrides PollInterval when positive.
	Interval time.Duration
}

type Session struct {
	api      API
	feed     Feed
	confirm  Confirmer
	notifier Notifier
	store    storage.Store
	metrics  metrics.Collector
	clock    clockwork.Clock
	task     *scheduler.Task

	// mu guards the render state and serializes every call into the feed
	mu             sync.Mutex
	lastRenderedID int64
	canDelete      bool
	panelOpen      bool

	sending atomic.Bool
}

func NewSession(deps Deps) *Session {
	s := &Session{
		api:      deps.API,
		feed:     deps.Feed,
		confirm:  deps.Confirmer,
		notifier: deps.Notifier,
		store:    deps.Store,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		// matches RestorePanel when nothing is stored
		panelOpen: true,
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
		Name:      "chat",
		Interval:  interval,
		FirstTick: scheduler.FirstTickOnInterval,
		Warmup:    s.reload,
	}, s.poll, s.clock)

	return s
}

// Start begins polling. Every start reloads the feed first so that anything
// posted while the loop was stopped shows up at once.
func (s *Session) Start(ctx context.Context) error {
	return s.task.Start(ctx)
}

func (s *Session) Stop() {
	s.task.Stop()
}

func (s *Session) Running() bool {
	return s.task.Running()
}

// Load fetches the snapshot and replaces the feed with it.
func (s *Session) Load(ctx context.Context) error {
	resp, err := s.api.ChatMessages(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.canDelete = resp.CanDelete
	atBottom := s.feed.AtBottom()
	s.feed.Replace(resp.Messages, resp.CanDelete)
	if len(resp.Messages) > 0 {
		newest := lo.MaxBy(resp.Messages, func(a, b models.ChatMessage) bool { return a.ID > b.ID })
		s.lastRenderedID = newest.ID
	}
	if atBottom {
		s.feed.ScrollToBottom()
	}
	return nil
}

// Poll appends the messages newer than anything rendered so far, then
// refreshes the online count.
func (s *Session) Poll(ctx context.Context) error {
	resp, err := s.api.ChatMessages(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.canDelete = resp.CanDelete
	fresh := lo.Filter(resp.Messages, func(m models.ChatMessage, _ int) bool {
		return m.ID > s.lastRenderedID
	})
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	appended := 0
	if len(fresh) > 0 {
		atBottom := s.feed.AtBottom()
		for _, m := range fresh {
			if s.appendLocked(m) {
				appended++
			}
		}
		if atBottom {
			s.feed.ScrollToBottom()
		}
	}
	s.mu.Unlock()

	s.metrics.RecordMessagesAppended(appended)
	s.refreshOnline(ctx)
	return nil
}

// Send posts text. The input is disabled for the duration of the request and
// re-enabled whatever the outcome; it is cleared only on success.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if !s.sending.CompareAndSwap(false, true) {
		return ErrSendInFlight
	}
	defer s.sending.Store(false)

	s.withFeed(func(f Feed) { f.SetInputEnabled(false) })
	defer s.withFeed(func(f Feed) { f.SetInputEnabled(true) })

	resp, err := s.api.SendChat(ctx, text)
	if err == nil && !resp.Success && resp.Message == nil && resp.SystemMessage == "" {
		err = site_client.ErrUnexpectedResponse
	}
	if err != nil {
		s.metrics.RecordUserAction("chat_send", false)
		log.Warn().Err(err).Msg("failed to send chat message")
		s.notifier.Show(site_client.UserMessage(err, sendFailedMessage), true)
		return err
	}
	s.metrics.RecordUserAction("chat_send", true)

	s.mu.Lock()
	defer s.mu.Unlock()
	// an accepted send with nothing to show leaves the input as typed
	switch {
	case resp.Message != nil:
		s.feed.ClearInput()
		// the next poll skips it because its id is now the newest rendered
		if s.appendLocked(*resp.Message) {
			s.feed.ScrollToBottom()
		}
	case resp.SystemMessage != "":
		s.feed.ClearInput()
		s.showSystemLocked(resp.SystemMessage)
	}
	return nil
}

// Delete asks for confirmation and removes the message on the server. The
// feed drops the line on success without reloading.
func (s *Session) Delete(ctx context.Context, messageID int64) error {
	if !s.confirm.Confirm(DeletePrompt) {
		return ErrDeclined
	}

	if err := s.api.DeleteChat(ctx, messageID); err != nil {
		s.metrics.RecordUserAction("chat_delete", false)
		log.Warn().Err(err).Int64("message_id", messageID).Msg("failed to delete chat message")
		s.notifier.Show(site_client.UserMessage(err, deleteFailedMessage), true)
		return err
	}
	s.metrics.RecordUserAction("chat_delete", true)

	s.withFeed(func(f Feed) { f.Remove(messageID) })
	return nil
}

// RestorePanel applies the persisted panel state. The panel is open unless
// it was explicitly closed.
func (s *Session) RestorePanel(ctx context.Context) error {
	v, ok, err := s.store.Get(ctx, PanelKey)
	if err != nil {
		return err
	}
	open := !ok || v != "false"

	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelOpen = open
	s.feed.SetPanelOpen(open)
	return nil
}

func (s *Session) OpenPanel(ctx context.Context) error {
	return s.setPanel(ctx, true)
}

func (s *Session) ClosePanel(ctx context.Context) error {
	return s.setPanel(ctx, false)
}

func (s *Session) TogglePanel(ctx context.Context) (bool, error) {
	open := !s.PanelOpen()
	return open, s.setPanel(ctx, open)
}

func (s *Session) PanelOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelOpen
}

func (s *Session) CanDelete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canDelete
}

func (s *Session) LastRenderedID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRenderedID
}

func (s *Session) setPanel(ctx context.Context, open bool) error {
	s.mu.Lock()
	s.panelOpen = open
	s.feed.SetPanelOpen(open)
	if open {
		s.feed.ScrollToBottom()
	}
	s.mu.Unlock()

	return s.store.Set(ctx, PanelKey, strconv.FormatBool(open))
}

func (s *Session) appendLocked(m models.ChatMessage) bool {
	if m.ID <= s.lastRenderedID {
		return false
	}
	s.feed.Append(m, s.canDelete)
	s.lastRenderedID = m.ID
	return true
}

func (s *Session) showSystemLocked(text string) {
	line := SystemLine{ID: uuid.New(), Text: text}
	s.feed.ShowSystem(line)

	ttl := SystemLineDuration
	if line.Multiline() {
		ttl = MultilineSystemLineDuration
	}
	s.clock.AfterFunc(ttl, func() {
		s.withFeed(func(f Feed) { f.RemoveSystem(line.ID) })
	})
}

func (s *Session) withFeed(fn func(Feed)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.feed)
}

func (s *Session) refreshOnline(ctx context.Context) {
	n, err := s.api.OnlineCount(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("failed to refresh online count")
		return
	}
	s.withFeed(func(f Feed) { f.SetOnline(n) })
}

func (s *Session) reload(ctx context.Context) {
	start := s.clock.Now()
	err := s.Load(ctx)
	s.metrics.RecordPoll("chat_load", err == nil, s.clock.Since(start))
	if err != nil && ctx.Err() == nil {
		log.Debug().Err(err).Msg("chat reload failed")
	}
	s.refreshOnline(ctx)
}

func (s *Session) poll(ctx context.Context) {
	start := s.clock.Now()
	err := s.Poll(ctx)
	s.metrics.RecordPoll("chat", err == nil, s.clock.Since(start))
	if err != nil && ctx.Err() == nil {
		log.Debug().Err(err).Msg("chat poll failed")
	}
}
