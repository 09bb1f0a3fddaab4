package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/donut/go/clients/site_client"
	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/storage"
)

const (
	waitFor   = time.Second
	tickEvery = time.Millisecond
)

type fakeAPI struct {
	mu        sync.Mutex
	snapshot  []models.ChatMessage
	canDelete bool
	fetchErr  error
	fetches   int
	online    int

	sendResp  *site_client.SendResponse
	sendErr   error
	sendGate  chan struct{}
	sent      []string
	deleteErr error
	deleted   []int64
}

func (f *fakeAPI) setSnapshot(ids ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = nil
	for _, id := range ids {
		f.snapshot = append(f.snapshot, models.ChatMessage{ID: id, Content: fmt.Sprintf("m%d", id)})
	}
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeAPI) ChatMessages(ctx context.Context) (*site_client.MessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	msgs := append([]models.ChatMessage{}, f.snapshot...)
	return &site_client.MessagesResponse{Success: true, Messages: msgs, CanDelete: f.canDelete}, nil
}

func (f *fakeAPI) SendChat(ctx context.Context, text string) (*site_client.SendResponse, error) {
	f.mu.Lock()
	gate := f.sendGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.sendResp, f.sendErr
}

func (f *fakeAPI) DeleteChat(ctx context.Context, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return f.deleteErr
}

func (f *fakeAPI) OnlineCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online, nil
}

type recordingFeed struct {
	mu           sync.Mutex
	ids          []int64
	system       map[uuid.UUID]string
	atBottom     bool
	scrolls      int
	online       int
	inputEnabled []bool
	cleared      int
	panelOpen    bool
}

func newRecordingFeed() *recordingFeed {
	return &recordingFeed{system: make(map[uuid.UUID]string), atBottom: true}
}

func (r *recordingFeed) Replace(messages []models.ChatMessage, canDelete bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = r.ids[:0]
	for _, m := range messages {
		r.ids = append(r.ids, m.ID)
	}
}

func (r *recordingFeed) Append(message models.ChatMessage, canDelete bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, message.ID)
}

func (r *recordingFeed) Remove(messageID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range r.ids {
		if id == messageID {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (r *recordingFeed) ShowSystem(line SystemLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.system[line.ID] = line.Text
}

func (r *recordingFeed) RemoveSystem(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.system, id)
}

func (r *recordingFeed) AtBottom() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.atBottom
}

func (r *recordingFeed) ScrollToBottom() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrolls++
}

func (r *recordingFeed) SetOnline(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = count
}

func (r *recordingFeed) SetInputEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputEnabled = append(r.inputEnabled, enabled)
}

func (r *recordingFeed) ClearInput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

func (r *recordingFeed) SetPanelOpen(open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panelOpen = open
}

func (r *recordingFeed) rendered() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64{}, r.ids...)
}

func (r *recordingFeed) systemLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, 0, len(r.system))
	for _, text := range r.system {
		lines = append(lines, text)
	}
	return lines
}

type fakeConfirmer struct{ answer bool }

func (f fakeConfirmer) Confirm(string) bool { return f.answer }

type recordingNotifier struct {
	mu     sync.Mutex
	shown  []string
	errors int
}

func (n *recordingNotifier) Show(message string, isError bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, message)
	if isError {
		n.errors++
	}
}

type fixture struct {
	api      *fakeAPI
	feed     *recordingFeed
	notifier *recordingNotifier
	store    *storage.MemoryStore
	clock    *clockwork.FakeClock
	session  *Session
}

func newFixture(t *testing.T, confirm bool) *fixture {
	t.Helper()
	f := &fixture{
		api:      &fakeAPI{online: 7},
		feed:     newRecordingFeed(),
		notifier: &recordingNotifier{},
		store:    storage.NewMemoryStore(),
		clock:    clockwork.NewFakeClock(),
	}
	f.session = NewSession(Deps{
		API:       f.api,
		Feed:      f.feed,
		Confirmer: fakeConfirmer{answer: confirm},
		Notifier:  f.notifier,
		Store:     f.store,
		Clock:     f.clock,
	})
	return f
}

func TestLoadReplacesFeed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()

	f.api.setSnapshot(3, 1, 2)
	f.api.canDelete = true
	require.NoError(t, f.session.Load(ctx))
	assert.Equal(t, []int64{3, 1, 2}, f.feed.rendered())
	assert.Equal(t, int64(3), f.session.LastRenderedID())
	assert.True(t, f.session.CanDelete())
	assert.Equal(t, 1, f.feed.scrolls)

	// an empty snapshot clears the feed but keeps the high-water mark
	f.api.setSnapshot()
	require.NoError(t, f.session.Load(ctx))
	assert.Empty(t, f.feed.rendered())
	assert.Equal(t, int64(3), f.session.LastRenderedID())
}

func TestLoadDoesNotScrollWhenReadingHistory(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	f.feed.atBottom = false
	f.api.setSnapshot(1)

	require.NoError(t, f.session.Load(t.Context()))
	assert.Zero(t, f.feed.scrolls)
}

func TestPollAppendsOnlyNewMessagesInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()

	f.api.setSnapshot(1, 2)
	require.NoError(t, f.session.Load(ctx))

	f.api.setSnapshot(4, 2, 3, 1)
	require.NoError(t, f.session.Poll(ctx))
	assert.Equal(t, []int64{1, 2, 3, 4}, f.feed.rendered())
	assert.Equal(t, int64(4), f.session.LastRenderedID())
	assert.Equal(t, 7, f.feed.online)

	// the same snapshot again changes nothing
	require.NoError(t, f.session.Poll(ctx))
	assert.Equal(t, []int64{1, 2, 3, 4}, f.feed.rendered())
}

func TestPollSkipsDuplicateIDsInOneSnapshot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	f.api.setSnapshot(5, 5, 6)
	require.NoError(t, f.session.Poll(t.Context()))
	assert.Equal(t, []int64{5, 6}, f.feed.rendered())
}

func TestPollFailureLeavesFeedAlone(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()
	f.api.setSnapshot(1)
	require.NoError(t, f.session.Load(ctx))

	f.api.fetchErr = errors.New("network down")
	assert.Error(t, f.session.Poll(ctx))
	assert.Equal(t, []int64{1}, f.feed.rendered())
	assert.Empty(t, f.notifier.shown)
}

func TestSendHelloAppendsOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()

	f.api.setSnapshot(8, 9)
	require.NoError(t, f.session.Load(ctx))

	f.api.sendResp = &site_client.SendResponse{
		Success: true,
		Message: &models.ChatMessage{ID: 10, Content: "hello"},
	}
	require.NoError(t, f.session.Send(ctx, "  hello "))
	assert.Equal(t, []string{"hello"}, f.api.sent)
	assert.Equal(t, []int64{8, 9, 10}, f.feed.rendered())
	assert.Equal(t, 1, f.feed.cleared)
	assert.Equal(t, []bool{false, true}, f.feed.inputEnabled)
	assert.Equal(t, 1, f.api.fetchCount())

	// the next poll already contains the sent message
	f.api.setSnapshot(8, 9, 10)
	require.NoError(t, f.session.Poll(ctx))
	assert.Equal(t, []int64{8, 9, 10}, f.feed.rendered())
}

func TestSendSystemMessageIsTransient(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()

	f.api.sendResp = &site_client.SendResponse{Success: true, SystemMessage: "Muted for 5m"}
	require.NoError(t, f.session.Send(ctx, "/mute bob"))
	assert.Equal(t, []string{"Muted for 5m"}, f.feed.systemLines())
	assert.Empty(t, f.feed.rendered())
	assert.Equal(t, int64(0), f.session.LastRenderedID())

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(SystemLineDuration - time.Millisecond)
	assert.Len(t, f.feed.systemLines(), 1)
	f.clock.Advance(time.Millisecond)
	assert.Eventually(t, func() bool { return len(f.feed.systemLines()) == 0 }, waitFor, tickEvery)
}

func TestMultilineSystemMessageStaysLonger(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()

	f.api.sendResp = &site_client.SendResponse{Success: true, SystemMessage: "commands:\n/help\n/mute"}
	require.NoError(t, f.session.Send(ctx, "/help"))

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(SystemLineDuration)
	time.Sleep(10 * tickEvery)
	assert.Len(t, f.feed.systemLines(), 1)

	f.clock.Advance(MultilineSystemLineDuration - SystemLineDuration)
	assert.Eventually(t, func() bool { return len(f.feed.systemLines()) == 0 }, waitFor, tickEvery)
}

func TestSendWithNothingToShowKeepsInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	f.api.sendResp = &site_client.SendResponse{Success: true}
	require.NoError(t, f.session.Send(t.Context(), "hi"))

	assert.Zero(t, f.feed.cleared)
	assert.Empty(t, f.feed.rendered())
	assert.Empty(t, f.feed.systemLines())
	assert.Equal(t, []bool{false, true}, f.feed.inputEnabled)
}

func TestSendErrorKeepsInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	f.api.sendErr = &site_client.APIError{Message: "You are muted", StatusCode: http.StatusForbidden}
	err := f.session.Send(t.Context(), "hi")
	var apiErr *site_client.APIError
	require.ErrorAs(t, err, &apiErr)

	assert.Equal(t, []string{"You are muted"}, f.notifier.shown)
	assert.Equal(t, 1, f.notifier.errors)
	assert.Zero(t, f.feed.cleared)
	assert.Equal(t, []bool{false, true}, f.feed.inputEnabled)
}

func TestSendTransportFailureUsesFallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	f.api.sendErr = errors.New("dial tcp: refused")
	require.Error(t, f.session.Send(t.Context(), "hi"))
	assert.Equal(t, []string{sendFailedMessage}, f.notifier.shown)
}

func TestSendEmptyMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	assert.ErrorIs(t, f.session.Send(t.Context(), "   \n"), ErrEmptyMessage)
	assert.Empty(t, f.api.sent)
	assert.Empty(t, f.feed.inputEnabled)
}

func TestSendWhileInFlight(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()

	gate := make(chan struct{})
	f.api.mu.Lock()
	f.api.sendGate = gate
	f.api.sendResp = &site_client.SendResponse{Success: true, Message: &models.ChatMessage{ID: 1}}
	f.api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- f.session.Send(ctx, "first") }()

	require.Eventually(t, func() bool { return f.session.sending.Load() }, waitFor, tickEvery)
	assert.ErrorIs(t, f.session.Send(ctx, "second"), ErrSendInFlight)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"first"}, f.api.sent)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()
	f.api.setSnapshot(1, 2)
	require.NoError(t, f.session.Load(ctx))

	require.NoError(t, f.session.Delete(ctx, 1))
	assert.Equal(t, []int64{1}, f.api.deleted)
	assert.Equal(t, []int64{2}, f.feed.rendered())
	assert.Equal(t, 1, f.api.fetchCount())

	f.api.deleteErr = &site_client.APIError{Message: "Not allowed"}
	require.Error(t, f.session.Delete(ctx, 2))
	assert.Equal(t, []string{"Not allowed"}, f.notifier.shown)
	assert.Equal(t, []int64{2}, f.feed.rendered())
}

func TestDeleteDeclined(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	assert.ErrorIs(t, f.session.Delete(t.Context(), 1), ErrDeclined)
	assert.Empty(t, f.api.deleted)
}

func TestPanelStateIsPersisted(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()

	require.NoError(t, f.session.RestorePanel(ctx))
	assert.True(t, f.session.PanelOpen())

	open, err := f.session.TogglePanel(ctx)
	require.NoError(t, err)
	assert.False(t, open)
	assert.False(t, f.feed.panelOpen)

	v, ok, err := f.store.Get(ctx, PanelKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "false", v)

	// a second client on the same storage restores the closed panel
	other := NewSession(Deps{API: f.api, Feed: newRecordingFeed(), Store: f.store.Share(), Clock: f.clock})
	require.NoError(t, other.RestorePanel(ctx))
	assert.False(t, other.PanelOpen())

	require.NoError(t, f.session.OpenPanel(ctx))
	v, _, err = f.store.Get(ctx, PanelKey)
	require.NoError(t, err)
	assert.Equal(t, "true", v)
	require.NoError(t, other.RestorePanel(ctx))
	assert.True(t, other.PanelOpen())
}

func TestPanelOpensUnlessClosed(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	tests := []struct {
		name   string
		stored string
		set    bool
		want   bool
	}{
		{"nothing stored", "", false, true},
		{"closed", "false", true, false},
		{"open", "true", true, true},
		{"unrecognised value", "yes", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			if tt.set {
				require.NoError(t, f.store.Set(ctx, PanelKey, tt.stored))
			}
			require.NoError(t, f.session.RestorePanel(ctx))
			assert.Equal(t, tt.want, f.session.PanelOpen())
			assert.Equal(t, tt.want, f.feed.panelOpen)
		})
	}
}

func TestStartReloadsThenPollsOnInterval(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := t.Context()
	f.api.setSnapshot(1)

	require.NoError(t, f.session.Start(ctx))
	t.Cleanup(f.session.Stop)

	require.Eventually(t, func() bool { return f.api.fetchCount() == 1 }, waitFor, tickEvery)
	assert.Equal(t, []int64{1}, f.feed.rendered())

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.api.setSnapshot(1, 2)
	f.clock.Advance(PollInterval)
	require.Eventually(t, func() bool { return len(f.feed.rendered()) == 2 }, waitFor, tickEvery)

	f.session.Stop()
	assert.False(t, f.session.Running())
	fetches := f.api.fetchCount()
	f.clock.Advance(3 * PollInterval)
	time.Sleep(10 * tickEvery)
	assert.Equal(t, fetches, f.api.fetchCount())
}
