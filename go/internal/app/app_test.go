package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/donut/go/internal/chat"
	"github.com/mcdev12/donut/go/internal/config"
	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/storage"
	"github.com/mcdev12/donut/go/internal/toast"
)

const (
	waitFor   = time.Second
	tickEvery = time.Millisecond
)

type site struct {
	mu   sync.Mutex
	hits map[string]int
}

func (s *site) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	switch r.URL.Path {
	case "/chat/messages":
		io.WriteString(w, `{"success":true,"canDelete":false,"messages":[{"id":1,"userId":2,"username":"amy","content":"hi"}]}`)
	case "/chat/send":
		var req struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		io.WriteString(w, `{"success":true,"message":{"id":2,"userId":7,"username":"me","content":"`+req.Message+`"}}`)
	case "/chat/online":
		io.WriteString(w, `{"success":true,"online":3}`)
	case "/api/balance":
		io.WriteString(w, `{"success":true,"balance":250}`)
	case "/coinflip/list":
		io.WriteString(w, `{"coinflips":[]}`)
	default:
		http.NotFound(w, r)
	}
}

type feed struct {
	mu  sync.Mutex
	ids []int64
}

func (f *feed) Replace(messages []models.ChatMessage, canDelete bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = nil
	for _, m := range messages {
		f.ids = append(f.ids, m.ID)
	}
}

func (f *feed) Append(message models.ChatMessage, canDelete bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, message.ID)
}

func (f *feed) rendered() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64{}, f.ids...)
}

func (f *feed) Remove(int64) bool { return true }
func (f *feed) ShowSystem(chat.SystemLine) {}
func (f *feed) RemoveSystem(uuid.UUID) {}
func (f *feed) AtBottom() bool { return true }
func (f *feed) ScrollToBottom() {}
func (f *feed) SetOnline(int) {}
func (f *feed) SetInputEnabled(bool) {}
func (f *feed) ClearInput() {}
func (f *feed) SetPanelOpen(bool) {}
func (f *feed) Confirm(prompt string) bool { return true }
func (f *feed) Render(float64, string) {}
func (f *feed) Pulse() {}
func (f *feed) Mount(toast.Entry) {}
func (f *feed) Reveal(uuid.UUID) {}
func (f *feed) Hide(uuid.UUID) {}
func (f *feed) Unmount(uuid.UUID) {}

type fixture struct {
	site  *site
	feed  *feed
	app   *App
	api   *httptest.Server
	clock *clockwork.FakeClock
	store *storage.MemoryStore
}

func newFixture(t *testing.T, userID string) *fixture {
	t.Helper()
	s := &site{hits: make(map[string]int)}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.BaseURL = srv.URL
	cfg.UserID = userID
	cfg.RequestsPerSecond = 0
	require.NoError(t, cfg.Validate())

	f := &fixture{site: s, feed: &feed{}, clock: clockwork.NewFakeClock(), store: storage.NewMemoryStore()}
	a, err := New(cfg, f.store, Surfaces{
		Feed:      f.feed,
		Balance:   f.feed,
		Toasts:    f.feed,
		Confirmer: f.feed,
	}, f.clock)
	require.NoError(t, err)
	f.app = a

	f.api = httptest.NewServer(a.Router())
	t.Cleanup(f.api.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, f.api.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestNewRequiresSurfaces(t *testing.T) {
	t.Parallel()
	_, err := New(config.Default(), storage.NewMemoryStore(), Surfaces{}, nil)
	assert.Error(t, err)
}

func TestBalanceOverControlAPI(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "7")

	status, body := f.do(t, http.MethodPut, "/balance", `{"amount":100}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 100.0, body["balance"])

	status, body = f.do(t, http.MethodPost, "/balance/deduct", `{"amount":"30"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 70.0, body["balance"])
	assert.Equal(t, "$70", body["label"])

	status, _ = f.do(t, http.MethodPost, "/balance/add", `{"amount":"lots"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPost, "/balance/add", `{"amount":-5}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBalanceRequiresUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")

	status, _ := f.do(t, http.MethodGet, "/balance", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	_, err := f.app.Capabilities().Balance()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSendChatOverControlAPI(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "7")

	status, _ := f.do(t, http.MethodPost, "/chat/messages", `{"message":"hello"}`)
	require.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, []int64{2}, f.feed.rendered())

	status, _ = f.do(t, http.MethodPost, "/chat/messages", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPendingCoinflipOverControlAPI(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "7")

	status, _ := f.do(t, http.MethodPost, "/coinflips/42/pending", "")
	require.Equal(t, http.StatusNoContent, status)

	status, body := f.do(t, http.MethodPost, "/coinflips/42/notified", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["flipped"])

	status, body = f.do(t, http.MethodPost, "/coinflips/42/notified", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["flipped"])
}

func TestPanelToggleIsPersisted(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "7")

	status, body := f.do(t, http.MethodPost, "/chat/panel/toggle", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["open"])

	v, ok, err := f.store.Get(t.Context(), chat.PanelKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "false", v)

	status, body = f.do(t, http.MethodPost, "/chat/panel/toggle", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["open"])
}

func TestProfileWithoutSurface(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "7")

	status, _ := f.do(t, http.MethodPost, "/profiles/9/open", "")
	assert.Equal(t, http.StatusNotImplemented, status)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "7")

	status, _ := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)

	f.app.Capabilities().ShowNotification("hi", false)
	_, _ = f.do(t, http.MethodPost, "/chat/messages", `{"message":"hello"}`)

	resp, err := http.Get(f.api.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `donut_user_actions_total{action="chat_send",status="success"} 1`)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestRunStartsLoopsAndVisibilityGatesThem(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "7")
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(f.feed.rendered()) == 1 && mustBalance(t, f.app) == 250
	}, waitFor, tickEvery)
	assert.Equal(t, 1, f.site.count("/chat/messages"))
	assert.Equal(t, 1, f.site.count("/api/balance"))

	status, _ := f.do(t, http.MethodPut, "/visibility", `{"visible":false}`)
	require.Equal(t, http.StatusNoContent, status)
	assert.False(t, f.app.Capabilities().Visible())
	assert.False(t, f.app.chat.Running())
	assert.False(t, f.app.balance.Running())
	assert.False(t, f.app.coinflip.Running())

	f.app.Capabilities().SetVisible(true)
	require.Eventually(t, func() bool {
		return f.site.count("/chat/messages") == 2 && f.site.count("/api/balance") == 2
	}, waitFor, tickEvery)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
}

func mustBalance(t *testing.T, a *App) float64 {
	t.Helper()
	v, err := a.Capabilities().Balance()
	assert.NoError(t, err)
	return v
}
