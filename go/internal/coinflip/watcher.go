// Package coinflip tells the creator of a coinflip when someone joins it,
// even when they are looking at another page.
//
// Games are tracked in the shared pending ledger. Every running client polls
// while it has unnotified entries; the first one to flip an entry's notified
// flag shows the alert, the others see the flag and stay quiet.
package coinflip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mcdev12/donut/go/clients/site_client"
	"github.com/mcdev12/donut/go/internal/ledger"
	"github.com/mcdev12/donut/go/internal/metrics"
	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/scheduler"
)

const (
	PollInterval = 3 * time.Second
	// FirstCheckDelay lets the rest of the client settle before the first list
	// request.
	FirstCheckDelay = time.Second
)

type API interface {
	Coinflips(ctx context.Context) ([]models.Coinflip, error)
}

type Deps struct {
	API    API
	Ledger *ledger.Ledger
	Alert  Alert
	// Link builds the click-through URL of a game. Defaults to the relative
	// view path.
	Link    func(gameID models.ID) string
	UserID  models.ID
	Metrics metrics.Collector
	Clock   clockwork.Clock
	// Interval and FirstCheck override PollInterval and FirstCheckDelay when
	// positive.
	Interval   time.Duration
	FirstCheck time.Duration
}

type Watcher struct {
	api     API
	ledger  *ledger.Ledger
	alert   Alert
	link    func(models.ID) string
	metrics metrics.Collector
	clock   clockwork.Clock
	task    *scheduler.Task

	mu       sync.Mutex
	userID   models.ID
	livePage bool

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func NewWatcher(deps Deps) *Watcher {
	w := &Watcher{
		api:     deps.API,
		ledger:  deps.Ledger,
		alert:   deps.Alert,
		link:    deps.Link,
		metrics: deps.Metrics,
		clock:   deps.Clock,
		userID:  deps.UserID,
	}
	if w.link == nil {
		w.link = func(id models.ID) string { return fmt.Sprintf(site_client.CoinflipViewPath, id) }
	}
	if w.metrics == nil {
		w.metrics = metrics.NoOpCollector{}
	}
	if w.clock == nil {
		w.clock = clockwork.NewRealClock()
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = PollInterval
	}
	firstCheck := deps.FirstCheck
	if firstCheck <= 0 {
		firstCheck = FirstCheckDelay
	}
	w.task = scheduler.NewTask(scheduler.Config{
		Name:      "coinflip",
		Interval:  interval,
		FirstTick: firstCheck,
		Warmup:    w.prune,
	}, w.poll, w.clock)

	return w
}

// Start prunes the ledger, schedules the first check and listens for ledger
// writes from other clients, which trigger an immediate check.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.task.Start(ctx); err != nil {
		return err
	}

	w.watchMu.Lock()
	defer w.watchMu.Unlock()
	if w.watchCancel != nil {
		return nil
	}
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.watchCancel, w.watchDone = cancel, done

	go func() {
		defer close(done)
		if err := w.ledger.Watch(watchCtx, w.task.Trigger); err != nil {
			log.Warn().Err(err).Msg("pending coinflip watch stopped")
		}
	}()
	return nil
}

func (w *Watcher) Stop() {
	w.watchMu.Lock()
	cancel, done := w.watchCancel, w.watchDone
	w.watchCancel, w.watchDone = nil, nil
	w.watchMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	w.task.Stop()
}

func (w *Watcher) Running() bool {
	return w.task.Running()
}

// SetLivePage marks whether this client is showing the coinflip page itself,
// which renders results live and needs no alert.
func (w *Watcher) SetLivePage(live bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.livePage = live
}

func (w *Watcher) SetUser(id models.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.userID = id
}

// Poll checks the pending games against the server list and returns how many
// alerts it showed.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	w.mu.Lock()
	userID, live := w.userID, w.livePage
	w.mu.Unlock()
	if live || userID.IsZero() {
		return 0, nil
	}

	if _, err := w.ledger.Prune(ctx); err != nil {
		return 0, err
	}
	pending, err := w.ledger.Pending(ctx)
	if err != nil {
		return 0, err
	}
	w.metrics.RecordLedgerSize(len(pending))

	if !lo.SomeBy(pending, func(e ledger.PendingEvent) bool { return !e.Notified }) {
		return 0, nil
	}

	games, err := w.api.Coinflips(ctx)
	if err != nil {
		return 0, err
	}

	byID := lo.KeyBy(pending, func(e ledger.PendingEvent) models.ID { return e.EventID })
	fired := 0
	for _, game := range games {
		entry, ok := byID[game.ID]
		if !ok {
			continue
		}

		if !entry.Notified && game.ResolvedFor(userID) {
			flipped, err := w.ledger.MarkNotified(ctx, game.ID)
			if err != nil {
				log.Warn().Err(err).Str("game_id", game.ID.String()).Msg("failed to mark coinflip notified")
				continue
			}
			// false means another client got there first
			if flipped {
				w.alert.Notify(NewNotification(game, w.link(game.ID)))
				w.metrics.RecordAlert()
				fired++
			}
		}

		if game.HasWinner() && !entry.Resolved() {
			if err := w.ledger.MarkResolved(ctx, game.ID); err != nil {
				log.Warn().Err(err).Str("game_id", game.ID.String()).Msg("failed to mark coinflip resolved")
			}
		}
	}
	return fired, nil
}

func (w *Watcher) prune(ctx context.Context) {
	if _, err := w.ledger.Prune(ctx); err != nil && ctx.Err() == nil {
		log.Debug().Err(err).Msg("failed to prune pending coinflips")
	}
}

func (w *Watcher) poll(ctx context.Context) {
	start := w.clock.Now()
	n, err := w.Poll(ctx)
	w.metrics.RecordPoll("coinflip", err == nil, w.clock.Since(start))
	if err != nil && ctx.Err() == nil {
		log.Debug().Err(err).Msg("coinflip check failed")
		return
	}
	if n > 0 {
		log.Info().Int("alerts", n).Msg("coinflip join alerts shown")
	}
}
