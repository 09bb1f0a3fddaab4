// Package app wires the sync loops, their storage and the site client into
// one running client, and exposes what a renderer may do to it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/donut/go/clients/site_client"
	"github.com/mcdev12/donut/go/internal/balance"
	"github.com/mcdev12/donut/go/internal/chat"
	"github.com/mcdev12/donut/go/internal/coinflip"
	"github.com/mcdev12/donut/go/internal/config"
	"github.com/mcdev12/donut/go/internal/ledger"
	"github.com/mcdev12/donut/go/internal/metrics"
	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/storage"
	"github.com/mcdev12/donut/go/internal/toast"
	"github.com/mcdev12/donut/go/internal/visibility"
)

// ProfileOpener shows a user's profile, e.g. after a click on a chat author.
type ProfileOpener interface {
	OpenProfile(userID models.ID)
}

// Surfaces are the rendering collaborators. Feed, Toasts and Confirmer are
// required. Balance is only polled when a Balance display is attached and a
// user is signed in. A nil Alert shows join alerts as toasts.
type Surfaces struct {
	Feed      chat.Feed
	Balance   balance.Display
	Toasts    toast.Surface
	Alert     coinflip.Alert
	Confirmer chat.Confirmer
	Profiles  ProfileOpener
}

type App struct {
	// instanceID tells apart log lines of clients sharing a profile.
	instanceID string
	cfg        *config.Config
	client     *site_client.SiteClient
	store      storage.Store
	ledger     *ledger.Ledger
	toasts     *toast.Notifier
	chat       *chat.Session
	balance    *balance.Session
	coinflip   *coinflip.Watcher
	tracker    *visibility.Tracker
	profiles   ProfileOpener
	registry   *prometheus.Registry
}

// New builds the client. A nil clock means the real clock.
func New(cfg *config.Config, store storage.Store, surfaces Surfaces, clock clockwork.Clock) (*App, error) {
	if surfaces.Feed == nil || surfaces.Toasts == nil || surfaces.Confirmer == nil {
		return nil, errors.New("app: feed, toast and confirm surfaces are required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	client := site_client.NewSiteClient(cfg.BaseURL)
	client.SetTimeout(cfg.RequestTimeout)
	client.SetRateLimit(cfg.RequestsPerSecond, int(cfg.RequestsPerSecond)+1)
	if cfg.SessionCookie != "" {
		if err := client.SetCookie(cfg.SessionCookieName, cfg.SessionCookie); err != nil {
			return nil, fmt.Errorf("failed to set session cookie: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewPrometheusCollector(registry)

	a := &App{
		instanceID: uuid.NewString(),
		cfg:        cfg,
		client:     client,
		store:      store,
		ledger:     ledger.New(store, clock),
		toasts:     toast.NewNotifier(surfaces.Toasts, clock),
		tracker:    visibility.NewTracker(visibility.Visible),
		profiles:   surfaces.Profiles,
		registry:   registry,
	}

	a.chat = chat.NewSession(chat.Deps{
		API:       client,
		Feed:      surfaces.Feed,
		Confirmer: surfaces.Confirmer,
		Notifier:  a.toasts,
		Store:     store,
		Metrics:   collector,
		Clock:     clock,
		Interval:  cfg.Intervals.Chat,
	})

	user := cfg.User()
	if surfaces.Balance != nil && user.Authenticated() {
		a.balance = balance.NewSession(balance.Deps{
			API:      client,
			Display:  surfaces.Balance,
			Metrics:  collector,
			Clock:    clock,
			Interval: cfg.Intervals.Balance,
		})
	}

	alert := surfaces.Alert
	if alert == nil {
		alert = coinflip.ToastAlert{Toasts: a.toasts}
	}
	a.coinflip = coinflip.NewWatcher(coinflip.Deps{
		API:        client,
		Ledger:     a.ledger,
		Alert:      alert,
		Link:       client.CoinflipViewURL,
		UserID:     user.ID,
		Metrics:    collector,
		Clock:      clock,
		Interval:   cfg.Intervals.Coinflip,
		FirstCheck: cfg.Intervals.CoinflipFirstTick,
	})
	a.coinflip.SetLivePage(cfg.LivePage)

	return a, nil
}

// Run starts the loops and blocks until ctx is done, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.chat.RestorePanel(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to restore chat panel state")
	}

	for _, work := range a.loops() {
		if err := a.tracker.Bind(ctx, work); err != nil {
			a.tracker.StopAll()
			return fmt.Errorf("failed to start sync loops: %w", err)
		}
	}

	log.Info().
		Str("instance_id", a.instanceID).
		Str("base_url", a.cfg.BaseURL).
		Str("profile", a.cfg.Profile).
		Bool("balance", a.balance != nil).
		Msg("sync loops started")

	<-ctx.Done()
	a.tracker.StopAll()
	log.Info().Msg("sync loops stopped")
	return nil
}

func (a *App) loops() []visibility.Gated {
	loops := []visibility.Gated{a.chat, a.coinflip}
	if a.balance != nil {
		loops = append(loops, a.balance)
	}
	return loops
}

func (a *App) Capabilities() *Capabilities {
	return &Capabilities{app: a}
}

// Registry holds the client's metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}
