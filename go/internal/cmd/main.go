package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/donut/go/internal/app"
	"github.com/mcdev12/donut/go/internal/config"
	clog "github.com/mcdev12/donut/go/internal/log"
	"github.com/mcdev12/donut/go/internal/storage"
)

func main() {
	envErr := godotenv.Load()

	configPath := flag.String("config", os.Getenv("DONUT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the chat feed
	clog.Init(cfg.Env, cfg.LogLevel, os.Stderr)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("donut exited")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return err
	}
	defer store.Close()

	console := newConsole(os.Stdout, os.Stdin)
	a, err := app.New(cfg, store, app.Surfaces{
		Feed:      console,
		Balance:   console,
		Toasts:    console,
		Alert:     console,
		Confirmer: console,
		Profiles:  console,
	}, nil)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(ctx)
	})
	if cfg.ControlAddr != "" {
		srv := a.Server(cfg.ControlAddr)
		g.Go(func() error {
			return serve(ctx, srv)
		})
	}
	g.Go(func() error {
		return console.Run(ctx, a.Capabilities())
	})

	err = g.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}
