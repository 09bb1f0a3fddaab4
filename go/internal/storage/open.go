package storage

import (
	"context"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/rs/zerolog/log"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend   string
	Namespace string

	FileDir     string
	Redis       RedisConfig
	NATS        NATSConfig
	PostgresDSN string

	ConnectAttempts uint
	ConnectDelay    time.Duration
}

// Open connects the configured backend, retrying the connection so the client
// can start before its storage server is up. The returned store is scoped to
// cfg.Namespace.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case BackendMemory, "":
		store = NewMemoryStore()
	case BackendFile:
		store, err = NewFileStore(cfg.FileDir)
	case BackendRedis, BackendNATS, BackendPostgres:
		store, err = connect(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("backend", cfg.Backend).
		Str("namespace", cfg.Namespace).
		Msg("storage opened")

	return WithNamespace(store, cfg.Namespace), nil
}

func connect(ctx context.Context, cfg Config) (Store, error) {
	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	var store Store
	err := retry.New(
		retry.Attempts(attempts),
		retry.Delay(cfg.ConnectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		var err error
		switch cfg.Backend {
		case BackendRedis:
			store, err = NewRedisStore(ctx, cfg.Redis)
		case BackendNATS:
			store, err = NewNATSStore(ctx, cfg.NATS)
		case BackendPostgres:
			store, err = NewPostgresStore(ctx, cfg.PostgresDSN)
		}
		if err != nil {
			log.Warn().Err(err).Str("backend", cfg.Backend).Msg("storage connect failed")
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s storage: %w", cfg.Backend, err)
	}
	return store, nil
}
