package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/donut/go/internal/sqlutil"
)

const (
	postgresNotifyChannel = "client_storage_changed"
	postgresPingInterval  = 90 * time.Second

	postgresSchema = `CREATE TABLE IF NOT EXISTS client_storage (
	key        TEXT PRIMARY KEY,
	value      JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
)

// PostgresStore keeps values in a JSONB table. Every write sends a NOTIFY
// carrying the key, which Watch picks up with a pq.Listener.
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create storage table: %w", err)
	}
	return &PostgresStore{db: db, dsn: dsn}, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value pqtype.NullRawMessage
	err := p.db.QueryRowContext(ctx, `SELECT value FROM client_storage WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !value.Valid {
		return "", false, nil
	}
	return string(value.RawMessage), true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key, value string) error {
	if !json.Valid([]byte(value)) {
		return fmt.Errorf("%s: %w", key, ErrInvalidValue)
	}
	raw := pqtype.NullRawMessage{RawMessage: json.RawMessage(value), Valid: true}

	return sqlutil.Run(ctx, p.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO client_storage (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, raw)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
		return notify(ctx, tx, key)
	})
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	return sqlutil.Run(ctx, p.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM client_storage WHERE key = $1`, key)
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return notify(ctx, tx, key)
	})
}

// notify is delivered when the surrounding transaction commits.
func notify(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, postgresNotifyChannel, key); err != nil {
		return fmt.Errorf("failed to notify %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Watch(ctx context.Context, key string, onChange func()) error {
	l := pq.NewListener(
		p.dsn,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("storage listener event")
			}
		},
	)
	defer l.Close()

	if err := l.Listen(postgresNotifyChannel); err != nil {
		return fmt.Errorf("failed to listen to channel: %w", err)
	}

	pingTicker := time.NewTicker(postgresPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case note := <-l.Notify:
			// nil means the connection was re-established and notifications may
			// have been missed
			if note == nil || note.Extra == key {
				onChange()
			}
		case <-pingTicker.C:
			if err := l.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping storage listener")
			}
		}
	}
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
