// Package config loads client settings from defaults, an optional YAML file
// and DONUT_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/donut/go/internal/dbconfig"
	"github.com/mcdev12/donut/go/internal/models"
	"github.com/mcdev12/donut/go/internal/storage"
)

// EnvPrefix prefixes every environment variable, e.g. DONUT_BASE_URL.
const EnvPrefix = "DONUT"

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level" split_words:"true"`

	BaseURL           string `yaml:"base_url" envconfig:"BASE_URL"`
	SessionCookie     string `yaml:"-" envconfig:"SESSION_COOKIE"`
	SessionCookieName string `yaml:"session_cookie_name" envconfig:"SESSION_COOKIE_NAME"`
	UserID            string `yaml:"user_id" envconfig:"USER_ID"`
	// Profile namespaces stored state; clients sharing a profile share the
	// pending coinflip ledger and panel state.
	Profile string `yaml:"profile"`

	ControlAddr string `yaml:"control_addr" envconfig:"CONTROL_ADDR"`
	// LivePage marks the client as showing the coinflip page, which
	// suppresses join alerts.
	LivePage bool `yaml:"live_page" envconfig:"LIVE_PAGE"`

	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND"`
	RequestTimeout    time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`

	Intervals Intervals     `yaml:"intervals" envconfig:"INTERVAL"`
	Storage   StorageConfig `yaml:"storage" envconfig:"STORAGE"`
}

type Intervals struct {
	Chat              time.Duration `yaml:"chat"`
	Balance           time.Duration `yaml:"balance"`
	Coinflip          time.Duration `yaml:"coinflip"`
	CoinflipFirstTick time.Duration `yaml:"coinflip_first_check" envconfig:"COINFLIP_FIRST_CHECK"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`

	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"-" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" envconfig:"REDIS_DB"`

	NATSURL    string `yaml:"nats_url" envconfig:"NATS_URL"`
	NATSBucket string `yaml:"nats_bucket" envconfig:"NATS_BUCKET"`

	Postgres dbconfig.Config `yaml:"postgres" envconfig:"POSTGRES"`

	ConnectAttempts uint          `yaml:"connect_attempts" envconfig:"CONNECT_ATTEMPTS"`
	ConnectDelay    time.Duration `yaml:"connect_delay" envconfig:"CONNECT_DELAY"`
}

func Default() *Config {
	return &Config{
		Env:               "dev",
		LogLevel:          "info",
		BaseURL:           "http://localhost:3000",
		SessionCookieName: "sid",
		Profile:           "default",
		ControlAddr:       "127.0.0.1:8787",
		RequestsPerSecond: 5,
		RequestTimeout:    30 * time.Second,
		Intervals: Intervals{
			Chat:              5 * time.Second,
			Balance:           3 * time.Second,
			Coinflip:          3 * time.Second,
			CoinflipFirstTick: time.Second,
		},
		Storage: StorageConfig{
			Backend:         storage.BackendFile,
			Dir:             ".donut",
			RedisAddr:       "localhost:6379",
			NATSURL:         "nats://127.0.0.1:4222",
			NATSBucket:      "donut",
			Postgres:        dbconfig.Default(),
			ConnectAttempts: 5,
			ConnectDelay:    time.Second,
		},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("DONUT_BASE_URL must be an http(s) url, got %q", c.BaseURL)
	}
	if !profilePattern.MatchString(c.Profile) {
		return fmt.Errorf("DONUT_PROFILE must match %s", profilePattern)
	}
	if c.SessionCookie != "" && c.SessionCookieName == "" {
		return errors.New("DONUT_SESSION_COOKIE_NAME is required with a session cookie")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("DONUT_REQUESTS_PER_SECOND must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("DONUT_REQUEST_TIMEOUT must be greater than 0")
	}

	intervals := map[string]time.Duration{
		"CHAT":                 c.Intervals.Chat,
		"BALANCE":              c.Intervals.Balance,
		"COINFLIP":             c.Intervals.Coinflip,
		"COINFLIP_FIRST_CHECK": c.Intervals.CoinflipFirstTick,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("DONUT_INTERVAL_%s must be greater than 0", name)
		}
	}

	return c.Storage.validate()
}

func (s StorageConfig) validate() error {
	switch s.Backend {
	case storage.BackendMemory:
	case storage.BackendFile:
		if s.Dir == "" {
			return errors.New("DONUT_STORAGE_DIR is required for file storage")
		}
	case storage.BackendRedis:
		if s.RedisAddr == "" {
			return errors.New("DONUT_STORAGE_REDIS_ADDR is required for redis storage")
		}
	case storage.BackendNATS:
		if s.NATSURL == "" || s.NATSBucket == "" {
			return errors.New("DONUT_STORAGE_NATS_URL and DONUT_STORAGE_NATS_BUCKET are required for nats storage")
		}
	case storage.BackendPostgres:
		if err := s.Postgres.Check(); err != nil {
			return fmt.Errorf("DONUT_STORAGE_POSTGRES: %w", err)
		}
	default:
		return fmt.Errorf("DONUT_STORAGE_BACKEND %q is not one of memory, file, redis, nats, postgres", s.Backend)
	}
	if s.ConnectAttempts == 0 {
		return errors.New("DONUT_STORAGE_CONNECT_ATTEMPTS must be greater than 0")
	}
	return nil
}

func (c *Config) User() models.User {
	return models.User{ID: models.ID(c.UserID)}
}

// StorageOptions maps the settings onto the storage package, scoped to the
// profile.
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Backend:   c.Storage.Backend,
		Namespace: c.Profile,
		FileDir:   c.Storage.Dir,
		Redis: storage.RedisConfig{
			Addr:     c.Storage.RedisAddr,
			Password: c.Storage.RedisPassword,
			DB:       c.Storage.RedisDB,
			PoolSize: 4,
		},
		NATS: storage.NATSConfig{
			URL:           c.Storage.NATSURL,
			Bucket:        c.Storage.NATSBucket,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		PostgresDSN:     c.Storage.Postgres.URL(),
		ConnectAttempts: c.Storage.ConnectAttempts,
		ConnectDelay:    c.Storage.ConnectDelay,
	}
}
