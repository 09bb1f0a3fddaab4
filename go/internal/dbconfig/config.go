package dbconfig

import (
	"errors"
	"net/url"
	"strconv"
)

// Config holds Postgres connection settings for the postgres storage
// backend. DSN wins over the individual fields when set. Fields carry no
// envconfig tags so a bare $USER or $HOST is never picked up.
type Config struct {
	DSN      string `yaml:"-"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

func Default() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Database: "donut",
		SSLMode:  "disable",
	}
}

// URL returns the Postgres connection URL.
func (c Config) URL() string {
	if c.DSN != "" {
		return c.DSN
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host,
		Path:   "/" + c.Database,
	}
	if c.Port != 0 {
		u.Host = c.Host + ":" + strconv.Itoa(c.Port)
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Check reports which setting is missing when neither a DSN nor a host and
// database are configured.
func (c Config) Check() error {
	if c.DSN != "" {
		return nil
	}
	if c.Host == "" {
		return errors.New("host is required without a dsn")
	}
	if c.Database == "" {
		return errors.New("database is required without a dsn")
	}
	return nil
}
