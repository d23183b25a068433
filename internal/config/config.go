// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

// Package config loads PassGate configuration.
//
// Values are layered from lowest to highest precedence: built-in defaults,
// the YAML config file, PASSGATE_* environment variables, then command-line
// flags. The file is checked against the generated JSON Schema before it is
// decoded.
package config

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/logging"
	"github.com/passgate/passgate/internal/session"
	"github.com/passgate/passgate/internal/xdg"
)

// Identity store backends.
const (
	IdentityStoreMemory   = "memory"
	IdentityStoreSQLite   = "sqlite"
	IdentityStorePostgres = "postgres"
)

// Session store backends.
const (
	SessionStoreMemory   = "memory"
	SessionStoreRedis    = "redis"
	SessionStorePostgres = "postgres"
)

// DefaultCookieName is the session cookie used when none is configured.
const DefaultCookieName = "passgate_session"

// Config is the complete runtime configuration.
type Config struct {
	Requires      string              `json:"requires,omitempty" yaml:"requires,omitempty" koanf:"requires" env:"REQUIRES" jsonschema:"description=Semver constraint the passgate version must satisfy"`
	Server        ServerConfig        `json:"server" yaml:"server" koanf:"server" envPrefix:"SERVER_"`
	Session       SessionConfig       `json:"session" yaml:"session" koanf:"session" envPrefix:"SESSION_"`
	Store         StoreConfig         `json:"store" yaml:"store" koanf:"store" envPrefix:"STORE_"`
	Hash          auth.Argon2Params   `json:"hash" yaml:"hash" koanf:"hash" envPrefix:"HASH_"`
	Log           LogConfig           `json:"log" yaml:"log" koanf:"log" envPrefix:"LOG_"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability" koanf:"observability" envPrefix:"OBSERVABILITY_"`
	Tracing       TracingConfig       `json:"tracing" yaml:"tracing" koanf:"tracing" envPrefix:"TRACING_"`
}

// ServerConfig configures the web listener.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr" koanf:"addr" env:"ADDR" jsonschema:"description=Web listen address"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" koanf:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" jsonschema:"type=string,description=Graceful shutdown deadline such as 10s"`
}

// SessionConfig configures the session cookie and lifetime.
type SessionConfig struct {
	CookieName   string        `json:"cookie_name" yaml:"cookie_name" koanf:"cookie_name" env:"COOKIE_NAME" jsonschema:"minLength=1"`
	CookieSecure bool          `json:"cookie_secure" yaml:"cookie_secure" koanf:"cookie_secure" env:"COOKIE_SECURE"`
	TTL          time.Duration `json:"ttl" yaml:"ttl" koanf:"ttl" env:"TTL" jsonschema:"type=string,description=Idle session lifetime such as 24h"`
}

// StoreConfig selects the identity and session backends.
type StoreConfig struct {
	Identities  string `json:"identities" yaml:"identities" koanf:"identities" env:"IDENTITIES" jsonschema:"enum=memory,enum=sqlite,enum=postgres"`
	Sessions    string `json:"sessions" yaml:"sessions" koanf:"sessions" env:"SESSIONS" jsonschema:"enum=memory,enum=redis,enum=postgres"`
	SQLitePath  string `json:"sqlite_path" yaml:"sqlite_path" koanf:"sqlite_path" env:"SQLITE_PATH"`
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty" koanf:"database_url" env:"DATABASE_URL"`
	RedisURL    string `json:"redis_url,omitempty" yaml:"redis_url,omitempty" koanf:"redis_url" env:"REDIS_URL"`
	RedisPrefix string `json:"redis_prefix" yaml:"redis_prefix" koanf:"redis_prefix" env:"REDIS_PREFIX"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Format string `json:"format" yaml:"format" koanf:"format" env:"FORMAT" jsonschema:"enum=json,enum=text"`
	Level  string `json:"level" yaml:"level" koanf:"level" env:"LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// ObservabilityConfig configures the metrics and health listener.
type ObservabilityConfig struct {
	Addr string `json:"addr" yaml:"addr" koanf:"addr" env:"ADDR" jsonschema:"description=Metrics and health listen address; empty disables it"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty" koanf:"endpoint" env:"ENDPOINT" jsonschema:"description=OTLP HTTP endpoint URL; empty disables tracing"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" koanf:"sample_ratio" env:"SAMPLE_RATIO" jsonschema:"minimum=0,maximum=1"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			CookieName: DefaultCookieName,
			TTL:        session.DefaultTTL,
		},
		Store: StoreConfig{
			Identities:  IdentityStoreSQLite,
			Sessions:    SessionStoreMemory,
			SQLitePath:  xdg.IdentityDB(),
			RedisPrefix: session.DefaultRedisPrefix,
		},
		Hash: auth.DefaultArgon2Params(),
		Log: LogConfig{
			Format: logging.FormatJSON,
			Level:  "info",
		},
		Observability: ObservabilityConfig{
			Addr: "127.0.0.1:9100",
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return invalid("server.addr", "must not be empty")
	case c.Server.ShutdownTimeout <= 0:
		return invalid("server.shutdown_timeout", "must be positive")
	case !validCookieName(c.Session.CookieName):
		return invalid("session.cookie_name", "must be a non-empty cookie token")
	case c.Session.TTL <= 0:
		return invalid("session.ttl", "must be positive")
	}

	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.Hash.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "hash").Wrap(err)
	}

	if !slices.Contains([]string{logging.FormatJSON, logging.FormatText}, c.Log.Format) {
		return invalid("log.format", "must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "log.level").Wrap(err)
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return invalid("tracing.sample_ratio", "must be between 0 and 1")
	}
	if c.Requires != "" {
		if _, err := semver.NewConstraint(c.Requires); err != nil {
			return oops.Code("CONFIG_INVALID").With("field", "requires").Wrap(err)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	s := c.Store
	switch s.Identities {
	case IdentityStoreMemory:
	case IdentityStoreSQLite:
		if s.SQLitePath == "" {
			return invalid("store.sqlite_path", "is required for the sqlite identity store")
		}
	case IdentityStorePostgres:
		if s.DatabaseURL == "" {
			return invalid("store.database_url", "is required for the postgres identity store")
		}
	default:
		return invalid("store.identities", "must be memory, sqlite or postgres")
	}

	switch s.Sessions {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if s.RedisURL == "" {
			return invalid("store.redis_url", "is required for the redis session store")
		}
	case SessionStorePostgres:
		if s.DatabaseURL == "" {
			return invalid("store.database_url", "is required for the postgres session store")
		}
	default:
		return invalid("store.sessions", "must be memory, redis or postgres")
	}
	return nil
}

// UsesPostgres reports whether either store is backed by postgres.
func (c *Config) UsesPostgres() bool {
	return c.Store.Identities == IdentityStorePostgres || c.Store.Sessions == SessionStorePostgres
}

// CheckRequires verifies that version satisfies the requires constraint.
// Builds without a semver version, such as "dev", are not checked.
func (c *Config) CheckRequires(version string) error {
	if c.Requires == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(c.Requires)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "requires").Wrap(err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil //nolint:nilerr // unversioned development build
	}
	if !constraint.Check(v) {
		return oops.Code("CONFIG_VERSION_MISMATCH").
			With("requires", c.Requires).
			With("version", v.String()).
			Errorf("passgate %s does not satisfy %q", v, c.Requires)
	}
	return nil
}

// Redacted returns a copy with URL passwords masked.
func (c Config) Redacted() Config {
	c.Store.DatabaseURL = redactURL(c.Store.DatabaseURL)
	c.Store.RedisURL = redactURL(c.Store.RedisURL)
	return c
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	return data, nil
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// validCookieName accepts RFC 6265 token characters.
func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsFunc(name, func(r rune) bool {
		return r <= ' ' || r >= 0x7f || strings.ContainsRune(`()<>@,;:\"/[]?={}`, r)
	})
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s %s", field, msg)
}
