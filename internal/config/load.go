// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PassGate Contributors

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/passgate/passgate/internal/xdg"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PASSGATE_"

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// Path is the config file. Empty means the XDG default, which may be
	// absent. An explicit path must exist.
	Path string
	// Flags holds flags registered with BindFlags. Only flags set on the
	// command line override other layers.
	Flags *pflag.FlagSet
	// Environment replaces the process environment when non-nil.
	Environment map[string]string
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":             "server.addr",
	"cookie-name":      "session.cookie_name",
	"cookie-secure":    "session.cookie_secure",
	"session-ttl":      "session.ttl",
	"identity-store":   "store.identities",
	"session-store":    "store.sessions",
	"sqlite-path":      "store.sqlite_path",
	"database-url":     "store.database_url",
	"redis-url":        "store.redis_url",
	"log-format":       "log.format",
	"log-level":        "log.level",
	"metrics-addr":     "observability.addr",
	"tracing-endpoint": "tracing.endpoint",
}

// BindFlags registers the config override flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "web listen address")
	fs.String("cookie-name", d.Session.CookieName, "session cookie name")
	fs.Bool("cookie-secure", d.Session.CookieSecure, "mark the session cookie Secure")
	fs.Duration("session-ttl", d.Session.TTL, "idle session lifetime")
	fs.String("identity-store", d.Store.Identities, "identity store: memory, sqlite or postgres")
	fs.String("session-store", d.Store.Sessions, "session store: memory, redis or postgres")
	fs.String("sqlite-path", d.Store.SQLitePath, "sqlite identity database path")
	fs.String("database-url", "", "postgres connection URL")
	fs.String("redis-url", "", "redis connection URL")
	fs.String("log-format", d.Log.Format, "log format: json or text")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn or error")
	fs.String("metrics-addr", d.Observability.Addr, "metrics and health listen address")
	fs.String("tracing-endpoint", "", "OTLP HTTP endpoint URL")
}

// Load builds the effective configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg, err := load(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(opts LoadOptions) (*Config, error) {
	ko := koanf.New(".")
	if err := ko.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	path, err := resolvePath(opts.Path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadFile(ko, path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := ko.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "file").With("path", path).Wrap(err)
	}

	envOpts := env.Options{Prefix: EnvPrefix, Environment: opts.Environment}
	if err := env.ParseWithOptions(cfg, envOpts); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if opts.Flags != nil {
		if err := applyFlags(cfg, opts.Flags); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// resolvePath returns the file to load, or "" when the default file is absent.
func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", oops.Code("CONFIG_NOT_FOUND").With("path", path).Wrap(err)
		}
		return path, nil
	}
	path = xdg.ConfigFile()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

func loadFile(ko *koanf.Koanf, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	if err := ko.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("layer", "file").With("path", path).Wrap(err)
	}
	return nil
}

// applyFlags overlays flags changed on the command line onto cfg.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	ko := koanf.New(".")
	if err := ko.Load(structs.Provider(*cfg, "koanf"), nil); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
	}
	provider := posflag.ProviderWithFlag(fs, ".", ko, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := ko.Load(provider, nil); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
	}
	if err := ko.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
	}
	return nil
}
