// Daybook - Offline-First Sync Client for the Daybook Mood Journal
// Copyright 2026 A. Velikov (avelikov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelikov/daybook

// Package config loads daybookd's configuration from layered sources:
// built-in defaults, an optional YAML file, then environment variables.
// Precedence: ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/avelikov/daybook/internal/validation"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"daybook.yaml",
	"daybook.yml",
	"/etc/daybook/config.yaml",
	"/etc/daybook/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "DAYBOOK_CONFIG"

// envPrefix namespaces the environment variables daybookd reads.
const envPrefix = "DAYBOOK_"

// Config is daybookd's full configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Cache   CacheConfig   `koanf:"cache"`
	Gateway GatewayConfig `koanf:"gateway"`
	Sync    SyncConfig    `koanf:"sync"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig points at the journal server.
type ServerConfig struct {
	// URL is the journal server base URL.
	URL string `koanf:"url" validate:"required,url"`

	// Timeout bounds each request to the server.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`

	// BearerToken enables the legacy header-auth flow when set. The
	// normal flow is the session cookie obtained via sign-in.
	BearerToken string `koanf:"bearer_token"`

	// ProbeInterval is how often the connectivity monitor pings the
	// server's health endpoint.
	ProbeInterval time.Duration `koanf:"probe_interval" validate:"min=0"`
}

// StoreConfig configures the local durable store.
type StoreConfig struct {
	// Path is the Badger directory holding cached entries and the
	// outbox.
	Path string `koanf:"path" validate:"required"`

	// SyncWrites forces fsync per write. Off by default; the store is
	// a cache plus outbox, not the system of record.
	SyncWrites bool `koanf:"sync_writes"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval" validate:"min=0"`
}

// CacheConfig tunes the in-memory read layer.
type CacheConfig struct {
	// MemoTTL is the read memoization and deduplication window.
	MemoTTL time.Duration `koanf:"memo_ttl" validate:"min=0"`
}

// GatewayConfig configures the local HTTP gateway the UI talks to.
type GatewayConfig struct {
	// Listen is the address the gateway binds, e.g. "127.0.0.1:8320".
	Listen string `koanf:"listen" validate:"required"`

	// CORSOrigins lists origins allowed to call the gateway.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is requests per RateLimitWindow per client IP.
	// Zero disables rate limiting.
	RateLimitReqs int `koanf:"rate_limit_reqs" validate:"min=0"`

	// RateLimitWindow is the rate limit window.
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"min=0"`

	// Timeout bounds gateway request handling.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

// SyncConfig configures outbox replay.
type SyncConfig struct {
	// RequestTimeout bounds each individual replay request.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"min=0"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format is "json" or "console".
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`

	// Caller adds file:line to log events.
	Caller bool `koanf:"caller"`
}

// defaultConfig returns the built-in defaults. They are applied first,
// then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:           "http://127.0.0.1:8000",
			Timeout:       15 * time.Second,
			ProbeInterval: 30 * time.Second,
		},
		Store: StoreConfig{
			Path:       "/data/daybook",
			SyncWrites: false,
			GCInterval: 10 * time.Minute,
		},
		Cache: CacheConfig{
			MemoTTL: 5 * time.Second,
		},
		Gateway: GatewayConfig{
			Listen:          "127.0.0.1:8320",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			Timeout:         60 * time.Second,
		},
		Sync: SyncConfig{
			RequestTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file
// and DAYBOOK_* environment variables, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path
// skips the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// DAYBOOK_SERVER_URL -> server.url, DAYBOOK_GATEWAY_LISTEN ->
	// gateway.listen, and so on.
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c)
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists paths parsed as comma-separated slices when
// they arrive through environment variables.
var sliceConfigPaths = []string{
	"gateway.cors_origins",
}

// processSliceFields converts comma-separated env values to slices for
// the known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps DAYBOOK_SECTION_FIELD to section.field. The
// first underscore after the prefix separates the section; the rest of
// the name keeps its underscores, matching the koanf tags.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	return parts[0] + "." + parts[1]
}
