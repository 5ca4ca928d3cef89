// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package config loads SDK-wide settings — credentials, endpoint URLs, cache
// paths and retry tuning — the way an embedding application configures the
// client pipeline. Layered the same way as the rest of the ambient stack:
// struct defaults, then an optional YAML file, then environment variables.
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
)

// DefaultConfigPaths lists the paths searched for a config file, in priority order.
var DefaultConfigPaths = []string{
	"olp-sdk.yaml",
	"olp-sdk.yml",
	"/etc/olp-sdk/config.yaml",
}

// ConfigPathEnvVar overrides the search path for the config file.
const ConfigPathEnvVar = "OLP_SDK_CONFIG_PATH"

// Config is the top-level configuration surface for the SDK's request pipeline.
type Config struct {
	Auth    AuthConfig    `koanf:"auth"`
	Lookup  LookupConfig  `koanf:"lookup"`
	Cache   CacheConfig   `koanf:"cache"`
	Client  ClientConfig  `koanf:"client"`
	Logging LoggingConfig `koanf:"logging"`
}

// AuthConfig configures the OAuth2 client-credentials token provider.
type AuthConfig struct {
	TokenEndpointURL string        `koanf:"token_endpoint_url"`
	ClientID         string        `koanf:"client_id"`
	ClientSecret     string        `koanf:"client_secret"`
	Scope            string        `koanf:"scope"`
	MinimumValidity  time.Duration `koanf:"minimum_validity"`
	UseSystemTime    bool          `koanf:"use_system_time"`
}

// LookupConfig configures the API lookup client's fallback endpoints.
type LookupConfig struct {
	PlatformLookupURL string `koanf:"platform_lookup_url"`
	ResourceLookupURL string `koanf:"resource_lookup_url"`
}

// CacheConfig mirrors DefaultCache's configuration surface.
type CacheConfig struct {
	MaxMemoryBytes          uint64 `koanf:"max_memory_bytes"`
	DiskPathMutable         string `koanf:"disk_path_mutable"`
	DiskPathProtected       string `koanf:"disk_path_protected"`
	MaxDiskBytes            uint64 `koanf:"max_disk_bytes"`
	MaxValueSize            uint64 `koanf:"max_value_size"`
	EvictionPolicy          string `koanf:"eviction_policy"` // "none" | "lru"
	PropagateAllCacheErrors bool   `koanf:"propagate_all_cache_errors"`
}

// ClientConfig tunes the request executor's retry and coalescing behavior.
type ClientConfig struct {
	MaxAttempts         uint          `koanf:"max_attempts"`
	InitialBackoff      time.Duration `koanf:"initial_backoff"`
	TimeoutPerAttempt   time.Duration `koanf:"timeout_per_attempt"`
	CoalesceGraceWindow time.Duration `koanf:"coalesce_grace_window"`
}

// LoggingConfig configures the package-wide logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Default returns a Config populated with sensible defaults for every field
// the SDK needs to run without an embedding application supplying overrides.
func Default() *Config {
	return &Config{
		Auth: AuthConfig{
			MinimumValidity: 5 * time.Minute,
			UseSystemTime:   true,
		},
		Cache: CacheConfig{
			MaxMemoryBytes: 64 << 20,
			MaxDiskBytes:   1 << 30,
			MaxValueSize:   10 << 20,
			EvictionPolicy: "lru",
		},
		Client: ClientConfig{
			MaxAttempts:         3,
			InitialBackoff:      200 * time.Millisecond,
			TimeoutPerAttempt:   30 * time.Second,
			CoalesceGraceWindow: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers struct defaults, an optional YAML config file and environment
// variables (highest priority) into a single Config, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("OLP_SDK_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that a Config is internally consistent enough to build a
// client pipeline from. It does not check network reachability.
func (c *Config) Validate() error {
	if c.Auth.TokenEndpointURL != "" {
		if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			return fmt.Errorf("auth: client_id and client_secret are required when token_endpoint_url is set")
		}
	}
	if c.Cache.EvictionPolicy != "" && c.Cache.EvictionPolicy != "none" && c.Cache.EvictionPolicy != "lru" {
		return fmt.Errorf("cache: eviction_policy must be %q or %q, got %q", "none", "lru", c.Cache.EvictionPolicy)
	}
	if c.Client.MaxAttempts == 0 {
		return fmt.Errorf("client: max_attempts must be >= 1")
	}
	return nil
}

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

// envMappings maps environment variable suffixes (after the OLP_SDK_ prefix,
// lowercased) to their dotted koanf config path, mirroring the explicit
// mapping style used for legacy environment variables elsewhere in the stack.
var envMappings = map[string]string{
	"auth_token_endpoint_url": "auth.token_endpoint_url",
	"auth_client_id":          "auth.client_id",
	"auth_client_secret":      "auth.client_secret",
	"auth_scope":              "auth.scope",
	"auth_minimum_validity":   "auth.minimum_validity",
	"auth_use_system_time":    "auth.use_system_time",

	"lookup_platform_lookup_url": "lookup.platform_lookup_url",
	"lookup_resource_lookup_url": "lookup.resource_lookup_url",

	"cache_max_memory_bytes":            "cache.max_memory_bytes",
	"cache_disk_path_mutable":           "cache.disk_path_mutable",
	"cache_disk_path_protected":         "cache.disk_path_protected",
	"cache_max_disk_bytes":              "cache.max_disk_bytes",
	"cache_max_value_size":              "cache.max_value_size",
	"cache_eviction_policy":             "cache.eviction_policy",
	"cache_propagate_all_cache_errors":  "cache.propagate_all_cache_errors",

	"client_max_attempts":          "client.max_attempts",
	"client_initial_backoff":       "client.initial_backoff",
	"client_timeout_per_attempt":   "client.timeout_per_attempt",
	"client_coalesce_grace_window": "client.coalesce_grace_window",

	"logging_level":  "logging.level",
	"logging_format": "logging.format",
	"logging_caller": "logging.caller",
}

// envTransformFunc maps OLP_SDK_AUTH_CLIENT_ID -> auth.client_id via the
// explicit table above, falling back to a best-effort dotted guess for any
// variable not listed so new fields aren't silently unreadable.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "OLP_SDK_"))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 2 {
		return parts[0] + "." + parts[1]
	}
	return key
}
