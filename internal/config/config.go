// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads daemon configuration from a YAML file with
// BATON_* environment overrides. Precedence is env over file over
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	batonerrors "github.com/tombee/baton/pkg/errors"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	PublicServer PublicServerConfig `yaml:"public_server"`
	Auth         AuthConfig         `yaml:"auth"`
	Log          LogConfig          `yaml:"log"`
	Store        StoreConfig        `yaml:"store"`
	Engine       EngineConfig       `yaml:"engine"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Packs        PacksConfig        `yaml:"packs"`
}

// ServerConfig configures the management API listener.
type ServerConfig struct {
	// Addr is the TCP address the API binds to. Localhost by default;
	// expose it deliberately.
	// Environment: BATON_LISTEN_ADDR
	// Default: 127.0.0.1:9820
	Addr string `yaml:"addr"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// requests during graceful shutdown.
	// Environment: BATON_SHUTDOWN_TIMEOUT
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PublicServerConfig configures the anonymous public listener. It
// binds separately from the management API so shared workflows can be
// exposed while the control plane stays private.
type PublicServerConfig struct {
	// Enabled activates the public listener.
	// Environment: BATON_PUBLIC_ENABLED
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Addr is the TCP address for the public listener.
	// Environment: BATON_PUBLIC_ADDR
	// Default: :9821
	Addr string `yaml:"addr,omitempty"`

	// IPSalt keys the client address hashes stored with public runs.
	// Empty means a random per-process salt, which keeps hashes
	// unlinkable across restarts.
	// Environment: BATON_PUBLIC_IP_SALT
	IPSalt string `yaml:"ip_salt,omitempty"`
}

// AuthConfig configures API authentication.
type AuthConfig struct {
	// Enabled requires a bearer token on every management API request.
	// When false the daemon runs single-tenant under the default org.
	// Environment: BATON_AUTH_ENABLED
	// Default: false
	Enabled bool `yaml:"enabled"`

	// JWTSecret is the HS256 signing secret. Required when Enabled.
	// Environment: BATON_JWT_SECRET
	JWTSecret string `yaml:"jwt_secret,omitempty"`

	// Issuer is the expected token issuer claim. Empty skips the check.
	Issuer string `yaml:"issuer,omitempty"`

	// Audience is the expected token audience claim. Empty skips the
	// check.
	Audience string `yaml:"audience,omitempty"`

	// RequestsPerMinute caps each principal's request rate.
	// Environment: BATON_RATE_LIMIT_PER_MINUTE
	// Default: 60
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: BATON_LOG_LEVEL, LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: text
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// StoreConfig configures engine storage.
type StoreConfig struct {
	// Driver selects the backend: "sqlite" or "memory". The memory
	// driver loses everything on restart and suits tests only.
	// Environment: BATON_STORE_DRIVER
	// Default: sqlite
	Driver string `yaml:"driver"`

	// Path is the SQLite database file.
	// Environment: BATON_STORE_PATH
	// Default: <data dir>/baton.db
	Path string `yaml:"path,omitempty"`
}

// EngineConfig configures run execution.
type EngineConfig struct {
	// MaxConcurrentRuns caps runs executing at once in this process.
	// Environment: BATON_MAX_CONCURRENT_RUNS
	// Default: 10
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// DrainTimeout is how long shutdown waits for live runs before
	// giving up on a clean stop.
	// Environment: BATON_DRAIN_TIMEOUT
	// Default: 30s
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// ScheduleSyncInterval is how often the scheduler rescans the
	// store for schedule triggers.
	// Environment: BATON_SCHEDULE_SYNC_INTERVAL
	// Default: 30s
	ScheduleSyncInterval time.Duration `yaml:"schedule_sync_interval"`

	// DataDir holds run artifacts and the default database location.
	// Environment: BATON_DATA_DIR
	// Default: $XDG_DATA_HOME/baton or ~/.local/share/baton
	DataDir string `yaml:"data_dir,omitempty"`
}

// TracingConfig configures the OpenTelemetry provider.
type TracingConfig struct {
	// Enabled activates span export. Metrics are collected regardless.
	// Environment: BATON_TRACING_ENABLED
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this process in traces.
	// Default: baton
	ServiceName string `yaml:"service_name,omitempty"`

	// ServiceVersion is stamped on the trace resource.
	ServiceVersion string `yaml:"service_version,omitempty"`

	// Exporter selects the span exporter: "stdout", "otlp-grpc",
	// "otlp-http" or "none".
	// Environment: BATON_TRACE_EXPORTER
	// Default: none
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP receiver address for the otlp exporters.
	// Environment: BATON_TRACE_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS on the OTLP connection.
	Insecure bool `yaml:"insecure,omitempty"`

	// SampleRate is the fraction of runs to trace (0.0 - 1.0).
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// PacksConfig configures workflow file import.
type PacksConfig struct {
	// Dir is the directory of workflow YAML files loaded at startup.
	// Empty disables pack loading.
	// Environment: BATON_PACKS_DIR
	Dir string `yaml:"dir,omitempty"`

	// Watch re-imports files as they change. Dev-mode convenience.
	// Environment: BATON_PACKS_WATCH
	// Default: false
	Watch bool `yaml:"watch"`

	// Publish publishes each imported version immediately instead of
	// leaving drafts.
	// Environment: BATON_PACKS_PUBLISH
	// Default: false
	Publish bool `yaml:"publish"`

	// OrgID owns the imported workflows.
	// Environment: BATON_PACKS_ORG
	// Default: default
	OrgID string `yaml:"org_id,omitempty"`

	// MaxImportsPerMinute caps watcher-triggered imports. Zero means
	// no cap.
	MaxImportsPerMinute int `yaml:"max_imports_per_minute,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:9820",
			ShutdownTimeout: 10 * time.Second,
		},
		PublicServer: PublicServerConfig{
			Enabled: false,
			Addr:    ":9821",
		},
		Auth: AuthConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(dataDir, "baton.db"),
		},
		Engine: EngineConfig{
			MaxConcurrentRuns:    10,
			DrainTimeout:         30 * time.Second,
			ScheduleSyncInterval: 30 * time.Second,
			DataDir:              dataDir,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "baton",
			Exporter:    "none",
			SampleRate:  1.0,
		},
		Packs: PacksConfig{
			OrgID: "default",
		},
	}
}

// Load loads configuration from a YAML file and the environment.
// Environment variables take precedence over file values. An empty
// path uses only defaults and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &batonerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	// Zero values from minimal files fall back to defaults.
	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &batonerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// Save writes the configuration to path, creating the directory with
// owner-only permissions. The write is atomic via a temp-file rename.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyDefaults fills zero values so minimal config files work without
// naming every field.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if c.PublicServer.Addr == "" {
		c.PublicServer.Addr = defaults.PublicServer.Addr
	}
	if c.Auth.RequestsPerMinute == 0 {
		c.Auth.RequestsPerMinute = defaults.Auth.RequestsPerMinute
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Store.Driver == "" {
		c.Store.Driver = defaults.Store.Driver
	}
	if c.Engine.DataDir == "" {
		c.Engine.DataDir = defaults.Engine.DataDir
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.Engine.DataDir, "baton.db")
	}
	if c.Engine.MaxConcurrentRuns == 0 {
		c.Engine.MaxConcurrentRuns = defaults.Engine.MaxConcurrentRuns
	}
	if c.Engine.DrainTimeout == 0 {
		c.Engine.DrainTimeout = defaults.Engine.DrainTimeout
	}
	if c.Engine.ScheduleSyncInterval == 0 {
		c.Engine.ScheduleSyncInterval = defaults.Engine.ScheduleSyncInterval
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}
	if c.Packs.OrgID == "" {
		c.Packs.OrgID = defaults.Packs.OrgID
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("BATON_LISTEN_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("BATON_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Server.ShutdownTimeout = d
		}
	}

	if val := os.Getenv("BATON_PUBLIC_ENABLED"); val != "" {
		c.PublicServer.Enabled = envBool(val)
	}
	if val := os.Getenv("BATON_PUBLIC_ADDR"); val != "" {
		c.PublicServer.Addr = val
	}
	if val := os.Getenv("BATON_PUBLIC_IP_SALT"); val != "" {
		c.PublicServer.IPSalt = val
	}

	if val := os.Getenv("BATON_AUTH_ENABLED"); val != "" {
		c.Auth.Enabled = envBool(val)
	}
	if val := os.Getenv("BATON_JWT_SECRET"); val != "" {
		c.Auth.JWTSecret = val
	}
	if val := os.Getenv("BATON_RATE_LIMIT_PER_MINUTE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Auth.RequestsPerMinute = n
		}
	}

	if val := os.Getenv("BATON_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = envBool(val)
	}

	if val := os.Getenv("BATON_STORE_DRIVER"); val != "" {
		c.Store.Driver = strings.ToLower(val)
	}
	if val := os.Getenv("BATON_STORE_PATH"); val != "" {
		c.Store.Path = val
	}

	if val := os.Getenv("BATON_MAX_CONCURRENT_RUNS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.MaxConcurrentRuns = n
		}
	}
	if val := os.Getenv("BATON_DRAIN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Engine.DrainTimeout = d
		}
	}
	if val := os.Getenv("BATON_SCHEDULE_SYNC_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Engine.ScheduleSyncInterval = d
		}
	}
	if val := os.Getenv("BATON_DATA_DIR"); val != "" {
		c.Engine.DataDir = val
	}

	if val := os.Getenv("BATON_TRACING_ENABLED"); val != "" {
		c.Tracing.Enabled = envBool(val)
	}
	if val := os.Getenv("BATON_TRACE_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("BATON_TRACE_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}

	if val := os.Getenv("BATON_PACKS_DIR"); val != "" {
		c.Packs.Dir = val
	}
	if val := os.Getenv("BATON_PACKS_WATCH"); val != "" {
		c.Packs.Watch = envBool(val)
	}
	if val := os.Getenv("BATON_PACKS_PUBLISH"); val != "" {
		c.Packs.Publish = envBool(val)
	}
	if val := os.Getenv("BATON_PACKS_ORG"); val != "" {
		c.Packs.OrgID = val
	}
}

// Validate checks that the configuration is usable, collecting every
// problem rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}

	if c.PublicServer.Enabled && c.PublicServer.Addr == "" {
		errs = append(errs, "public_server.addr is required when public_server.enabled is true")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required when auth.enabled is true (set BATON_JWT_SECRET)")
	}
	if c.Auth.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("auth.requests_per_minute must be non-negative, got %d", c.Auth.RequestsPerMinute))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for the sqlite driver")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be one of [sqlite, memory], got %q", c.Store.Driver))
	}

	if c.Engine.MaxConcurrentRuns <= 0 {
		errs = append(errs, fmt.Sprintf("engine.max_concurrent_runs must be positive, got %d", c.Engine.MaxConcurrentRuns))
	}
	if c.Engine.DrainTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("engine.drain_timeout must be positive, got %v", c.Engine.DrainTimeout))
	}
	if c.Engine.ScheduleSyncInterval <= 0 {
		errs = append(errs, fmt.Sprintf("engine.schedule_sync_interval must be positive, got %v", c.Engine.ScheduleSyncInterval))
	}

	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp-grpc", "otlp-http":
	default:
		errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [none, stdout, otlp-grpc, otlp-http], got %q", c.Tracing.Exporter))
	}
	if c.Tracing.Enabled && strings.HasPrefix(c.Tracing.Exporter, "otlp") && c.Tracing.Endpoint == "" {
		errs = append(errs, fmt.Sprintf("tracing.endpoint is required for the %s exporter", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}

	if c.Packs.Watch && c.Packs.Dir == "" {
		errs = append(errs, "packs.dir is required when packs.watch is true")
	}
	if c.Packs.MaxImportsPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("packs.max_imports_per_minute must be non-negative, got %d", c.Packs.MaxImportsPerMinute))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func envBool(val string) bool {
	return val == "1" || strings.EqualFold(val, "true")
}
