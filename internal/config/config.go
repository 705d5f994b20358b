// Package config loads photoshare configuration.
//
// Values are resolved in order: built-in defaults, the YAML file named by
// --config or PHOTOSHARE_CONFIG (optional), then a small set of environment
// overrides. Command-line flags are applied last by the binaries themselves.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ssd-technologies/photoshare/internal/credential"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "PHOTOSHARE_CONFIG"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Workers   WorkersConfig   `yaml:"workers"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Port is the TCP port to listen on. Default: 3000
	Port int `yaml:"port"`
	// Host is the interface to bind. Empty binds all interfaces.
	Host string `yaml:"host"`
	// CookieSecure marks the session cookie Secure. Enable behind TLS.
	CookieSecure bool `yaml:"cookie_secure"`
	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustedProxies lists addresses or CIDRs of reverse proxies whose
	// X-Forwarded-For header identifies the client. Empty trusts none.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// StorageConfig configures the database and the content directory.
type StorageConfig struct {
	// DataDir holds the SQLite database and, unless UploadDir is set, the uploads.
	DataDir string `yaml:"data_dir"`
	// UploadDir is the flat content directory. Default: <data_dir>/uploads
	UploadDir string `yaml:"upload_dir"`
	// Driver is sqlite, sqlite3 or postgres. Default: sqlite
	Driver string `yaml:"driver"`
	// DSN is the database path or connection string. Default: <data_dir>/photoshare.db
	DSN string `yaml:"dsn"`
	// MaxOpenConns caps the connection pool. Zero leaves it unbounded.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// UploadsConfig bounds uploads and thumbnails.
type UploadsConfig struct {
	// MaxBytes is the largest accepted file. Default: 10 MiB
	MaxBytes int64 `yaml:"max_bytes"`
	// ThumbnailSize is the bounding box edge in pixels. Default: 320
	ThumbnailSize int `yaml:"thumbnail_size"`
	// ThumbnailCache is the number of thumbnails kept in memory. Default: 256
	ThumbnailCache int `yaml:"thumbnail_cache"`
	// MaxPixels caps width*height of an image before it is decoded for a
	// thumbnail. Default: 50 000 000
	MaxPixels int64 `yaml:"max_pixels"`
}

// AuthConfig configures sessions and password hashing.
type AuthConfig struct {
	// SessionTTL is the fixed lifetime of a session. Default: 24h
	SessionTTL time.Duration     `yaml:"session_ttl"`
	Argon2     credential.Params `yaml:"argon2"`
}

// RateLimitConfig configures the per-client token buckets.
type RateLimitConfig struct {
	// LoginPerMinute limits login attempts per client IP. Default: 10
	LoginPerMinute int `yaml:"login_per_minute"`
	// UploadPerMinute limits uploads per user. Default: 30
	UploadPerMinute int `yaml:"upload_per_minute"`
}

// WorkersConfig configures background maintenance.
type WorkersConfig struct {
	// SessionSweepInterval is how often expired sessions are dropped. Default: 5m
	SessionSweepInterval time.Duration `yaml:"session_sweep_interval"`
	// OrphanSweepInterval is how often unreferenced files are removed. Default: 1h
	OrphanSweepInterval time.Duration `yaml:"orphan_sweep_interval"`
	// OrphanGrace is the minimum age of a file before it counts as orphaned. Default: 1h
	OrphanGrace time.Duration `yaml:"orphan_grace"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`
	// Format is text or json. Default: text
	Format string `yaml:"format"`
}

// Default returns the configuration used before any file or override.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: "data",
			Driver:  storage.DriverSQLite,
		},
		Uploads: UploadsConfig{
			MaxBytes:       10 << 20,
			ThumbnailSize:  320,
			ThumbnailCache: 256,
			MaxPixels:      50_000_000,
		},
		Auth: AuthConfig{
			SessionTTL: 24 * time.Hour,
			Argon2:     credential.DefaultParams,
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute:  10,
			UploadPerMinute: 30,
		},
		Workers: WorkersConfig{
			SessionSweepInterval: 5 * time.Minute,
			OrphanSweepInterval:  time.Hour,
			OrphanGrace:          time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the file at path (or the one
// named by PHOTOSHARE_CONFIG when path is empty) and environment overrides.
// A missing path is not an error; a named file that cannot be read is.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path == "" {
		path, _ = lookup(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.fillDerived()
	return cfg, nil
}

// loadFile merges a YAML file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnv applies the supported environment overrides.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("PHOTOSHARE_DATA_DIR"); ok && v != "" {
		c.Storage.DataDir = v
	}
	if v, ok := lookup("PHOTOSHARE_DB_DRIVER"); ok && v != "" {
		c.Storage.Driver = v
	}
	if v, ok := lookup("PHOTOSHARE_DB_DSN"); ok && v != "" {
		c.Storage.DSN = v
	}
	if v, ok := lookup("PHOTOSHARE_COOKIE_SECURE"); ok && v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PHOTOSHARE_COOKIE_SECURE: %w", err)
		}
		c.Server.CookieSecure = secure
	}
	if v, ok := lookup("PHOTOSHARE_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// fillDerived resolves paths that default relative to DataDir.
func (c *Config) fillDerived() {
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = filepath.Join(c.Storage.DataDir, "uploads")
	}
	if c.Storage.DSN == "" && c.Storage.Driver != storage.DriverPostgres {
		c.Storage.DSN = filepath.Join(c.Storage.DataDir, "photoshare.db")
	}
}

// SetDataDir moves DataDir to dir. Paths that were derived from the old data
// directory follow it; explicitly configured ones are kept.
func (c *Config) SetDataDir(dir string) {
	old := c.Storage.DataDir
	if c.Storage.UploadDir == filepath.Join(old, "uploads") {
		c.Storage.UploadDir = ""
	}
	if c.Storage.DSN == filepath.Join(old, "photoshare.db") {
		c.Storage.DSN = ""
	}
	c.Storage.DataDir = dir
	c.fillDerived()
}

// TrustedProxyPrefixes parses Server.TrustedProxies. A bare address is
// treated as a single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range c.Server.TrustedProxies {
		s = strings.TrimSpace(s)
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// StorageOptions returns the options for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:       c.Storage.Driver,
		DSN:          c.Storage.DSN,
		MaxOpenConns: c.Storage.MaxOpenConns,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverSQLite3, storage.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite, sqlite3 or postgres, got %q", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}
	if c.Storage.UploadDir == "" {
		errs = append(errs, errors.New("storage.upload_dir is required"))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, errors.New("uploads.max_bytes must be positive"))
	}
	if c.Uploads.MaxPixels <= 0 {
		errs = append(errs, errors.New("uploads.max_pixels must be positive"))
	}
	if c.Uploads.ThumbnailSize <= 0 {
		errs = append(errs, errors.New("uploads.thumbnail_size must be positive"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth.session_ttl must be positive"))
	}
	if c.RateLimit.LoginPerMinute <= 0 || c.RateLimit.UploadPerMinute <= 0 {
		errs = append(errs, errors.New("rate_limit values must be positive"))
	}
	if c.Workers.SessionSweepInterval <= 0 || c.Workers.OrphanSweepInterval <= 0 {
		errs = append(errs, errors.New("workers intervals must be positive"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}
