package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ssd-technologies/photoshare/internal/storage"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg, err := load("", envMap(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Storage.UploadDir != filepath.Join("data", "uploads") {
		t.Errorf("UploadDir = %q", cfg.Storage.UploadDir)
	}
	if cfg.Storage.DSN != filepath.Join("data", "photoshare.db") {
		t.Errorf("DSN = %q", cfg.Storage.DSN)
	}
	if cfg.Uploads.MaxBytes != 10<<20 {
		t.Errorf("MaxBytes = %d", cfg.Uploads.MaxBytes)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photoshare.yaml")
	content := `
server:
  port: 8080
storage:
  data_dir: /srv/photos
uploads:
  max_bytes: 2048
auth:
  session_ttl: 2h
log:
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := load("", envMap(map[string]string{
		EnvConfigPath:              path,
		"PORT":                     "9090",
		"PHOTOSHARE_COOKIE_SECURE": "true",
		"PHOTOSHARE_LOG_LEVEL":     "debug",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want env override 9090", cfg.Server.Port)
	}
	if !cfg.Server.CookieSecure {
		t.Error("CookieSecure should be true")
	}
	if cfg.Storage.DataDir != "/srv/photos" {
		t.Errorf("DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.UploadDir != "/srv/photos/uploads" {
		t.Errorf("UploadDir = %q", cfg.Storage.UploadDir)
	}
	if cfg.Uploads.MaxBytes != 2048 {
		t.Errorf("MaxBytes = %d", cfg.Uploads.MaxBytes)
	}
	if cfg.Auth.SessionTTL != 2*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.Auth.SessionTTL)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	// Unset fields keep their defaults.
	if cfg.RateLimit.LoginPerMinute != 10 {
		t.Errorf("LoginPerMinute = %d", cfg.RateLimit.LoginPerMinute)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_BadEnv(t *testing.T) {
	if _, err := load("", envMap(map[string]string{"PORT": "eighty"})); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestLoad_PostgresKeepsEmptyDSN(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{"PHOTOSHARE_DB_DRIVER": storage.DriverPostgres}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.DSN != "" {
		t.Errorf("DSN = %q, want empty", cfg.Storage.DSN)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "storage.dsn") {
		t.Errorf("Validate err = %v, want storage.dsn error", err)
	}
}

func TestSetDataDir(t *testing.T) {
	cfg, err := load("", envMap(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.SetDataDir("/var/lib/photoshare")
	if cfg.Storage.UploadDir != filepath.Join("/var/lib/photoshare", "uploads") {
		t.Errorf("UploadDir = %q", cfg.Storage.UploadDir)
	}
	if cfg.Storage.DSN != filepath.Join("/var/lib/photoshare", "photoshare.db") {
		t.Errorf("DSN = %q", cfg.Storage.DSN)
	}

	cfg.Storage.UploadDir = "/mnt/photos"
	cfg.SetDataDir("/tmp/other")
	if cfg.Storage.UploadDir != "/mnt/photos" {
		t.Errorf("explicit UploadDir changed to %q", cfg.Storage.UploadDir)
	}
	if cfg.Storage.DSN != filepath.Join("/tmp/other", "photoshare.db") {
		t.Errorf("DSN = %q", cfg.Storage.DSN)
	}
}

func TestTrustedProxyPrefixes(t *testing.T) {
	cfg := Default()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.5", "::1"}
	prefixes, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		t.Fatalf("TrustedProxyPrefixes: %v", err)
	}
	want := []string{"10.0.0.0/8", "192.168.1.5/32", "::1/128"}
	if len(prefixes) != len(want) {
		t.Fatalf("prefixes = %v", prefixes)
	}
	for i, p := range prefixes {
		if p.String() != want[i] {
			t.Errorf("prefix %d = %s, want %s", i, p, want[i])
		}
	}

	cfg.Server.TrustedProxies = []string{"not-an-ip"}
	if _, err := cfg.TrustedProxyPrefixes(); err == nil {
		t.Error("expected error for bad proxy")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"zero max bytes", func(c *Config) { c.Uploads.MaxBytes = 0 }, "uploads.max_bytes"},
		{"zero max pixels", func(c *Config) { c.Uploads.MaxPixels = 0 }, "uploads.max_pixels"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/99"} }, "server.trusted_proxies"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero ttl", func(c *Config) { c.Auth.SessionTTL = 0 }, "auth.session_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.fillDerived()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"component":"test"`) {
		t.Errorf("unexpected output: %s", out)
	}
}
