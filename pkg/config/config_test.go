package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/staticd/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_PartialConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "debug"

server:
  port: 9000
  static_dir: "`+yamlSafePath(dir)+`"
  workers: 8
  admission_timeout: 250ms
  read_buffer_size: 4KiB
  cache_enabled: false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.Port != 9000 || cfg.Server.Workers != 8 {
		t.Errorf("Explicit values not kept: port=%d workers=%d", cfg.Server.Port, cfg.Server.Workers)
	}
	if cfg.Server.QueueCapacity != 10 {
		t.Errorf("Expected default queue_capacity 10, got %d", cfg.Server.QueueCapacity)
	}
	if cfg.Server.AdmissionTimeout != 250*time.Millisecond {
		t.Errorf("Expected admission_timeout 250ms, got %v", cfg.Server.AdmissionTimeout)
	}
	if cfg.Server.ReadBufferSize != 4*bytesize.KiB {
		t.Errorf("Expected read_buffer_size 4KiB, got %v", cfg.Server.ReadBufferSize)
	}
	if cfg.Server.IsCacheEnabled() {
		t.Error("Expected cache_enabled false to be kept")
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Origin.Type != OriginDir {
		t.Errorf("Expected default origin 'dir', got %q", cfg.Origin.Type)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A missing file falls back to defaults so the server runs without setup.
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8080 {
		t.Errorf("Expected default listener 127.0.0.1:8080, got %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.Workers != 4 || cfg.Server.QueueCapacity != 10 {
		t.Errorf("Expected default pool 4/10, got %d/%d", cfg.Server.Workers, cfg.Server.QueueCapacity)
	}
	if !cfg.Server.IsCacheEnabled() {
		t.Error("Expected cache enabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STATICD_SERVER_WORKERS", "16")
	t.Setenv("STATICD_SERVER_ADMISSION_TIMEOUT", "2s")
	t.Setenv("STATICD_LOGGING_FORMAT", "json")

	configPath := writeConfig(t, "config.yaml", `
server:
  workers: 2
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Workers != 16 {
		t.Errorf("Expected env to override file (16), got %d", cfg.Server.Workers)
	}
	if cfg.Server.AdmissionTimeout != 2*time.Second {
		t.Errorf("Expected admission_timeout 2s from env, got %v", cfg.Server.AdmissionTimeout)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format json from env, got %q", cfg.Logging.Format)
	}
}

func TestLoad_EnvWithoutFile(t *testing.T) {
	t.Setenv("STATICD_SERVER_PORT", "9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999 from env, got %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  workers: -1
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "server.workers") {
		t.Errorf("Expected error to name server.workers, got: %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[server]
queue_capacity = 3
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}
	if cfg.Logging.Level != "WARN" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Server.QueueCapacity != 3 {
		t.Errorf("Expected queue_capacity 3, got %d", cfg.Server.QueueCapacity)
	}
}

func TestLoad_S3Origin(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
origin:
  type: S3
  s3:
    bucket: site
    region: eu-west-1
    key_prefix: public/
    force_path_style: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Origin.Type != OriginS3 {
		t.Errorf("Expected origin type normalized to s3, got %q", cfg.Origin.Type)
	}
	if cfg.Origin.S3.Bucket != "site" || cfg.Origin.S3.KeyPrefix != "public/" || !cfg.Origin.S3.ForcePathStyle {
		t.Errorf("Unexpected S3 config: %+v", cfg.Origin.S3)
	}
}

func TestMustLoad_MissingExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	_, err := MustLoad(path)
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
	if !strings.Contains(err.Error(), "staticd init") {
		t.Errorf("Expected init hint in error, got: %v", err)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := GetDefaultConfig()
	cfg.Server.Workers = 7
	cfg.Server.ReadBufferSize = 2 * bytesize.KiB

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 && os.PathSeparator == '/' {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Server.Workers != 7 || loaded.Server.ReadBufferSize != 2*bytesize.KiB {
		t.Errorf("Saved values not preserved: %+v", loaded.Server)
	}
}

func TestGetDefaultConfigPath_UsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "staticd", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if DefaultConfigExists() {
		t.Error("Expected no default config in a fresh directory")
	}
}
