package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/npsb/npswitch/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Listener.Addr() != "0.0.0.0:5000" {
		t.Errorf("Listener.Addr() = %q, want %q", cfg.Listener.Addr(), "0.0.0.0:5000")
	}

	if cfg.Admin.Addr != ":8090" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":8090")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Codec.LengthEncoding != "bcd" {
		t.Errorf("Codec.LengthEncoding = %q, want %q", cfg.Codec.LengthEncoding, "bcd")
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
listener:
  host: "127.0.0.1"
  port: 6000
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
codec:
  length_encoding: "ascii"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Listener.Addr() != "127.0.0.1:6000" {
		t.Errorf("Listener.Addr() = %q, want %q", cfg.Listener.Addr(), "127.0.0.1:6000")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Codec.LengthEncoding != "ascii" {
		t.Errorf("Codec.LengthEncoding = %q, want %q", cfg.Codec.LengthEncoding, "ascii")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override listener.port and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
listener:
  port: 7000
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Listener.Port != 7000 {
		t.Errorf("Listener.Port = %d, want %d", cfg.Listener.Port, 7000)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Listener.Host != "0.0.0.0" {
		t.Errorf("Listener.Host = %q, want default %q", cfg.Listener.Host, "0.0.0.0")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Codec.LengthEncoding != "bcd" {
		t.Errorf("Codec.LengthEncoding = %q, want default %q", cfg.Codec.LengthEncoding, "bcd")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty listener host",
			modify: func(cfg *config.Config) {
				cfg.Listener.Host = ""
			},
			wantErr: config.ErrEmptyListenerHost,
		},
		{
			name: "zero listener port",
			modify: func(cfg *config.Config) {
				cfg.Listener.Port = 0
			},
			wantErr: config.ErrInvalidListenerPort,
		},
		{
			name: "out of range listener port",
			modify: func(cfg *config.Config) {
				cfg.Listener.Port = 99999
			},
			wantErr: config.ErrInvalidListenerPort,
		},
		{
			name: "invalid length encoding",
			modify: func(cfg *config.Config) {
				cfg.Codec.LengthEncoding = "hex"
			},
			wantErr: config.ErrInvalidLengthEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadEmptyPathSkipsFile(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Listener.Port != 5000 {
		t.Errorf("Listener.Port = %d, want default %d", cfg.Listener.Port, 5000)
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
listener:
  port: 5000
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NPSWITCH_LISTENER_PORT", "6000")
	t.Setenv("NPSWITCH_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Listener.Port != 6000 {
		t.Errorf("Listener.Port = %d, want %d (from env)", cfg.Listener.Port, 6000)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
listener:
  port: 5000
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NPSWITCH_METRICS_ADDR", ":9200")
	t.Setenv("NPSWITCH_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

func TestLoadEnvOverridesPeerLists(t *testing.T) {
	yamlContent := `
listener:
  port: 5000
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NPSWITCH_PEERS_ACQUIRERS", "10.0.0.1,10.0.0.2")
	t.Setenv("NPSWITCH_PEERS_ISSUERS", "10.0.1.1, 10.0.1.2")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	wantAcquirers := []string{"10.0.0.1", "10.0.0.2"}
	if !slices.Equal(cfg.Peers.Acquirers, wantAcquirers) {
		t.Errorf("Peers.Acquirers = %v, want %v", cfg.Peers.Acquirers, wantAcquirers)
	}

	wantIssuers := []string{"10.0.1.1", "10.0.1.2"}
	if !slices.Equal(cfg.Peers.Issuers, wantIssuers) {
		t.Errorf("Peers.Issuers = %v, want %v", cfg.Peers.Issuers, wantIssuers)
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "npswitch.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
