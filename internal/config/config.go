// Package config manages npswitch daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/npsb/npswitch/internal/catalog"
	"github.com/npsb/npswitch/internal/field"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete npswitch configuration.
type Config struct {
	Listener ListenerConfig `koanf:"listener"`
	Admin    AdminConfig    `koanf:"admin"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Codec    CodecConfig    `koanf:"codec"`
	Peers    PeersConfig    `koanf:"peers"`
	Trigger  TriggerConfig  `koanf:"trigger"`
	Sample   SampleConfig   `koanf:"sample"`
}

// ListenerConfig holds the TCP listener configuration acquirer and issuer
// endpoints connect to.
type ListenerConfig struct {
	// Host is the local address to bind to (e.g., "0.0.0.0").
	Host string `koanf:"host"`
	// Port is the TCP port to listen on.
	Port int `koanf:"port"`
}

// Addr returns the listener's "host:port" bind address.
func (l ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// AdminConfig holds the HTTP JSON admin façade configuration.
type AdminConfig struct {
	// Addr is the HTTP listen address (e.g., ":8090").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// CodecConfig holds the process-wide ISO 8583 encoder mode.
type CodecConfig struct {
	// LengthEncoding selects how LLVAR/LLLVAR length prefixes are
	// rendered: "ascii" or "bcd".
	LengthEncoding string `koanf:"length_encoding"`
}

// EncoderMode returns the field.EncoderMode this configuration selects.
// Validate must have already confirmed LengthEncoding is "ascii" or "bcd".
func (c CodecConfig) EncoderMode() field.EncoderMode {
	if strings.ToLower(c.LengthEncoding) == "ascii" {
		return field.EncoderMode{LengthEncoding: catalog.ASCII}
	}
	return field.EncoderMode{LengthEncoding: catalog.BCD}
}

// PeersConfig declares the configured acquirer/issuer address sets used by
// role classification, alongside the first-connected-wins fallback.
type PeersConfig struct {
	// Acquirers lists peer hosts that always classify as acquirers.
	Acquirers []string `koanf:"acquirers"`
	// Issuers lists peer hosts that always classify as issuers.
	Issuers []string `koanf:"issuers"`
}

// TriggerConfig holds the file-based operator injection path.
type TriggerConfig struct {
	// File is the path polled for mtime changes. Empty disables the
	// trigger entirely.
	File string `koanf:"file"`
}

// SampleConfig holds the fixed fields used to synthesize the demo 0100
// request the trigger path sends.
type SampleConfig struct {
	PAN    string `koanf:"pan"`
	Amount string `koanf:"amount"`
	RRN    string `koanf:"rrn"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listener: ListenerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Admin: AdminConfig{
			Addr: ":8090",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Codec: CodecConfig{
			LengthEncoding: "bcd",
		},
		Sample: SampleConfig{
			PAN:    "0000950000000000",
			Amount: "000015600000",
			RRN:    "200107000608",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for npswitch configuration.
// Variables are named NPSWITCH_<section>_<key>, e.g., NPSWITCH_LISTENER_PORT.
const envPrefix = "NPSWITCH_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NPSWITCH_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults. An empty path skips the
// file layer, so only defaults and environment overrides apply; a non-empty
// path that cannot be read is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envValueMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms NPSWITCH_LISTENER_PORT -> listener.port.
// Strips the NPSWITCH_ prefix, lowercases, and replaces the first
// underscore with a dot, leaving remaining underscores (e.g. within
// "length_encoding") intact.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	idx := strings.Index(s, "_")
	if idx < 0 {
		return s
	}
	return s[:idx] + "." + s[idx+1:]
}

// listValuedKeys are the mapped koanf keys whose env values are
// comma-separated host lists rather than scalars.
var listValuedKeys = map[string]bool{
	"peers.acquirers": true,
	"peers.issuers":   true,
}

// envValueMapper maps both key and value: NPSWITCH_PEERS_ACQUIRERS=
// "10.0.0.1,10.0.0.2" becomes key "peers.acquirers" with a []string value,
// so it unmarshals into PeersConfig.Acquirers instead of a single string.
func envValueMapper(key, value string) (string, any) {
	mappedKey := envKeyMapper(key)
	if listValuedKeys[mappedKey] {
		return mappedKey, splitEnvList(value)
	}
	return mappedKey, value
}

// splitEnvList splits a comma-separated env value into a trimmed,
// non-empty host list.
func splitEnvList(value string) []string {
	parts := strings.Split(value, ",")
	hosts := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			hosts = append(hosts, p)
		}
	}
	return hosts
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"listener.host":         defaults.Listener.Host,
		"listener.port":         defaults.Listener.Port,
		"admin.addr":            defaults.Admin.Addr,
		"metrics.addr":          defaults.Metrics.Addr,
		"metrics.path":          defaults.Metrics.Path,
		"log.level":             defaults.Log.Level,
		"log.format":            defaults.Log.Format,
		"codec.length_encoding": defaults.Codec.LengthEncoding,
		"sample.pan":            defaults.Sample.PAN,
		"sample.amount":         defaults.Sample.Amount,
		"sample.rrn":            defaults.Sample.RRN,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyListenerHost indicates the listener host is empty.
	ErrEmptyListenerHost = errors.New("listener.host must not be empty")

	// ErrInvalidListenerPort indicates the listener port is out of range.
	ErrInvalidListenerPort = errors.New("listener.port must be between 1 and 65535")

	// ErrInvalidLengthEncoding indicates codec.length_encoding is neither
	// "ascii" nor "bcd".
	ErrInvalidLengthEncoding = errors.New("codec.length_encoding must be ascii or bcd")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Listener.Host == "" {
		return ErrEmptyListenerHost
	}
	if cfg.Listener.Port < 1 || cfg.Listener.Port > 65535 {
		return ErrInvalidListenerPort
	}
	switch strings.ToLower(cfg.Codec.LengthEncoding) {
	case "ascii", "bcd":
	default:
		return ErrInvalidLengthEncoding
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
