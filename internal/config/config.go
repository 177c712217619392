// Package config manages signalrouter daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete signalrouter configuration.
type Config struct {
	Device  DeviceConfig  `koanf:"device"`
	Control ControlConfig `koanf:"control"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Router  RouterConfig  `koanf:"router"`
	Links   []LinkConfig  `koanf:"links"`
}

// DeviceConfig identifies this device on the signal graph and the ports
// its links advertise.
type DeviceConfig struct {
	// Name is the device's own name, used as the first path component of
	// every local signal ("/name/signal").
	Name string `koanf:"name"`
	// AdminAddr is the administrative-bus listen address advertised to
	// peers for link subscription traffic.
	AdminAddr string `koanf:"admin_addr"`
	// DataAddr is the UDP data-plane listen address advertised to peers
	// for bundled signal updates.
	DataAddr string `koanf:"data_addr"`
}

// ControlConfig holds the control API server configuration.
type ControlConfig struct {
	// Addr is the HTTP listen address (e.g., ":7070").
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

// RouterConfig holds the router's own tunables.
type RouterConfig struct {
	// HistoryCapacity is H, the fixed number of samples each history
	// ring retains per instance.
	HistoryCapacity int `koanf:"history_capacity"`

	// SyncTimeout bounds how long a link may go without a clock-sync
	// response before the liveness sweep considers it stale.
	SyncTimeout time.Duration `koanf:"sync_timeout"`

	// QueryInterval is the period of the periodic query-timer goroutine
	// that re-requests current values from every OUTGOING connection's
	// destination link.
	QueryInterval time.Duration `koanf:"query_interval"`

	// MaxBundleSize is a datagram size limit derived from the transport's
	// MTU. Validate checks it is at least 64;
	// no other component reads it, and bundles are sent whatever their
	// encoded size.
	MaxBundleSize int `koanf:"max_bundle_size"`
}

// LinkConfig describes a declarative peer link from the configuration
// file. Entries are checked by Validate; the daemon does not apply them
// to the router on startup or on SIGHUP reload, so link addresses still
// come from admin-bus discovery.
type LinkConfig struct {
	// Device is the remote device's name.
	Device string `koanf:"device"`

	// Host is the remote system's address.
	Host string `koanf:"host"`

	// AdminAddr is the remote device's administrative-bus address.
	AdminAddr string `koanf:"admin_addr"`

	// DataAddr is the remote device's UDP data-plane address.
	DataAddr string `koanf:"data_addr"`
}

// LinkKey returns a unique identifier for the link based on device name.
// Used by Validate to reject duplicate link entries.
func (lc LinkConfig) LinkKey() string {
	return lc.Device
}

// DataUDPAddr parses DataAddr as a netip.AddrPort.
func (lc LinkConfig) DataUDPAddr() (netip.AddrPort, error) {
	if lc.DataAddr == "" {
		return netip.AddrPort{}, fmt.Errorf("link data_addr: %w", ErrInvalidLinkDataAddr)
	}
	addr, err := netip.ParseAddrPort(lc.DataAddr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse link data_addr %q: %w", lc.DataAddr, err)
	}
	return addr, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			Addr: ":7070",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Router: RouterConfig{
			HistoryCapacity: 8,
			SyncTimeout:     30 * time.Second,
			QueryInterval:   60 * time.Second,
			MaxBundleSize:   1472, // 1500 MTU minus IP/UDP headers.
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for signalrouter
// configuration. Variables are named SIGNALROUTER_<section>_<key>, e.g.,
// SIGNALROUTER_CONTROL_ADDR.
const envPrefix = "SIGNALROUTER_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (SIGNALROUTER_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	SIGNALROUTER_CONTROL_ADDR   -> control.addr
//	SIGNALROUTER_METRICS_ADDR   -> metrics.addr
//	SIGNALROUTER_METRICS_PATH   -> metrics.path
//	SIGNALROUTER_LOG_LEVEL      -> log.level
//	SIGNALROUTER_LOG_FORMAT     -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// SIGNALROUTER_CONTROL_ADDR -> control.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
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

// envKeyMapper transforms SIGNALROUTER_CONTROL_ADDR -> control.addr.
// Strips the SIGNALROUTER_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"control.addr":            defaults.Control.Addr,
		"metrics.addr":            defaults.Metrics.Addr,
		"metrics.path":            defaults.Metrics.Path,
		"log.level":               defaults.Log.Level,
		"log.format":              defaults.Log.Format,
		"router.history_capacity": defaults.Router.HistoryCapacity,
		"router.sync_timeout":     defaults.Router.SyncTimeout.String(),
		"router.query_interval":   defaults.Router.QueryInterval.String(),
		"router.max_bundle_size":  defaults.Router.MaxBundleSize,
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
	// ErrEmptyDeviceName indicates the device has no name.
	ErrEmptyDeviceName = errors.New("device.name must not be empty")

	// ErrEmptyControlAddr indicates the control API listen address is empty.
	ErrEmptyControlAddr = errors.New("control.addr must not be empty")

	// ErrInvalidHistoryCapacity indicates the history capacity is out of range.
	ErrInvalidHistoryCapacity = errors.New("router.history_capacity must be >= 1")

	// ErrInvalidSyncTimeout indicates the sync timeout is invalid.
	ErrInvalidSyncTimeout = errors.New("router.sync_timeout must be > 0")

	// ErrInvalidQueryInterval indicates the query interval is invalid.
	ErrInvalidQueryInterval = errors.New("router.query_interval must be > 0")

	// ErrInvalidMaxBundleSize indicates the max bundle size is too small
	// to hold even an empty bundle header.
	ErrInvalidMaxBundleSize = errors.New("router.max_bundle_size must be >= 64")

	// ErrInvalidLinkDataAddr indicates a link has an invalid data address.
	ErrInvalidLinkDataAddr = errors.New("link data address is invalid")

	// ErrEmptyLinkDevice indicates a declarative link has no device name.
	ErrEmptyLinkDevice = errors.New("link device must not be empty")

	// ErrDuplicateLinkKey indicates two links share the same device name.
	ErrDuplicateLinkKey = errors.New("duplicate link key")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Device.Name == "" {
		return ErrEmptyDeviceName
	}

	if cfg.Control.Addr == "" {
		return ErrEmptyControlAddr
	}

	if cfg.Router.HistoryCapacity < 1 {
		return ErrInvalidHistoryCapacity
	}

	if cfg.Router.SyncTimeout <= 0 {
		return ErrInvalidSyncTimeout
	}

	if cfg.Router.QueryInterval <= 0 {
		return ErrInvalidQueryInterval
	}

	if cfg.Router.MaxBundleSize < 64 {
		return ErrInvalidMaxBundleSize
	}

	if err := validateLinks(cfg.Links); err != nil {
		return err
	}

	return nil
}

// validateLinks checks each declarative link entry for correctness.
func validateLinks(links []LinkConfig) error {
	seen := make(map[string]struct{}, len(links))

	for i, lc := range links {
		if lc.Device == "" {
			return fmt.Errorf("links[%d]: %w", i, ErrEmptyLinkDevice)
		}

		if lc.DataAddr != "" {
			if _, err := lc.DataUDPAddr(); err != nil {
				return fmt.Errorf("links[%d]: %w", i, err)
			}
		}

		key := lc.LinkKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("links[%d] key %q: %w", i, key, ErrDuplicateLinkKey)
		}
		seen[key] = struct{}{}
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
