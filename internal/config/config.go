// Package config loads netstackd's daemon configuration from a key=value or
// YAML file, environment variables, and defaults, using koanf/v2.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/soypat/netstack"
)

// Config holds the complete netstackd daemon configuration.
type Config struct {
	Device  DeviceConfig  `koanf:"device"`
	Stack   StackConfig   `koanf:"stack"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// DeviceConfig selects and configures the raw-frame backend.
type DeviceConfig struct {
	// Backend is "pcap" or "rawsocket".
	Backend string `koanf:"backend"`
	// Interface is the host network interface name to open.
	Interface string `koanf:"interface"`
	Promisc   bool   `koanf:"promisc"`
	Snaplen   int    `koanf:"snaplen"`
}

// StackConfig configures the network-layer identity and timers.
type StackConfig struct {
	// HardwareAddr overrides the device's own MAC; empty uses the device's.
	HardwareAddr string `koanf:"hardware_addr"`
	IP           string `koanf:"ip"`
	Gateway      string `koanf:"gateway"`

	ArpTTL          time.Duration `koanf:"arp_ttl"`
	PendingTimeout  time.Duration `koanf:"pending_timeout"`
	PollTimeout     time.Duration `koanf:"poll_timeout"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// LogConfig holds the slog setup.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `koanf:"level"`
	// Format is "text" or "json"; any value other than "json" renders via
	// tint.
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus HTTP exporter configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address, e.g. ":9100". Empty disables the
	// exporter.
	Addr string `koanf:"addr"`
	Path string `koanf:"path"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Backend: "pcap",
			Snaplen: 65536,
		},
		Stack: StackConfig{
			ArpTTL:          300 * time.Second,
			PendingTimeout:  3 * time.Second,
			PollTimeout:     100 * time.Millisecond,
			CleanupInterval: 1 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
	}
}

// envPrefix is the environment variable prefix for netstackd configuration.
// Variables are named NETSTACKD_<section>_<key>, e.g. NETSTACKD_STACK_IP.
const envPrefix = "NETSTACKD_"

// Load reads configuration from the file at path (YAML for .yaml/.yml paths,
// otherwise the key=value grammar of [KVFileProvider]), overlays NETSTACKD_-prefixed environment variable
// overrides, and merges both on top of [DefaultConfig]. path may be empty,
// in which case only defaults and environment overrides apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := loadConfigFile(k, path); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// loadConfigFile dispatches on path's extension: .yaml/.yml files are read
// with the bundled YAML parser, anything else is treated as netstackd's
// native key=value grammar via [KVFileProvider].
func loadConfigFile(k *koanf.Koanf, path string) error {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return k.Load(file.Provider(path), yaml.Parser())
	}
	return k.Load(File(path), nil)
}

// envKeyMapper transforms NETSTACKD_STACK_IP -> stack.ip.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

func loadDefaults(k *koanf.Koanf, d *Config) error {
	defaultMap := map[string]any{
		"device.backend":          d.Device.Backend,
		"device.interface":        d.Device.Interface,
		"device.promisc":          d.Device.Promisc,
		"device.snaplen":          d.Device.Snaplen,
		"stack.hardware_addr":     d.Stack.HardwareAddr,
		"stack.ip":                d.Stack.IP,
		"stack.gateway":           d.Stack.Gateway,
		"stack.arp_ttl":           d.Stack.ArpTTL.String(),
		"stack.pending_timeout":   d.Stack.PendingTimeout.String(),
		"stack.poll_timeout":      d.Stack.PollTimeout.String(),
		"stack.cleanup_interval":  d.Stack.CleanupInterval.String(),
		"log.level":               d.Log.Level,
		"log.format":              d.Log.Format,
		"metrics.addr":            d.Metrics.Addr,
		"metrics.path":            d.Metrics.Path,
	}
	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// Validation errors.
var (
	ErrEmptyInterface    = errors.New("device.interface must not be empty")
	ErrInvalidBackend    = errors.New("device.backend must be \"pcap\" or \"rawsocket\"")
	ErrEmptyIP           = errors.New("stack.ip must not be empty")
	ErrInvalidIP         = errors.New("stack.ip is not a valid IPv4 address")
	ErrInvalidGateway    = errors.New("stack.gateway is not a valid IPv4 address")
	ErrInvalidHardware   = errors.New("stack.hardware_addr is not a valid MAC address")
	ErrInvalidArpTTL     = errors.New("stack.arp_ttl must be > 0")
	ErrInvalidPendingTTL = errors.New("stack.pending_timeout must be > 0")
)

// ValidBackends lists the recognized device.backend strings.
var ValidBackends = map[string]bool{
	"pcap":      true,
	"rawsocket": true,
}

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if !ValidBackends[cfg.Device.Backend] {
		return ErrInvalidBackend
	}
	if cfg.Device.Interface == "" {
		return ErrEmptyInterface
	}
	if cfg.Stack.IP == "" {
		return ErrEmptyIP
	}
	if _, err := netstack.ParseIPv4(cfg.Stack.IP); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIP, err)
	}
	if cfg.Stack.Gateway != "" {
		if _, err := netstack.ParseIPv4(cfg.Stack.Gateway); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidGateway, err)
		}
	}
	if cfg.Stack.HardwareAddr != "" {
		if _, err := netstack.ParseMAC(cfg.Stack.HardwareAddr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidHardware, err)
		}
	}
	if cfg.Stack.ArpTTL <= 0 {
		return ErrInvalidArpTTL
	}
	if cfg.Stack.PendingTimeout <= 0 {
		return ErrInvalidPendingTTL
	}
	return nil
}

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
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
