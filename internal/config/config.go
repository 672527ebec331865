package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/matheoxz/parangolapp/internal/ble"
	"github.com/matheoxz/parangolapp/internal/discovery"
	"github.com/matheoxz/parangolapp/internal/wifi"
)

// Config holds all application configuration.
type Config struct {
	BLE      BLEConfig  `yaml:"ble"`
	OSC      OSCConfig  `yaml:"osc"`
	WiFi     WiFiConfig `yaml:"wifi"`
	LogLevel string     `yaml:"log_level" default:"info"`
}

// BLEConfig holds the provisioning link settings. The UUIDs must match the
// board firmware.
type BLEConfig struct {
	ServiceUUID         string        `yaml:"service_uuid" default:"eab05e32-bbf8-444c-b2a7-4311ed21d61d"`
	CredentialsCharUUID string        `yaml:"credentials_char_uuid" default:"0663eb35-8ef2-4412-8981-326b53272d63"`
	StatusCharUUID      string        `yaml:"status_char_uuid" default:"12345678-1234-1234-1234-1234567890ad"`
	NameFilter          string        `yaml:"name_filter" default:"PARANGOLE"`
	ScanDuration        time.Duration `yaml:"scan_duration" default:"5s"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" default:"10s"`
	NotifyTimeout       time.Duration `yaml:"notify_timeout" default:"10s"`
}

// OSCConfig holds the control channel settings.
type OSCConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port" default:"8000"`
	ServiceType   string        `yaml:"service_type" default:"_osc._udp"`
	BrowseTimeout time.Duration `yaml:"browse_timeout" default:"5s"`
	ListenAddr    string        `yaml:"listen_addr" default:"127.0.0.1:9000"`
}

// WiFiConfig holds the local scan settings.
type WiFiConfig struct {
	Interface string `yaml:"interface" default:"wlan0"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "parangola")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML config file over the defaults, so missing
// fields keep their default and fields present in the file win even when
// empty (name_filter: "" disables the scan filter). A leading ~ in the
// path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(expandTilde(path)); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left untouched.
func WriteDefault(path string) error {
	path = expandTilde(path)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"ble.service_uuid":          c.BLE.ServiceUUID,
		"ble.credentials_char_uuid": c.BLE.CredentialsCharUUID,
		"ble.status_char_uuid":      c.BLE.StatusCharUUID,
	} {
		if _, err := uuid.Parse(v); err != nil {
			return fmt.Errorf("%s must be a UUID, got %q", name, v)
		}
	}

	if c.BLE.ScanDuration <= 0 {
		return fmt.Errorf("ble.scan_duration must be > 0")
	}
	if c.BLE.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}
	if c.BLE.NotifyTimeout <= 0 {
		return fmt.Errorf("ble.notify_timeout must be > 0")
	}

	if c.OSC.Port < 1 || c.OSC.Port > 65535 {
		return fmt.Errorf("osc.port must be in 1..65535, got %d", c.OSC.Port)
	}
	if !strings.HasPrefix(c.OSC.ServiceType, "_") {
		return fmt.Errorf("osc.service_type must look like _name._udp, got %q", c.OSC.ServiceType)
	}
	if c.OSC.BrowseTimeout <= 0 {
		return fmt.Errorf("osc.browse_timeout must be > 0")
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// SessionOptions converts the ble section into session options.
func (c *Config) SessionOptions() ble.SessionOptions {
	return ble.SessionOptions{
		ServiceUUID:         c.BLE.ServiceUUID,
		CredentialsCharUUID: c.BLE.CredentialsCharUUID,
		StatusCharUUID:      c.BLE.StatusCharUUID,
		ScanDuration:        c.BLE.ScanDuration,
		ConnectTimeout:      c.BLE.ConnectTimeout,
		NotifyTimeout:       c.BLE.NotifyTimeout,
	}
}

// BrowserConfig converts the osc section into an mDNS browser config.
func (c *Config) BrowserConfig() discovery.BrowserConfig {
	return discovery.BrowserConfig{ServiceType: c.OSC.ServiceType}
}

// WiFiScanner returns a scanner bound to the configured interface.
func (c *Config) WiFiScanner(logger logrus.FieldLogger) *wifi.Scanner {
	return wifi.NewScanner(c.WiFi.Interface, logger)
}

// ParseLogLevel maps a config level name to a logrus level.
func ParseLogLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("log_level must be debug, info, warn, or error, got %q", level)
	}
}

// NewLogger creates a text logger at the given level.
func NewLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
