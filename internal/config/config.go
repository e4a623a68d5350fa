// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
//
// JSON device files of the form {"name": {"address": ..., "user": ..., "password": ...}}
// are accepted as well, since JSON is valid YAML.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultHost and DefaultPort are used when the listen address omits them.
	DefaultHost = "0.0.0.0"
	DefaultPort = "9795"

	// maxLoginTimeout is the upper bound accepted for the login timeout.
	maxLoginTimeout = 10 * time.Second
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "3s" or "1m". Bare numbers are read as seconds.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
			d.Duration = time.Duration(secs * float64(time.Second))
			return nil
		}
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all exporter configuration.
type Config struct {
	Web        WebConfig        `yaml:"web"`
	Collection CollectionConfig `yaml:"collection"`
	Devices    Devices          `yaml:"devices"`
	Logging    LoggingConfig    `yaml:"logging"`
	Compat     CompatConfig     `yaml:"compat"`
}

// WebConfig holds the metrics endpoint settings.
type WebConfig struct {
	ListenAddress string `yaml:"listen_address"`
	TelemetryPath string `yaml:"telemetry_path"`
}

// CollectionConfig holds scrape settings shared by all devices.
type CollectionConfig struct {
	// Threading scrapes all devices concurrently instead of one after another.
	Threading bool `yaml:"threading"`

	// Workers caps the concurrent worker pool.
	Workers int `yaml:"workers"`

	// Insecure disables certificate verification for every device.
	Insecure bool `yaml:"insecure"`

	LoginTimeout   Duration `yaml:"login_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`

	// Grace is added to the login timeout to form the concurrent collection deadline.
	Grace Duration `yaml:"grace"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// CompatConfig holds switches that restore behavior of earlier releases.
type CompatConfig struct {
	// MaskLoginTimeout reports a timed out re-login as an authentication failure.
	MaskLoginTimeout bool `yaml:"mask_login_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Web: WebConfig{
			ListenAddress: DefaultHost + ":" + DefaultPort,
			TelemetryPath: "/metrics",
		},
		Collection: CollectionConfig{
			Threading:      false,
			Workers:        32,
			LoginTimeout:   Duration{3 * time.Second},
			RequestTimeout: Duration{2 * time.Second},
			Grace:          Duration{1 * time.Second},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// CLIOverrides holds values from command-line flags.
// Zero values are treated as "not set" and skipped.
type CLIOverrides struct {
	ListenAddress string
	Insecure      bool
	Threading     bool
	Verbose       bool
	LoginTimeout  time.Duration
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
//
// An explicitly named file that cannot be read is an error.
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if err := unmarshalInto(embedded, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}

	var filePath string
	explicit := len(configPath) > 0
	if explicit {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil && explicit {
			return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
		}
		if err == nil {
			if err := unmarshalInto(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if cli.ListenAddress != "" {
		cfg.Web.ListenAddress = cli.ListenAddress
	}
	if cli.Insecure {
		cfg.Collection.Insecure = true
	}
	if cli.Threading {
		cfg.Collection.Threading = true
	}
	if cli.Verbose {
		cfg.Logging.Level = "debug"
	}
	if cli.LoginTimeout > 0 {
		cfg.Collection.LoginTimeout = Duration{cli.LoginTimeout}
	}

	return cfg, nil
}

// unmarshalInto decodes data over cfg. A document that only holds named
// device entries is read as the device list.
func unmarshalInto(data []byte, cfg *Config) error {
	if len(data) == 0 {
		return nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]

	if isDeviceFile(doc) {
		var devices Devices
		if err := doc.Decode(&devices); err != nil {
			return err
		}
		cfg.Devices = devices
		return nil
	}
	return doc.Decode(cfg)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("UPS_EXPORTER_LISTEN_ADDRESS"); addr != "" {
		cfg.Web.ListenAddress = addr
	}
	if level := os.Getenv("UPS_EXPORTER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if v, err := strconv.ParseBool(os.Getenv("UPS_EXPORTER_INSECURE")); err == nil {
		cfg.Collection.Insecure = v
	}
	if v, err := strconv.ParseBool(os.Getenv("UPS_EXPORTER_THREADING")); err == nil {
		cfg.Collection.Threading = v
	}
}

// Validate checks that the configuration can be used to start the exporter.
func (c *Config) Validate() error {
	if _, _, err := SplitListenAddress(c.Web.ListenAddress); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Web.TelemetryPath, "/") {
		return fmt.Errorf("telemetry path must start with '/' (got: %q)", c.Web.TelemetryPath)
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Address == "" {
			return fmt.Errorf("device %d (%s): address is required", i, d.Name)
		}
		if d.User == "" {
			return fmt.Errorf("device %d (%s): user is required", i, d.Name)
		}
		if d.Name != "" {
			if seen[d.Name] {
				return fmt.Errorf("device name %q is used more than once", d.Name)
			}
			seen[d.Name] = true
		}
	}

	col := c.Collection
	if err := validateTimeouts(col.LoginTimeout.Duration, col.RequestTimeout.Duration); err != nil {
		return err
	}
	for i, d := range c.Descriptors() {
		if err := validateTimeouts(d.LoginTimeout.Duration, d.RequestTimeout.Duration); err != nil {
			return fmt.Errorf("device %d (%s): %w", i, d.Name, err)
		}
	}
	if col.Grace.Duration < 0 {
		return fmt.Errorf("grace must not be negative")
	}
	if col.Workers < 1 {
		return fmt.Errorf("workers must be at least 1 (got: %d)", col.Workers)
	}
	return nil
}

func validateTimeouts(login, request time.Duration) error {
	if request <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if login < request || login > maxLoginTimeout {
		return fmt.Errorf("login timeout must be between %s and %s (got: %s)",
			request, maxLoginTimeout, login)
	}
	return nil
}

// CollectionDeadline is the shared deadline of one concurrent collection
// cycle: the longest login timeout of any device plus the grace period.
func (c *Config) CollectionDeadline() time.Duration {
	longest := c.Collection.LoginTimeout.Duration
	for _, d := range c.Descriptors() {
		longest = max(longest, d.LoginTimeout.Duration)
	}
	return longest + c.Collection.Grace.Duration
}

// SplitListenAddress splits a "host:port" listen address, filling in the
// default host or port when either is omitted.
func SplitListenAddress(addr string) (host, port string, err error) {
	if addr == "" {
		return DefaultHost, DefaultPort, nil
	}
	if !strings.Contains(addr, ":") {
		return addr, DefaultPort, nil
	}
	host, port, err = net.SplitHostPort(addr)
	if err != nil {
		return "", "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = DefaultPort
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", "", fmt.Errorf("invalid listen port %q", port)
	}
	return host, port, nil
}
