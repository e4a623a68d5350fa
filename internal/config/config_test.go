package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
web:
  listen_address: "127.0.0.1:9000"
collection:
  login_timeout: 4s
devices:
  - name: rack-a
    address: https://10.0.0.1
    user: admin
    password: secret
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLayered_CLIOverridesEverything(t *testing.T) {
	path := writeFile(t, "config.yaml", sampleConfig)
	t.Setenv("UPS_EXPORTER_LISTEN_ADDRESS", "0.0.0.0:9100")
	cli := CLIOverrides{ListenAddress: "0.0.0.0:9200", Verbose: true, LoginTimeout: 5 * time.Second}

	cfg, err := LoadLayered(cli, nil, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.ListenAddress != "0.0.0.0:9200" {
		t.Errorf("ListenAddress = %q, want CLI override", cfg.Web.ListenAddress)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug from --verbose", cfg.Logging.Level)
	}
	if cfg.Collection.LoginTimeout.Duration != 5*time.Second {
		t.Errorf("LoginTimeout = %v, want CLI override", cfg.Collection.LoginTimeout.Duration)
	}
}

func TestLoadLayered_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", sampleConfig)
	t.Setenv("UPS_EXPORTER_LISTEN_ADDRESS", "0.0.0.0:9100")
	t.Setenv("UPS_EXPORTER_THREADING", "true")

	cfg, err := LoadLayered(CLIOverrides{}, nil, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.ListenAddress != "0.0.0.0:9100" {
		t.Errorf("ListenAddress = %q, want env override", cfg.Web.ListenAddress)
	}
	if !cfg.Collection.Threading {
		t.Error("Threading = false, want env override")
	}
	if cfg.Collection.LoginTimeout.Duration != 4*time.Second {
		t.Errorf("LoginTimeout = %v, want file value", cfg.Collection.LoginTimeout.Duration)
	}
}

func TestLoadLayered_FileOverridesEmbed(t *testing.T) {
	embedded := []byte("web:\n  listen_address: \"0.0.0.0:1111\"\n  telemetry_path: /probe\n")
	path := writeFile(t, "config.yaml", sampleConfig)

	cfg, err := LoadLayered(CLIOverrides{}, embedded, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.ListenAddress != "127.0.0.1:9000" {
		t.Errorf("ListenAddress = %q, want file value", cfg.Web.ListenAddress)
	}
	if cfg.Web.TelemetryPath != "/probe" {
		t.Errorf("TelemetryPath = %q, want embedded value", cfg.Web.TelemetryPath)
	}
}

func TestLoadLayered_DefaultsWhenEmpty(t *testing.T) {
	cfg, err := LoadLayered(CLIOverrides{}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.ListenAddress != "0.0.0.0:9795" {
		t.Errorf("ListenAddress = %q, want default", cfg.Web.ListenAddress)
	}
	if cfg.Collection.LoginTimeout.Duration != 3*time.Second {
		t.Errorf("LoginTimeout = %v, want 3s default", cfg.Collection.LoginTimeout.Duration)
	}
	if cfg.CollectionDeadline() != 4*time.Second {
		t.Errorf("CollectionDeadline = %v, want login timeout + 1s", cfg.CollectionDeadline())
	}
}

func TestLoadLayered_MissingExplicitFile(t *testing.T) {
	_, err := LoadLayered(CLIOverrides{}, nil, filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadLayered_LegacyDeviceFile(t *testing.T) {
	legacy := `{
  "ups-b": {"address": "https://10.0.0.2", "user": "admin", "password": "b"},
  "ups-a": {"address": "https://10.0.0.1", "user": "admin", "password": "a"}
}`
	path := writeFile(t, "config.json", legacy)

	cfg, err := LoadLayered(CLIOverrides{}, nil, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}
	if cfg.Devices[0].Name != "ups-b" || cfg.Devices[1].Name != "ups-a" {
		t.Errorf("device order = [%s %s], want file order", cfg.Devices[0].Name, cfg.Devices[1].Name)
	}
	if cfg.Devices[1].Address != "https://10.0.0.1" || cfg.Devices[1].Password != "a" {
		t.Errorf("device ups-a = %+v", cfg.Devices[1])
	}
	if cfg.Web.ListenAddress != "0.0.0.0:9795" {
		t.Errorf("ListenAddress = %q, want default with device file", cfg.Web.ListenAddress)
	}
}

func TestDevices_MappingUsesKeyAsName(t *testing.T) {
	content := `
devices:
  first:
    address: https://10.0.0.1
    user: admin
  second:
    name: explicit
    address: https://10.0.0.2
    user: admin
`
	cfg, err := LoadLayered(CLIOverrides{}, nil, writeFile(t, "config.yaml", content))
	if err != nil {
		t.Fatal(err)
	}
	if got := []string{cfg.Devices[0].Name, cfg.Devices[1].Name}; got[0] != "first" || got[1] != "explicit" {
		t.Errorf("names = %v, want [first explicit]", got)
	}
}

func TestDuration_NumericSeconds(t *testing.T) {
	content := "collection:\n  login_timeout: 2.5\n  request_timeout: 2\n"
	cfg, err := LoadLayered(CLIOverrides{}, nil, writeFile(t, "config.yaml", content))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collection.LoginTimeout.Duration != 2500*time.Millisecond {
		t.Errorf("LoginTimeout = %v, want 2.5s", cfg.Collection.LoginTimeout.Duration)
	}
	if cfg.Collection.RequestTimeout.Duration != 2*time.Second {
		t.Errorf("RequestTimeout = %v, want 2s", cfg.Collection.RequestTimeout.Duration)
	}
}

func TestDescriptors_AppliesCollectionDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Collection.Insecure = true
	cfg.Devices = Devices{
		{Name: "a", Address: "https://a", User: "u"},
		{Name: "b", Address: "https://b", User: "u", LoginTimeout: Duration{5 * time.Second}},
	}

	got := cfg.Descriptors()
	if !got[0].Insecure || !got[1].Insecure {
		t.Error("Insecure not applied to all devices")
	}
	if got[0].LoginTimeout.Duration != 3*time.Second {
		t.Errorf("a.LoginTimeout = %v, want default", got[0].LoginTimeout.Duration)
	}
	if got[1].LoginTimeout.Duration != 5*time.Second {
		t.Errorf("b.LoginTimeout = %v, want device value", got[1].LoginTimeout.Duration)
	}
	if cfg.Devices[0].Insecure {
		t.Error("Descriptors modified the configured devices")
	}
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Devices = Devices{{Name: "ups", Address: "https://10.0.0.1", User: "admin"}}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no devices", func(c *Config) { c.Devices = nil }, "at least one device"},
		{"missing address", func(c *Config) { c.Devices[0].Address = "" }, "address is required"},
		{"missing user", func(c *Config) { c.Devices[0].User = "" }, "user is required"},
		{"duplicate name", func(c *Config) { c.Devices = append(c.Devices, c.Devices[0]) }, "more than once"},
		{"login timeout below request timeout", func(c *Config) {
			c.Collection.LoginTimeout = Duration{time.Second}
		}, "login timeout"},
		{"login timeout above maximum", func(c *Config) {
			c.Collection.LoginTimeout = Duration{11 * time.Second}
		}, "login timeout"},
		{"login timeout at maximum", func(c *Config) {
			c.Collection.LoginTimeout = Duration{10 * time.Second}
		}, ""},
		{"bad telemetry path", func(c *Config) { c.Web.TelemetryPath = "metrics" }, "telemetry path"},
		{"bad port", func(c *Config) { c.Web.ListenAddress = "0.0.0.0:http" }, "invalid listen port"},
		{"no workers", func(c *Config) { c.Collection.Workers = 0 }, "workers"},
		{"device login timeout above maximum", func(c *Config) {
			c.Devices[0].LoginTimeout = Duration{60 * time.Second}
		}, "device 0 (ups): login timeout"},
		{"device login timeout below its request timeout", func(c *Config) {
			c.Devices[0].RequestTimeout = Duration{5 * time.Second}
			c.Devices[0].LoginTimeout = Duration{4 * time.Second}
		}, "device 0 (ups): login timeout"},
		{"device request timeout above collection login timeout", func(c *Config) {
			c.Devices[0].RequestTimeout = Duration{5 * time.Second}
		}, "device 0 (ups): login timeout"},
		{"device timeouts within range", func(c *Config) {
			c.Devices[0].LoginTimeout = Duration{8 * time.Second}
			c.Devices[0].RequestTimeout = Duration{4 * time.Second}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSplitListenAddress(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort string
		wantErr  bool
	}{
		{"", "0.0.0.0", "9795", false},
		{"127.0.0.1:9000", "127.0.0.1", "9000", false},
		{"localhost", "localhost", "9795", false},
		{":9000", "0.0.0.0", "9000", false},
		{"127.0.0.1:", "127.0.0.1", "9795", false},
		{"[::1]:9000", "::1", "9000", false},
		{"host:99999", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			host, port, err := SplitListenAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitListenAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("SplitListenAddress(%q) = %q, %q, want %q, %q", tt.addr, host, port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestCollectionDeadline(t *testing.T) {
	cfg := validConfig()
	if got := cfg.CollectionDeadline(); got != 4*time.Second {
		t.Errorf("CollectionDeadline = %v, want 4s", got)
	}

	cfg.Collection.LoginTimeout = Duration{2 * time.Second}
	cfg.Devices = append(cfg.Devices,
		Device{Name: "slow", Address: "https://10.0.0.2", User: "admin", LoginTimeout: Duration{8 * time.Second}},
		Device{Name: "fast", Address: "https://10.0.0.3", User: "admin", LoginTimeout: Duration{2 * time.Second}},
	)
	if got := cfg.CollectionDeadline(); got != 9*time.Second {
		t.Errorf("CollectionDeadline = %v, want longest device login timeout + grace (9s)", got)
	}
}
