package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Device describes one UPS to scrape.
type Device struct {
	// Name is the display name. When empty the device's own id is used.
	Name     string `yaml:"name,omitempty"`
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Insecure disables certificate verification for this device only.
	Insecure       bool     `yaml:"insecure,omitempty"`
	LoginTimeout   Duration `yaml:"login_timeout,omitempty"`
	RequestTimeout Duration `yaml:"request_timeout,omitempty"`
}

// Devices is an ordered device list. In YAML it is either a sequence of
// devices or a mapping of name to device; mapping order is kept.
type Devices []Device

// UnmarshalYAML implements the yaml.Unmarshaler interface for Devices.
func (d *Devices) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []Device
		if err := value.Decode(&list); err != nil {
			return err
		}
		*d = list
		return nil
	case yaml.MappingNode:
		list := make([]Device, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			var dev Device
			if err := val.Decode(&dev); err != nil {
				return fmt.Errorf("device %q: %w", key.Value, err)
			}
			if dev.Name == "" {
				dev.Name = key.Value
			}
			list = append(list, dev)
		}
		*d = list
		return nil
	default:
		return fmt.Errorf("devices must be a list or a mapping, got %v", value.Kind)
	}
}

// Descriptors returns the configured devices with the collection-wide
// defaults applied. The receiver is not modified.
func (c *Config) Descriptors() []Device {
	out := make([]Device, len(c.Devices))
	for i, d := range c.Devices {
		if c.Collection.Insecure {
			d.Insecure = true
		}
		if d.LoginTimeout.Duration <= 0 {
			d.LoginTimeout = c.Collection.LoginTimeout
		}
		if d.RequestTimeout.Duration <= 0 {
			d.RequestTimeout = c.Collection.RequestTimeout
		}
		out[i] = d
	}
	return out
}

// isDeviceFile reports whether doc is a bare mapping of device name to device,
// the layout used by device files of earlier releases.
func isDeviceFile(doc *yaml.Node) bool {
	if doc.Kind != yaml.MappingNode || len(doc.Content) == 0 {
		return false
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		val := doc.Content[i+1]
		if val.Kind != yaml.MappingNode || !hasKey(val, "address") {
			return false
		}
	}
	return true
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}
