package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds everything the composer needs: where configfs lives, the
// gadget identity, the single configuration and its three functions, and
// which USB device controller to bind to.
type Config struct {
	ConfigFS ConfigFS `yaml:"configfs"`
	Gadget   Gadget   `yaml:"gadget"`
	// UDC is the controller to bind to: "auto" picks the sole entry of
	// /sys/class/udc, anything else is used verbatim (e.g. musb-hdrc.0.auto)
	UDC     string  `yaml:"udc"`
	Journal Journal `yaml:"journal"`
}

type ConfigFS struct {
	Mountpoint string `yaml:"mountpoint"`
	Module     string `yaml:"module"`
}

type Gadget struct {
	Name         string `yaml:"name"`
	VendorID     string `yaml:"vendor_id"`
	ProductID    string `yaml:"product_id"`
	Serial       string `yaml:"serial"`
	Manufacturer string `yaml:"manufacturer"`
	Product      string `yaml:"product"`
	// Lang is the USB string descriptor language directory (0x409 = en-US)
	Lang string `yaml:"lang"`

	Config      UsbConfig   `yaml:"config"`
	MassStorage MassStorage `yaml:"mass_storage"`
	HID         HID         `yaml:"hid"`
	Ethernet    Ethernet    `yaml:"ethernet"`
}

// UsbConfig is the single USB configuration the functions are linked into.
type UsbConfig struct {
	Name     string `yaml:"name"`
	MaxPower int    `yaml:"max_power"`
	Label    string `yaml:"label"`
}

type MassStorage struct {
	Name        string `yaml:"name"`
	BackingFile string `yaml:"backing_file"`
}

type HID struct {
	Name         string `yaml:"name"`
	Protocol     int    `yaml:"protocol"`
	Subclass     int    `yaml:"subclass"`
	ReportLength int    `yaml:"report_length"`
}

type Ethernet struct {
	Name string `yaml:"name"`
}

type Journal struct {
	Path string `yaml:"path"`
}

// defaultConfig carries the values the provisioning host has always used.
// A config file only needs to name what differs.
var defaultConfig = Config{
	ConfigFS: ConfigFS{
		Mountpoint: "/sys/kernel/config",
		Module:     "libcomposite",
	},
	UDC: "auto",
	Gadget: Gadget{
		Name:         "g1",
		VendorID:     "0x1d6b",
		ProductID:    "0x0104",
		Serial:       "0123456789",
		Manufacturer: "Intel",
		Product:      "DAFT support gadget",
		Lang:         "0x409",
		Config: UsbConfig{
			Name:     "c.1",
			MaxPower: 250,
			Label:    "Conf 1",
		},
		MassStorage: MassStorage{
			Name:        "mass_storage.0",
			BackingFile: "/root/support_image/support.img",
		},
		HID: HID{
			Name:         "hid.usb0",
			Protocol:     1,
			Subclass:     1,
			ReportLength: 8,
		},
		Ethernet: Ethernet{
			Name: "ecm.usb0",
		},
	},
	Journal: Journal{
		Path: "/var/lib/gadgetgod/journal.db",
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load reads the config file at path. An empty path tries the default
// locations; if no file is found anywhere the built-in defaults are used.
// A partial file overrides only the fields it names.
func Load(path string) (*Config, error) {
	if path == "" {
		// Try default locations
		candidates := []string{
			"/etc/gadgetgod/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/gadgetgod/config.yaml"),
			"config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := defaultConfig
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	// Unmarshalling over the prefilled struct keeps defaults for
	// everything the file leaves out.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return &cfg, nil
}

// ResolveBackingFile returns the mass-storage backing file to use: the
// caller-supplied path if non-empty, else the configured one.
func (c *Config) ResolveBackingFile(arg string) string {
	if arg != "" {
		return arg
	}
	return c.Gadget.MassStorage.BackingFile
}

// FunctionNames returns the function directory names in link order.
// The order is load-bearing: mass storage first, controller binding assumes
// all three are linked before it runs.
func (c *Config) FunctionNames() []string {
	return []string{
		c.Gadget.MassStorage.Name,
		c.Gadget.HID.Name,
		c.Gadget.Ethernet.Name,
	}
}
