package kvcan

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/roffe/kvcan/pkg/protocol"
	"gopkg.in/yaml.v3"
)

const DefaultQueueSize = 65536

// Config holds channel and transport settings.
type Config struct {
	Debug     bool   `yaml:"debug"`
	Transport string `yaml:"transport"` // "usb" or "loopback"
	// Index selects among attached adapters, in enumeration order.
	Index int `yaml:"index"`
	// Virtual selects the simulated model for the loopback transport.
	Virtual   string        `yaml:"virtual,omitempty"`
	Bitrate   string        `yaml:"bitrate"`
	OpMode    []string      `yaml:"op_mode,omitempty"`
	Silent    bool          `yaml:"silent"`
	QueueSize int           `yaml:"queue_size"`
	TxTimeout time.Duration `yaml:"tx_timeout"`
	// CommandTimeout overrides the family default for synchronous requests.
	CommandTimeout time.Duration `yaml:"command_timeout,omitempty"`
	Listen         string        `yaml:"listen"`

	MinimumFirmwareVersion string `yaml:"minimum_firmware_version,omitempty"`

	OnMessage func(string) `yaml:"-"`

	path string
}

func DefaultConfig() *Config {
	return &Config{
		Transport: "usb",
		Bitrate:   "500K",
		QueueSize: DefaultQueueSize,
		TxTimeout: 100 * time.Millisecond,
		Listen:    "127.0.0.1:8080",
	}
}

// LoadConfig reads a YAML file. A missing or broken file yields the defaults.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}
	cfg.setDefaults()
	return cfg
}

func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no path")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// SaveAs writes the config to path and remembers it for later saves.
func (c *Config) SaveAs(path string) error {
	c.path = path
	return c.Save()
}

// Mode parses the configured operation mode names.
func (c *Config) Mode() (protocol.OpMode, error) {
	return protocol.ParseOpMode(c.OpMode...)
}

func (c *Config) setDefaults() {
	if c.Transport == "" {
		c.Transport = "usb"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.OnMessage == nil {
		c.OnMessage = func(msg string) {
			_, file, no, ok := runtime.Caller(1)
			if ok {
				fmt.Printf("%s#%d %v\n", filepath.Base(file), no, msg)
			} else {
				log.Println(msg)
			}
		}
	}
}
