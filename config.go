package serial

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaudRate          = 115200
	DefaultReconnectInterval = 3 * time.Second
)

// Config holds configuration parameters for a Device and the port it opens.
type Config struct {
	// Name identifies the device in logs and metrics.
	Name string `yaml:"name"`
	// Device is the path of the serial port, e.g. /dev/ttyUSB0.
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
	// ReconnectInterval is the fixed delay before every reconnect attempt.
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	// AutoConnect starts the first connect attempt from New.
	AutoConnect bool `yaml:"auto_connect"`
	// Delimiter selects a LineParser when Parser is nil. Empty means raw
	// chunks are forwarded as messages.
	Delimiter string `yaml:"delimiter"`
	Parser    Parser `yaml:"-"`
}

// DefaultConfig returns a Config with the documented defaults:
// 115200 baud, a 3s reconnect interval and AutoConnect enabled.
func DefaultConfig() Config {
	return Config{
		BaudRate:          DefaultBaudRate,
		ReconnectInterval: DefaultReconnectInterval,
		AutoConnect:       true,
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	if c.Device == "" {
		err = multierr.Append(err, fmt.Errorf("%w: device path is required", ErrInvalidConfig))
	}
	if c.BaudRate < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: negative baud rate %d", ErrInvalidConfig, c.BaudRate))
	}
	if c.ReconnectInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: negative reconnect interval %s", ErrInvalidConfig, c.ReconnectInterval))
	}
	return err
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = c.Device
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Parser == nil {
		if c.Delimiter != "" {
			c.Parser = NewLineParser(c.Delimiter)
		} else {
			c.Parser = IdentityParser{}
		}
	}
	return c
}
