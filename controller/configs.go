package controller

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvPort     = "MUFF_PORT"
	EnvBaudRate = "MUFF_BAUD"

	DefaultBaudRate    = 9600
	DefaultResetDelay  = 2 * time.Second
	DefaultReadTimeout = 100 * time.Millisecond
	DefaultAckTimeout  = 2 * time.Minute
)

// Config has the settings for connecting to the positioner
type Config struct {
	// Port is the serial device, like /dev/ttyUSB0
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`

	// ResetDelay is how long to wait after opening the port. Opening the port resets most boards
	ResetDelay time.Duration `yaml:"reset_delay"`
	// ReadTimeout bounds each read from the port, so a pending command can notice cancellation
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// AckTimeout bounds the wait for the ack of one command. Long moves are acked late
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// LightsTestDelay is how long all LEDs stay on for TestLights
	LightsTestDelay time.Duration `yaml:"lights_test_delay"`
}

// DefaultConfig returns the Config used for anything left unset
func DefaultConfig() Config {
	return Config{
		BaudRate:        DefaultBaudRate,
		ResetDelay:      DefaultResetDelay,
		ReadTimeout:     DefaultReadTimeout,
		AckTimeout:      DefaultAckTimeout,
		LightsTestDelay: time.Second,
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig. An empty path only applies defaults
// and the environment
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}

		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("error parsing config file %q: %w", path, err)
		}
	}

	err := cfg.ApplyEnv()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overrides the port and baud rate from MUFF_PORT and MUFF_BAUD
func (c *Config) ApplyEnv() error {
	if port := os.Getenv(EnvPort); port != "" {
		c.Port = port
	}

	if baud := os.Getenv(EnvBaudRate); baud != "" {
		b, err := strconv.Atoi(baud)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvBaudRate, baud, err)
		}
		c.BaudRate = b
	}

	return nil
}

// Validate checks that the Config can be used to open a port
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("serial port is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate: %d", c.BaudRate)
	}
	if c.ResetDelay < 0 || c.ReadTimeout < 0 || c.AckTimeout < 0 || c.LightsTestDelay < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}
