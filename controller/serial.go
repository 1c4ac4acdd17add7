package controller

import (
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

// Open connects to the positioner on the configured serial port
func Open(cfg Config, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening serial port %q: %w", cfg.Port, err)
	}

	if cfg.ReadTimeout > 0 {
		err = port.SetReadTimeout(cfg.ReadTimeout)
		if err != nil {
			port.Close()
			return nil, fmt.Errorf("error setting read timeout: %w", err)
		}
	}

	logger.Info("opened serial port", "port", cfg.Port, "baud_rate", cfg.BaudRate)

	// the board resets when the port opens and ignores input until it has booted
	time.Sleep(cfg.ResetDelay)

	return New(port, cfg, logger), nil
}

// GetSerialPorts lists the serial ports found on the system
func GetSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("error listing serial ports: %w", err)
	}
	return ports, nil
}
