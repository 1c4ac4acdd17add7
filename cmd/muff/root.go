package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/muff/controller"
	"github.com/calvinmclean/muff/firmware/device"
	"github.com/calvinmclean/muff/firmware/simulator"
)

var rootCmd = &cobra.Command{
	Use:   "muff",
	Short: "Control the MUFF camera positioner",
	Long: `muff drives the MUFF multi-focus positioner over its serial link: it moves the camera,
switches the lighting dome LEDs and exposes the positioner over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("port", "", "serial port of the positioner (overrides config and "+controller.EnvPort+")")
	rootCmd.PersistentFlags().Int("baud", 0, "baud rate (overrides config and "+controller.EnvBaudRate+")")
	rootCmd.PersistentFlags().Bool("simulate", false, "run against an in-process simulated positioner")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")

	var level slog.Level
	err := level.UnmarshalText([]byte(levelName))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// connect opens the positioner selected by the flags. The returned function closes it
func connect(cmd *cobra.Command) (*controller.Controller, *slog.Logger, func(), error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := controller.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if baud, _ := cmd.Flags().GetInt("baud"); baud != 0 {
		cfg.BaudRate = baud
	}

	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		sim, err := simulator.New(device.DefaultConfig())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("error creating simulator: %w", err)
		}
		if cfg.ReadTimeout > 0 {
			sim.Port.ReadTimeout = cfg.ReadTimeout
		}
		stop := sim.Start()
		logger.Info("using simulated positioner")

		return controller.New(sim.Host(), cfg, logger), logger, stop, nil
	}

	c, err := controller.Open(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	return c, logger, func() {
		if err := c.Close(); err != nil {
			logger.Error("error closing serial port", "error", err)
		}
	}, nil
}

// withController runs f with a connected controller
func withController(f func(ctx context.Context, c *controller.Controller, logger *slog.Logger, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, logger, closeFn, err := connect(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		return f(cmd.Context(), c, logger, args)
	}
}
