package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/calvinmclean/muff/controller"
	"github.com/calvinmclean/muff/server"
)

var sendCmd = &cobra.Command{
	Use:   "send COMMAND",
	Short: "Send one raw protocol command, like 4+050, and print the firmware output",
	Args:  cobra.ExactArgs(1),
	RunE: withController(func(ctx context.Context, c *controller.Controller, _ *slog.Logger, args []string) error {
		resp, err := c.Send(ctx, []byte(args[0]))
		for _, line := range resp.Diagnostics {
			fmt.Println("#", line)
		}
		return err
	}),
}

var ledCmd = &cobra.Command{
	Use:   "led (LED|all) (on|off) | led test",
	Short: "Switch LEDs by letter A-X or index 0-23, or blink all of them",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withController(func(ctx context.Context, c *controller.Controller, _ *slog.Logger, args []string) error {
		if len(args) == 1 {
			if args[0] != "test" {
				return fmt.Errorf("expected LED state after %q", args[0])
			}
			return c.TestLights(ctx)
		}

		var on bool
		switch strings.ToLower(args[1]) {
		case "on":
			on = true
		case "off":
		default:
			return fmt.Errorf("invalid LED state %q", args[1])
		}

		if strings.ToLower(args[0]) == "all" {
			return c.SwitchAllLEDs(ctx, on)
		}

		index, err := server.ParseLED(args[0])
		if err != nil {
			return fmt.Errorf("invalid LED %q: %w", args[0], err)
		}
		return c.SwitchLED(ctx, index, on)
	}),
}

var accelCmd = &cobra.Command{
	Use:   "accel VALUE",
	Short: "Set the max acceleration of the next moves in steps/s^2 (1-999)",
	Args:  cobra.ExactArgs(1),
	RunE: withController(func(ctx context.Context, c *controller.Controller, _ *slog.Logger, args []string) error {
		a, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid acceleration %q: %w", args[0], err)
		}
		return c.SetMaxAcceleration(ctx, uint32(a))
	}),
}

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Move the camera through a stack of frames",
	Long: `Moves the camera by the frame step COUNT times, waiting SETTLE after every move. With --step,
the frame step is set first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		count, _ := cmd.Flags().GetInt("count")
		settle, _ := cmd.Flags().GetDuration("settle")

		return withController(func(ctx context.Context, c *controller.Controller, logger *slog.Logger, _ []string) error {
			if cmd.Flags().Changed("step") {
				step, _ := cmd.Flags().GetInt32("step")
				if err := c.SetFrameStep(ctx, step); err != nil {
					return err
				}
			}

			for i := 0; i < count; i++ {
				if err := c.MoveFrame(ctx); err != nil {
					return fmt.Errorf("error moving to frame %d: %w", i+1, err)
				}
				logger.Info("frame", "number", i+1, "of", count)

				select {
				case <-time.After(settle):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})(cmd, nil)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the positioner state",
	Args:  cobra.NoArgs,
	RunE: withController(func(ctx context.Context, c *controller.Controller, _ *slog.Logger, _ []string) error {
		status, err := c.Status(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}),
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Print the commands understood by the firmware",
	Args:  cobra.NoArgs,
	RunE: withController(func(ctx context.Context, c *controller.Controller, _ *slog.Logger, _ []string) error {
		lines, err := c.Help(ctx)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	}),
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List the serial ports",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		ports, err := controller.GetSerialPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	frameCmd.Flags().Int32("step", 0, "frame step in microns (-999 to 999)")
	frameCmd.Flags().Int("count", 1, "number of frames")
	frameCmd.Flags().Duration("settle", 500*time.Millisecond, "wait after every move")

	rootCmd.AddCommand(sendCmd, ledCmd, accelCmd, frameCmd, statusCmd, commandsCmd, portsCmd)
}
