package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/calvinmclean/muff/controller"
)

const jogHelp = `Position the camera with single keys:
  u / U   start moving up, fine / coarse
  d / D   start moving down, fine / coarse
  s       stop
  f       move by the frame step
  ?       print the positioner state
  q       stop and quit (also Ctrl-C, Ctrl-D)
`

var jogCmd = &cobra.Command{
	Use:   "jog",
	Short: "Move the camera interactively from the keyboard",
	Args:  cobra.NoArgs,
	RunE: withController(func(ctx context.Context, c *controller.Controller, logger *slog.Logger, _ []string) error {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return errors.New("jog needs an interactive terminal")
		}

		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("error setting terminal to raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)

		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "")
		fmt.Fprint(t, jogHelp)

		return jog(ctx, c, os.Stdin, t)
	}),
}

// jog maps single key presses to positioner commands until q, Ctrl-C, Ctrl-D or EOF
func jog(ctx context.Context, c *controller.Controller, in io.Reader, out io.Writer) error {
	var buf [1]byte
	for {
		_, err := in.Read(buf[:])
		if errors.Is(err, io.EOF) {
			return c.Stop(ctx)
		}
		if err != nil {
			return fmt.Errorf("error reading key: %w", err)
		}

		switch buf[0] {
		case 'u':
			err = c.StartMotor(ctx, +1, false)
		case 'U':
			err = c.StartMotor(ctx, +1, true)
		case 'd':
			err = c.StartMotor(ctx, -1, false)
		case 'D':
			err = c.StartMotor(ctx, -1, true)
		case 's', 'S', ' ':
			err = c.Stop(ctx)
		case 'f', 'F':
			err = c.MoveFrame(ctx)
		case '?':
			var status controller.Status
			status, err = c.Status(ctx)
			if err == nil {
				fmt.Fprintf(out, "position=%d phase=%s odometer=%d leds=%s\n", status.Position, status.Phase, status.Odometer, status.LEDs)
			}
		case 'q', 'Q', 3, 4:
			return c.Stop(ctx)
		default:
			fmt.Fprint(out, jogHelp)
			continue
		}

		var fwErr *controller.FirmwareError
		switch {
		case errors.As(err, &fwErr):
			fmt.Fprintln(out, fwErr.Error())
		case err != nil:
			return err
		}
	}
}

func init() {
	rootCmd.AddCommand(jogCmd)
}
