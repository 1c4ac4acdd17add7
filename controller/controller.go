package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calvinmclean/muff"
)

// ErrUnexpectedReply is returned when the firmware answers a command with something other than an
// ack or a diagnostic line
var ErrUnexpectedReply = errors.New("unexpected reply from firmware")

// FirmwareError has the error lines the firmware printed while running a command. The command
// was acked, so the link is still usable
type FirmwareError struct {
	Command  string
	Messages []string
}

func (e *FirmwareError) Error() string {
	return fmt.Sprintf("firmware error for command %q: %s", e.Command, strings.Join(e.Messages, "; "))
}

// Response has the diagnostic lines printed by the firmware while running a command
type Response struct {
	Diagnostics []string
	Errors      []string
}

// Controller sends commands to the positioner firmware and waits for each one to be acked. It is
// safe for concurrent use: commands are sent one at a time
type Controller struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	cfg    Config
	logger *slog.Logger

	// desync is set when a command was abandoned before its ack, so stale input must be dropped
	desync bool
}

// New creates a Controller on an already open port
func New(port io.ReadWriteCloser, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		port:   port,
		cfg:    cfg,
		logger: logger,
	}
}

// Close closes the serial port
func (c *Controller) Close() error {
	return c.port.Close()
}

// Send writes a single command and waits for its ack. Error lines printed by the firmware are
// returned as a *FirmwareError after the ack. Lines the firmware printed on its own since the last
// ack, like a limit switch trip, are part of the reply to the next command
func (c *Controller) Send(ctx context.Context, command []byte) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.desync {
		c.resync()
	}

	if c.cfg.AckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AckTimeout)
		defer cancel()
	}

	logger := c.logger.With("command", string(command))
	logger.Debug("sending command")
	start := time.Now()

	_, err := c.port.Write(command)
	if err != nil {
		return Response{}, fmt.Errorf("error writing command: %w", err)
	}

	var resp Response
	err = c.waitAck(ctx, logger, &resp)
	if err != nil {
		c.desync = true
		return resp, fmt.Errorf("error waiting for ack of %q: %w", command, err)
	}

	logger.Debug("command acked", "duration", time.Since(start))

	if len(resp.Errors) > 0 {
		return resp, &FirmwareError{Command: string(command), Messages: resp.Errors}
	}

	return resp, nil
}

// resync drops whatever the firmware sent for an abandoned command
func (c *Controller) resync() {
	c.logger.Warn("dropping stale input")
	r, ok := c.port.(interface{ ResetInputBuffer() error })
	if !ok {
		c.logger.Error("port cannot drop stale input, replies may be out of step")
		c.desync = false
		return
	}

	err := r.ResetInputBuffer()
	if err != nil {
		c.logger.Error("error resetting input buffer", "error", err)
		return
	}
	c.desync = false
}

// waitAck reads until the ack, skipping blanks and line ends and collecting '#' lines
func (c *Controller) waitAck(ctx context.Context, logger *slog.Logger, resp *Response) error {
	for {
		b, err := c.readByte(ctx)
		if err != nil {
			return err
		}

		switch b {
		case muff.AckByte:
			return nil
		case ' ', '\r', '\n':
		case '#':
			line, err := c.readLine(ctx)
			if err != nil {
				return err
			}
			if msg, ok := strings.CutPrefix(line, "** "); ok {
				logger.Warn("firmware error", "msg", msg)
				resp.Errors = append(resp.Errors, msg)
				continue
			}
			logger.Debug("firmware diagnostic", "msg", line)
			resp.Diagnostics = append(resp.Diagnostics, line)
		default:
			return fmt.Errorf("%w: %q", ErrUnexpectedReply, b)
		}
	}
}

func (c *Controller) readLine(ctx context.Context) (string, error) {
	var sb strings.Builder
	for {
		b, err := c.readByte(ctx)
		if err != nil {
			return "", err
		}
		if b == '\r' || b == '\n' {
			return strings.TrimSpace(sb.String()), nil
		}
		sb.WriteByte(b)
	}
}

// readByte reads one byte. A serial port configured with a read timeout returns no data without
// an error, which gives a chance to check ctx
func (c *Controller) readByte(ctx context.Context) (byte, error) {
	var buf [1]byte
	for {
		err := ctx.Err()
		if err != nil {
			return 0, err
		}

		n, err := c.port.Read(buf[:])
		if n == 1 {
			return buf[0], nil
		}
		if err != nil {
			return 0, fmt.Errorf("error reading serial port: %w", err)
		}
	}
}

func (c *Controller) send(ctx context.Context, op muff.Opcode, arg ...byte) error {
	_, err := c.Send(ctx, append([]byte{byte(op)}, arg...))
	return err
}

// StartMotor stops the motor if it is moving and then starts a jog up (direction > 0) or down.
// coarse selects the long and fast jog. It returns while the motor is still moving
func (c *Controller) StartMotor(ctx context.Context, direction int, coarse bool) error {
	if direction == 0 {
		return errors.New("direction must be +1 or -1")
	}

	err := c.Stop(ctx)
	if err != nil {
		return err
	}

	c.logger.Info("starting motor", "direction", direction, "coarse", coarse)

	op := muff.OpcodeFineForward
	switch {
	case direction > 0 && coarse:
		op = muff.OpcodeCoarseForward
	case direction < 0 && coarse:
		op = muff.OpcodeCoarseBackward
	case direction < 0:
		op = muff.OpcodeFineBackward
	}
	return c.send(ctx, op)
}

// Stop stops the motor, if it is moving
func (c *Controller) Stop(ctx context.Context) error {
	c.logger.Debug("stopping motor")
	return c.send(ctx, muff.OpcodeStop)
}

// SetFrameStep defines the displacement between frames in microns, in -999 to 999
func (c *Controller) SetFrameStep(ctx context.Context, microns int32) error {
	arg, err := muff.FormatMicrons(microns)
	if err != nil {
		return fmt.Errorf("invalid frame step %d: %w", microns, err)
	}

	c.logger.Info("setting frame step", "microns", microns)
	return c.send(ctx, muff.OpcodeSetFrameOffset, arg...)
}

// MoveFrame moves the camera by the frame step. It returns once the motor has stopped
func (c *Controller) MoveFrame(ctx context.Context) error {
	c.logger.Info("moving by frame step")
	return c.send(ctx, muff.OpcodeMoveFrameOffset)
}

// SwitchLED turns the LED with index in 0-23 on or off
func (c *Controller) SwitchLED(ctx context.Context, index int, on bool) error {
	code, err := muff.LEDCode(index)
	if err != nil {
		return fmt.Errorf("invalid LED %d: %w", index, err)
	}

	c.logger.Debug("switching LED", "led", string(code), "on", on)
	return c.send(ctx, ledOpcode(on), code)
}

// SwitchAllLEDs turns every LED on or off
func (c *Controller) SwitchAllLEDs(ctx context.Context, on bool) error {
	c.logger.Debug("switching all LEDs", "on", on)
	return c.send(ctx, ledOpcode(on), muff.AllLEDsCode)
}

func ledOpcode(on bool) muff.Opcode {
	if on {
		return muff.OpcodeLEDOn
	}
	return muff.OpcodeLEDOff
}

// TestLights turns all LEDs on for a while and then off again
func (c *Controller) TestLights(ctx context.Context) error {
	c.logger.Info("testing LEDs")

	err := c.SwitchAllLEDs(ctx, true)
	if err != nil {
		return err
	}

	select {
	case <-time.After(c.cfg.LightsTestDelay):
	case <-ctx.Done():
	}

	// the LEDs are turned off even if ctx is done
	return c.SwitchAllLEDs(context.WithoutCancel(ctx), false)
}

// SetMaxAcceleration sets the acceleration of the next moves, in 1-999 steps/s^2
func (c *Controller) SetMaxAcceleration(ctx context.Context, a uint32) error {
	if a == 0 {
		return muff.ErrZeroAcceleration
	}
	arg, err := muff.FormatDigits(a)
	if err != nil {
		return fmt.Errorf("invalid acceleration %d: %w", a, err)
	}

	c.logger.Info("setting max acceleration", "acceleration", a)
	return c.send(ctx, muff.OpcodeSetMaxAcceleration, arg...)
}

// Help returns the command descriptions printed by the firmware
func (c *Controller) Help(ctx context.Context) ([]string, error) {
	resp, err := c.Send(ctx, []byte{byte(muff.OpcodeHelp)})
	if err != nil {
		return nil, err
	}
	return dropEcho(resp.Diagnostics), nil
}

// Status asks the firmware for its state. The status command cannot fail on the firmware, so
// error lines in its reply were printed between commands (a limit switch trip) and are only logged
func (c *Controller) Status(ctx context.Context) (Status, error) {
	resp, err := c.Send(ctx, []byte{byte(muff.OpcodeStatus)})
	var fwErr *FirmwareError
	if errors.As(err, &fwErr) {
		c.logger.Warn("firmware reported errors before status", "errors", fwErr.Messages)
		err = nil
	}
	if err != nil {
		return Status{}, err
	}

	for _, line := range resp.Diagnostics {
		if strings.HasPrefix(line, "position=") {
			return ParseStatus(line)
		}
	}
	return Status{}, fmt.Errorf("%w: no status line", ErrUnexpectedReply)
}

// dropEcho removes the lines where the firmware echoes the command it received
func dropEcho(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.HasPrefix(l, "command received") || strings.HasPrefix(l, "argument =") {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Status is the state reported by the firmware status command
type Status struct {
	Position     int32  `json:"position"`
	Target       int32  `json:"target"`
	Phase        string `json:"phase"`
	Power        string `json:"power"`
	Odometer     int64  `json:"odometer"`
	Acceleration uint32 `json:"acceleration"`
	FrameOffset  int32  `json:"frame_offset"`
	LEDs         string `json:"leds"`
	Trips        uint32 `json:"limit_switch_trips"`
}

// ParseStatus parses a status line like "position=0 target=0 phase=Idle ..."
func ParseStatus(line string) (Status, error) {
	var s Status
	for _, field := range strings.Fields(line) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Status{}, fmt.Errorf("%w: invalid status field %q", ErrUnexpectedReply, field)
		}

		var err error
		switch key {
		case "position":
			s.Position, err = parseInt32(value)
		case "target":
			s.Target, err = parseInt32(value)
		case "phase":
			s.Phase = value
		case "power":
			s.Power = value
		case "odometer":
			s.Odometer, err = strconv.ParseInt(value, 10, 64)
		case "accel":
			s.Acceleration, err = parseUint32(value)
		case "frame":
			s.FrameOffset, err = parseInt32(value)
		case "leds":
			s.LEDs = strings.TrimPrefix(value, "-")
		case "trips":
			s.Trips, err = parseUint32(value)
		}
		if err != nil {
			return Status{}, fmt.Errorf("invalid status field %q: %w", field, err)
		}
	}
	return s, nil
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	return int32(v), err
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}
