package device

import (
	"errors"
	"strconv"

	"github.com/calvinmclean/muff"
	"github.com/calvinmclean/muff/firmware/commands"
	"github.com/calvinmclean/muff/firmware/interlock"
	"github.com/calvinmclean/muff/firmware/leds"
	"github.com/calvinmclean/muff/firmware/motion"
	"github.com/calvinmclean/muff/firmware/scheduler"
)

// Serial is the firmware side of the serial link. Reads must not block
type Serial interface {
	Buffered() int
	ReadByte() (byte, error)
	WriteByte(byte) error
	Write([]byte) (int, error)
}

// Hardware has the external collaborators of the positioner
type Hardware struct {
	Stepper motion.Driver
	Clock   motion.Clock
	LEDs    leds.ShiftRegister
	Limit   interlock.Input
	Serial  Serial
}

// Device controls the MUFF positioner. It owns the motor, the LED bank and the limit switch
// interlock, and it is the commands.Controller that the serial commands act on
type Device struct {
	motion     *motion.Controller
	leds       *leds.Bank
	interlock  *interlock.Interlock
	dispatcher *commands.Dispatcher
	serial     Serial

	cfg Config

	// frameOffset is the displacement between frames, in steps
	frameOffset int32
}

var _ commands.Controller = &Device{}

// New initializes the Device with the provided hardware and config. All LEDs start off and the
// motor starts idle and disabled at position zero
func New(hw Hardware, cfg Config) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New("invalid config: " + err.Error())
	}
	if hw.Serial == nil {
		return nil, errors.New("serial port is required")
	}

	m, err := motion.New(hw.Stepper, hw.Clock, cfg.MaxAcceleration)
	if err != nil {
		return nil, errors.New("error creating motion controller: " + err.Error())
	}

	bank, err := leds.New(hw.LEDs)
	if err != nil {
		return nil, errors.New("error creating LED bank: " + err.Error())
	}

	d := &Device{
		motion:      m,
		leds:        bank,
		serial:      hw.Serial,
		cfg:         cfg,
		frameOffset: cfg.FrameOffsetSteps,
	}

	d.interlock, err = interlock.New(hw.Limit, m, d, cfg.Interlock)
	if err != nil {
		return nil, errors.New("error creating interlock: " + err.Error())
	}

	d.dispatcher = commands.NewDispatcher(d)

	return d, nil
}

// Loop returns the scheduling loop that runs the Device
func (d *Device) Loop() *scheduler.Loop {
	return scheduler.New(d.motion, d.serial, d.dispatcher, d.interlock)
}

// Banner tells the host that the firmware has booted
func (d *Device) Banner() {
	d.Log("MUFF positioner ready")
}

// Jog starts a fine or coarse move up (direction > 0) or down. It returns while the motor moves
func (d *Device) Jog(mode commands.Mode, direction int32) {
	steps, speed := d.cfg.FineSteps, d.cfg.FineSpeed
	if mode == commands.ModeCoarse {
		steps, speed = d.cfg.CoarseSteps, d.cfg.CoarseSpeed
	}
	if direction < 0 {
		steps = -steps
	}
	d.move(steps, speed, false)
}

// Stop brings the motor to a stop, if it is moving
func (d *Device) Stop() {
	if !d.motion.IsMoving() {
		return
	}
	d.Log("Stopping motor...")
	d.motion.EmergencyStop()
}

// SetFrameOffset converts the displacement between frames to steps and keeps it
func (d *Device) SetFrameOffset(microns int32) {
	d.frameOffset = muff.MicronsToSteps(microns, d.cfg.NanometersPerStep)
	d.Log("frame displacement = " + strconv.Itoa(int(microns)) + " microns = " + strconv.Itoa(int(d.frameOffset)) + " steps")
}

// MoveFrameOffset moves by the frame displacement and only returns once the motor has stopped
func (d *Device) MoveFrameOffset() {
	d.move(d.frameOffset, d.cfg.FrameSpeed, true)
}

func (d *Device) move(steps int32, speed uint32, blocking bool) {
	direction := "clockwise"
	if steps < 0 {
		direction = "counterclockwise"
	}
	d.Log("Turning motor " + direction + " by " + strconv.Itoa(int(steps)) + " steps, max speed " + strconv.Itoa(int(speed)) + " steps/s")
	d.motion.BeginMove(steps, speed, blocking)
}

// SetLED turns one LED on or off
func (d *Device) SetLED(index int, on bool) error {
	return d.leds.Set(index, on)
}

// SetAllLEDs turns every LED on or off
func (d *Device) SetAllLEDs(on bool) {
	d.leds.SetAll(on)
}

// SetMaxAcceleration sets the acceleration of the next moves
func (d *Device) SetMaxAcceleration(a uint32) error {
	if a > muff.MaxAcceleration {
		return muff.ErrInvalidArgument
	}
	if err := d.motion.SetMaxAcceleration(a); err != nil {
		return err
	}
	d.Log("max acceleration = " + strconv.Itoa(int(a)) + " steps/s^2")
	return nil
}

// Status prints the motion, configuration and LED state on one line
func (d *Device) Status() {
	s := "position=" + strconv.Itoa(int(d.motion.Position()))
	s += " target=" + strconv.Itoa(int(d.motion.Target()))
	s += " phase=" + d.motion.Phase().String()
	s += " power=" + d.motion.Power().String()
	s += " odometer=" + strconv.FormatInt(d.motion.Odometer(), 10)
	s += " accel=" + strconv.Itoa(int(d.motion.MaxAcceleration()))
	s += " frame=" + strconv.Itoa(int(d.frameOffset))
	s += " leds=" + d.leds.String()
	s += " trips=" + strconv.Itoa(int(d.interlock.Trips()))
	d.Log(s)
}

// Log writes a diagnostic line to the host
func (d *Device) Log(msg string) {
	d.writeLine("# " + msg)
}

// Error writes an error line to the host
func (d *Device) Error(msg string) {
	d.writeLine("# ** " + msg)
}

// Ack tells the host that the command is done and the firmware is ready for the next one
func (d *Device) Ack() {
	_ = d.serial.WriteByte(muff.AckByte)
}

func (d *Device) writeLine(s string) {
	_, _ = d.serial.Write([]byte(s + "\r\n"))
}

// Motion returns the motion controller
func (d *Device) Motion() *motion.Controller {
	return d.motion
}

// LEDs returns the LED bank
func (d *Device) LEDs() *leds.Bank {
	return d.leds
}

// Interlock returns the limit switch interlock
func (d *Device) Interlock() *interlock.Interlock {
	return d.interlock
}

// FrameOffset returns the displacement between frames in steps
func (d *Device) FrameOffset() int32 {
	return d.frameOffset
}

// Config returns the configuration the Device was created with
func (d *Device) Config() Config {
	return d.cfg
}
