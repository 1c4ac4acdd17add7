//go:build tinygo

package device

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/shiftregister"

	"github.com/calvinmclean/muff"
)

// StepperConfig has the pins of a step/dir stepper driver
type StepperConfig struct {
	StepPin   machine.Pin
	DirPin    machine.Pin
	EnablePin machine.Pin
	// PulseWidth is how long the step pin is held high
	PulseWidth time.Duration
}

// LEDConfig has the pins of the 74HC595 chain driving the dome LEDs
type LEDConfig struct {
	LatchPin machine.Pin
	ClockPin machine.Pin
	DataPin  machine.Pin
}

// StepDriver drives a step/dir stepper driver with an active-low enable input
type StepDriver struct {
	cfg StepperConfig
}

// NewStepDriver configures the pins and returns the driver with the coils de-energized
func NewStepDriver(cfg StepperConfig) *StepDriver {
	for _, p := range []machine.Pin{cfg.StepPin, cfg.DirPin, cfg.EnablePin} {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	cfg.StepPin.Low()
	cfg.EnablePin.High()
	if cfg.PulseWidth == 0 {
		cfg.PulseWidth = 2 * time.Microsecond
	}
	return &StepDriver{cfg}
}

func (s *StepDriver) SetDirection(forward bool) {
	s.cfg.DirPin.Set(forward)
}

func (s *StepDriver) Step() {
	s.cfg.StepPin.High()
	time.Sleep(s.cfg.PulseWidth)
	s.cfg.StepPin.Low()
}

func (s *StepDriver) SetEnabled(enabled bool) {
	s.cfg.EnablePin.Set(!enabled)
}

// ShiftChain collects the LED groups shifted by leds.Bank and writes them to the chain in one go
// on Latch
type ShiftChain struct {
	dev     *shiftregister.Device
	pending []byte
}

// NewShiftChain configures the shift register pins
func NewShiftChain(cfg LEDConfig) *ShiftChain {
	dev := shiftregister.New(shiftregister.THIRTYTWO_BITS, cfg.LatchPin, cfg.ClockPin, cfg.DataPin)
	dev.Configure()
	return &ShiftChain{dev: dev, pending: make([]byte, 0, muff.NumLEDGroups)}
}

func (c *ShiftChain) ShiftOut(b byte) {
	c.pending = append(c.pending, b)
}

// Latch writes the pending groups. The driver shifts the mask LSB first, one group after the
// other, so the unused low byte is shifted first and falls off the end of the 24-bit chain
func (c *ShiftChain) Latch() {
	var mask uint32
	for _, b := range c.pending {
		mask = mask>>8 | uint32(b)<<24
	}
	c.dev.WriteMask(mask)
	c.pending = c.pending[:0]
}

// NewLimitSwitch configures pin as a pulled-up input. It reads low while the switch is closed
func NewLimitSwitch(pin machine.Pin) machine.Pin {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return pin
}
