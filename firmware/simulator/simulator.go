// Package simulator runs the MUFF firmware in-process on simulated hardware, so the host tools
// and their tests can talk to a positioner without a board attached.
package simulator

import (
	"context"
	"io"
	"time"

	"github.com/calvinmclean/muff/firmware/device"
	"github.com/calvinmclean/muff/sim"
)

// DefaultTick is how far the simulated motion clock advances per read
const DefaultTick = 50 * time.Microsecond

// Simulator is a Device wired to sim hardware
type Simulator struct {
	Device  *device.Device
	Clock   *sim.Clock
	Stepper *sim.Stepper
	LEDs    *sim.ShiftRegister
	Limit   *sim.Switch
	Port    *sim.Port
}

// New creates a Simulator with the provided config
func New(cfg device.Config) (*Simulator, error) {
	s := &Simulator{
		Clock:   sim.NewClock(DefaultTick),
		Stepper: &sim.Stepper{},
		LEDs:    &sim.ShiftRegister{},
		Limit:   &sim.Switch{},
		Port:    sim.NewPort(),
	}

	var err error
	s.Device, err = device.New(device.Hardware{
		Stepper: s.Stepper,
		Clock:   s.Clock,
		LEDs:    s.LEDs,
		Limit:   s.Limit,
		Serial:  s.Port.Device(),
	}, cfg)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Host returns the host side of the simulated serial link
func (s *Simulator) Host() io.ReadWriteCloser {
	return s.Port.Host()
}

// Run prints the boot banner and runs the firmware loop until ctx is done. The loop yields while
// the motor is idle and no input is waiting, so an idle simulator does not spin a core
func (s *Simulator) Run(ctx context.Context) error {
	s.Device.Banner()
	return s.Device.Loop().Run(ctx, s.yield)
}

func (s *Simulator) yield() {
	if !s.Device.Motion().IsMoving() && s.Port.Device().Buffered() == 0 {
		time.Sleep(time.Millisecond)
	}
}

// Start runs the Simulator in a goroutine and returns a function that stops it and closes the link
func (s *Simulator) Start() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	return func() {
		cancel()
		<-done
		_ = s.Port.Close()
	}
}
