// Package sim has in-memory stand-ins for the positioner hardware: the motion clock, the stepper
// driver, the LED shift register chain, the limit switch and the serial link.
package sim

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Clock is a motion clock that advances by Tick every time it is read, so a busy scheduling loop
// always makes progress
type Clock struct {
	Tick time.Duration
	now  atomic.Int64
}

// NewClock creates a Clock advancing by tick per read
func NewClock(tick time.Duration) *Clock {
	return &Clock{Tick: tick}
}

// Now implements motion.Clock
func (c *Clock) Now() time.Duration {
	return time.Duration(c.now.Add(int64(c.Tick)))
}

// Advance moves the clock forward without counting as a read
func (c *Clock) Advance(d time.Duration) {
	c.now.Add(int64(d))
}

// Stepper records what the firmware asked of the stepper driver
type Stepper struct {
	mu sync.Mutex

	forward  bool
	enabled  bool
	pulses   int
	position int64

	// OnStep is called after every pulse with the absolute position
	OnStep func(position int64)
}

// SetDirection implements motion.Driver
func (s *Stepper) SetDirection(forward bool) {
	s.mu.Lock()
	s.forward = forward
	s.mu.Unlock()
}

// Step implements motion.Driver
func (s *Stepper) Step() {
	s.mu.Lock()
	s.pulses++
	if s.forward {
		s.position++
	} else {
		s.position--
	}
	pos := s.position
	onStep := s.OnStep
	s.mu.Unlock()

	if onStep != nil {
		onStep(pos)
	}
}

// SetEnabled implements motion.Driver
func (s *Stepper) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Enabled tells if the coils are energized
func (s *Stepper) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Pulses returns the number of step pulses emitted
func (s *Stepper) Pulses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulses
}

// Position returns the absolute carriage position in steps
func (s *Stepper) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// ShiftRegister records the bytes shifted into the LED chain, one frame per latch
type ShiftRegister struct {
	mu      sync.Mutex
	pending []byte
	frames  [][]byte
}

// ShiftOut implements leds.ShiftRegister
func (r *ShiftRegister) ShiftOut(b byte) {
	r.mu.Lock()
	r.pending = append(r.pending, b)
	r.mu.Unlock()
}

// Latch implements leds.ShiftRegister
func (r *ShiftRegister) Latch() {
	r.mu.Lock()
	r.frames = append(r.frames, r.pending)
	r.pending = nil
	r.mu.Unlock()
}

// Frames returns every latched frame in order
func (r *ShiftRegister) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

// Last returns the most recently latched frame, or nil
func (r *ShiftRegister) Last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

// Switch is a pulled-up limit switch input: Get returns false while the switch is closed
type Switch struct {
	closed atomic.Bool

	// Closed, if set, decides the switch state instead of Press/Release
	Closed func() bool
}

// Get implements interlock.Input
func (s *Switch) Get() bool {
	if s.Closed != nil {
		return !s.Closed()
	}
	return !s.closed.Load()
}

func (s *Switch) Press()   { s.closed.Store(true) }
func (s *Switch) Release() { s.closed.Store(false) }

// ErrNoData is returned by a non-blocking read of an empty direction of the Port
var ErrNoData = errors.New("no data available")

// DefaultReadTimeout is how long a HostEnd read waits for the firmware before returning no data
const DefaultReadTimeout = 50 * time.Millisecond

// Port is a simulated serial link. DeviceEnd is what the firmware sees, HostEnd is what a host
// program sees
type Port struct {
	// ReadTimeout bounds each HostEnd read, like the read timeout of a real serial port
	ReadTimeout time.Duration

	mu       sync.Mutex
	toDevice []byte
	toHost   []byte
	closed   bool

	written chan struct{}
	done    chan struct{}
}

// NewPort creates an empty serial link
func NewPort() *Port {
	return &Port{
		ReadTimeout: DefaultReadTimeout,
		written:     make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Device returns the firmware side of the link
func (p *Port) Device() *DeviceEnd { return &DeviceEnd{p} }

// Host returns the host side of the link
func (p *Port) Host() *HostEnd { return &HostEnd{p} }

// Close unblocks readers on the host side
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

// DeviceEnd implements the firmware serial interface without ever blocking
type DeviceEnd struct{ p *Port }

// Buffered returns the number of bytes waiting for the firmware
func (d *DeviceEnd) Buffered() int {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	return len(d.p.toDevice)
}

// ReadByte returns the next byte sent by the host, or ErrNoData
func (d *DeviceEnd) ReadByte() (byte, error) {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	if len(d.p.toDevice) == 0 {
		return 0, ErrNoData
	}
	b := d.p.toDevice[0]
	d.p.toDevice = d.p.toDevice[1:]
	return b, nil
}

// WriteByte sends one byte to the host
func (d *DeviceEnd) WriteByte(b byte) error {
	_, err := d.Write([]byte{b})
	return err
}

// Write sends bytes to the host
func (d *DeviceEnd) Write(b []byte) (int, error) {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	if d.p.closed {
		return 0, io.ErrClosedPipe
	}
	d.p.toHost = append(d.p.toHost, b...)
	select {
	case d.p.written <- struct{}{}:
	default:
	}
	return len(b), nil
}

// HostEnd is an io.ReadWriteCloser for host programs. Like a serial port with a read timeout, Read
// returns no data and no error when the firmware stays quiet for ReadTimeout
type HostEnd struct{ p *Port }

// Write sends bytes to the firmware
func (h *HostEnd) Write(b []byte) (int, error) {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	if h.p.closed {
		return 0, io.ErrClosedPipe
	}
	h.p.toDevice = append(h.p.toDevice, b...)
	return len(b), nil
}

// Read waits up to ReadTimeout for the firmware to write something. It returns io.EOF once the
// port is closed and drained
func (h *HostEnd) Read(b []byte) (int, error) {
	var timeout <-chan time.Time
	if h.p.ReadTimeout > 0 {
		timer := time.NewTimer(h.p.ReadTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		h.p.mu.Lock()
		if len(h.p.toHost) > 0 {
			n := copy(b, h.p.toHost)
			h.p.toHost = h.p.toHost[n:]
			h.p.mu.Unlock()
			return n, nil
		}
		closed := h.p.closed
		h.p.mu.Unlock()

		if closed {
			return 0, io.EOF
		}

		select {
		case <-h.p.written:
		case <-h.p.done:
		case <-timeout:
			return 0, nil
		}
	}
}

// ResetInputBuffer drops everything the firmware has written and the host has not read yet
func (h *HostEnd) ResetInputBuffer() error {
	h.Drain()
	return nil
}

// Drain returns everything the firmware has written so far without blocking
func (h *HostEnd) Drain() []byte {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	out := h.p.toHost
	h.p.toHost = nil
	return out
}

// Close closes the whole link
func (h *HostEnd) Close() error {
	return h.p.Close()
}
