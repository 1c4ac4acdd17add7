// Package motion generates acceleration-limited step pulses for the positioner's stepper motor.
//
// A Controller is advanced cooperatively: the scheduling loop calls AdvanceOneTick once per
// iteration and the Controller decides whether a step pulse is due at that instant. Speed follows
// a trapezoidal profile that ramps at the maximum acceleration, holds at the move's speed cap,
// and ramps down so the last step lands exactly on the target.
package motion

import (
	"errors"
	"math"
	"time"

	"github.com/calvinmclean/muff"
)

// Phase is the current segment of the speed profile
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAccelerating
	PhaseCruising
	PhaseDecelerating
)

func (p Phase) String() string {
	switch p {
	case PhaseAccelerating:
		return "Accelerating"
	case PhaseCruising:
		return "Cruising"
	case PhaseDecelerating:
		return "Decelerating"
	default:
		return "Idle"
	}
}

// Power tells if the motor driver outputs are energized
type Power int

const (
	PowerDisabled Power = iota
	PowerEnabled
)

func (p Power) String() string {
	if p == PowerEnabled {
		return "Enabled"
	}
	return "Disabled"
}

// Driver is the step/direction/enable interface of the stepper driver
type Driver interface {
	// SetDirection selects the direction of the following step pulses
	SetDirection(forward bool)
	// Step emits one step pulse
	Step()
	// SetEnabled energizes or releases the motor coils
	SetEnabled(enabled bool)
}

// Clock reports the monotonic time since boot
type Clock interface {
	Now() time.Duration
}

// Controller owns the MotionState of the single axis. It must only be used from the scheduling loop
type Controller struct {
	driver Driver
	clock  Clock

	// position and target are relative to the start of the current move
	position int32
	target   int32
	forward  bool

	// odometer is the absolute step count since boot
	odometer int64

	maxSpeed uint32
	// acceleration is applied to the next move; moveAcceleration is latched for the current one
	acceleration     uint32
	moveAcceleration uint32

	phase Phase
	power Power

	// speed is the instantaneous speed in steps/s used to time the next step
	speed    float64
	interval time.Duration
	lastStep time.Duration
}

// New creates an idle Controller with the motor disabled
func New(driver Driver, clock Clock, maxAcceleration uint32) (*Controller, error) {
	if driver == nil || clock == nil {
		return nil, errors.New("motion controller requires a driver and a clock")
	}
	if maxAcceleration == 0 {
		return nil, muff.ErrZeroAcceleration
	}

	c := &Controller{
		driver:           driver,
		clock:            clock,
		acceleration:     maxAcceleration,
		moveAcceleration: maxAcceleration,
		phase:            PhaseIdle,
		power:            PowerEnabled,
	}
	c.disable()

	return c, nil
}

// BeginMove starts moving delta steps from the current position with the speed capped at maxSpeed.
// A move in progress is brought to a stop first, and position is reset to zero. If blocking is true,
// BeginMove only returns once the motor is idle at the target.
func (c *Controller) BeginMove(delta int32, maxSpeed uint32, blocking bool) {
	c.EmergencyStop()

	c.position = 0
	c.target = delta
	c.maxSpeed = maxSpeed
	c.moveAcceleration = c.acceleration

	if delta == 0 || maxSpeed == 0 {
		c.target = 0
		c.finish()
		return
	}

	c.forward = delta > 0
	c.driver.SetDirection(c.forward)
	c.enable()

	c.speed = math.Min(math.Sqrt(c.twoA()), float64(maxSpeed))
	c.phase = PhaseAccelerating
	if c.speed >= float64(maxSpeed) {
		c.phase = PhaseCruising
	}
	c.interval = stepInterval(c.speed)
	c.lastStep = c.clock.Now()

	if blocking {
		c.wait()
	}
}

// AdvanceOneTick emits at most one step pulse, if one is due now. An idle motor is powered down
func (c *Controller) AdvanceOneTick() {
	if c.phase == PhaseIdle {
		c.disable()
		return
	}

	now := c.clock.Now()
	if now-c.lastStep < c.interval {
		return
	}
	c.lastStep = now

	c.driver.Step()
	if c.forward {
		c.position++
		c.odometer++
	} else {
		c.position--
		c.odometer--
	}

	c.updateSpeed()
}

// updateSpeed computes the speed for the next step from the distance left to the target
func (c *Controller) updateSpeed() {
	remaining := c.remaining()
	if remaining == 0 {
		c.finish()
		return
	}

	twoA := c.twoA()
	r := float64(remaining)
	stopping := math.Sqrt(twoA * r)

	if r <= c.speed*c.speed/twoA {
		c.phase = PhaseDecelerating
		c.speed = stopping
		c.interval = stepInterval(c.speed)
		return
	}

	next := math.Sqrt(c.speed*c.speed + twoA)
	c.phase = PhaseAccelerating
	if vmax := float64(c.maxSpeed); next >= vmax {
		next = vmax
		c.phase = PhaseCruising
	}
	// the next step must still leave room to stop at the target
	if next > stopping {
		next = stopping
		c.phase = PhaseDecelerating
	}

	c.speed = next
	c.interval = stepInterval(c.speed)
}

// EmergencyStop decelerates to a stop as quickly as the acceleration limit allows and only returns
// once the motor is idle. It does nothing if the motor is already idle.
func (c *Controller) EmergencyStop() {
	if c.phase == PhaseIdle {
		return
	}

	stop := int32(math.Ceil(c.speed * c.speed / c.twoA()))
	if remaining := c.remaining(); stop > remaining {
		stop = remaining
	}
	if stop < 1 {
		stop = 1
	}
	if !c.forward {
		stop = -stop
	}
	c.target = c.position + stop

	c.wait()
}

// WaitIdle advances the motor until it is idle or until timeout has elapsed on the motion clock.
// It returns true if the motor became idle
func (c *Controller) WaitIdle(timeout time.Duration) bool {
	deadline := c.clock.Now() + timeout
	for c.phase != PhaseIdle {
		if c.clock.Now() >= deadline {
			return false
		}
		c.AdvanceOneTick()
	}
	return true
}

func (c *Controller) wait() {
	for c.phase != PhaseIdle {
		c.AdvanceOneTick()
	}
}

// finish makes the current position the target and powers the motor down
func (c *Controller) finish() {
	c.target = c.position
	c.speed = 0
	c.interval = 0
	c.phase = PhaseIdle
	c.disable()
}

func (c *Controller) enable() {
	if c.power != PowerEnabled {
		c.driver.SetEnabled(true)
		c.power = PowerEnabled
	}
}

func (c *Controller) disable() {
	if c.power != PowerDisabled {
		c.driver.SetEnabled(false)
		c.power = PowerDisabled
	}
}

func (c *Controller) remaining() int32 {
	r := c.target - c.position
	if r < 0 {
		return -r
	}
	return r
}

func (c *Controller) twoA() float64 {
	return 2 * float64(c.moveAcceleration)
}

func stepInterval(speed float64) time.Duration {
	if speed <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / speed)
}

// SetMaxAcceleration sets the acceleration used from the next move on
func (c *Controller) SetMaxAcceleration(a uint32) error {
	if a == 0 {
		return muff.ErrZeroAcceleration
	}
	c.acceleration = a
	return nil
}

// MaxAcceleration returns the acceleration that the next move will use
func (c *Controller) MaxAcceleration() uint32 {
	return c.acceleration
}

// IsMoving tells if a move is in progress
func (c *Controller) IsMoving() bool {
	return c.phase != PhaseIdle
}

func (c *Controller) Position() int32  { return c.position }
func (c *Controller) Target() int32    { return c.target }
func (c *Controller) Odometer() int64  { return c.odometer }
func (c *Controller) Phase() Phase     { return c.phase }
func (c *Controller) Power() Power     { return c.power }
func (c *Controller) MaxSpeed() uint32 { return c.maxSpeed }

// Speed returns the instantaneous speed in steps/s
func (c *Controller) Speed() float64 { return c.speed }

// Now reads the motion clock
func (c *Controller) Now() time.Duration { return c.clock.Now() }
