package motion

import (
	"testing"
	"time"

	"github.com/calvinmclean/muff"
	"github.com/calvinmclean/muff/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, accel uint32) (*Controller, *sim.Stepper) {
	t.Helper()
	stepper := &sim.Stepper{}
	c, err := New(stepper, sim.NewClock(20*time.Microsecond), accel)
	require.NoError(t, err)
	return c, stepper
}

// runToIdle ticks until the move is done, checking the profile after every step
func runToIdle(t *testing.T, c *Controller) {
	t.Helper()

	lastPos := c.Position()
	lastSpeed := c.Speed()
	lastPhase := c.Phase()
	for i := 0; c.IsMoving(); i++ {
		require.Less(t, i, 50_000_000, "move did not finish")
		c.AdvanceOneTick()
		if c.Position() == lastPos {
			continue
		}

		require.LessOrEqual(t, c.Speed(), float64(c.MaxSpeed())+1e-9)
		switch {
		case c.Phase() == PhaseAccelerating && lastPhase == PhaseAccelerating:
			require.GreaterOrEqual(t, c.Speed(), lastSpeed)
		case c.Phase() == PhaseCruising && lastPhase == PhaseCruising:
			require.Equal(t, lastSpeed, c.Speed())
		case c.Phase() == PhaseDecelerating && lastPhase == PhaseDecelerating:
			require.LessOrEqual(t, c.Speed(), lastSpeed)
		}
		if c.IsMoving() {
			require.Equal(t, PowerEnabled, c.Power())
		}

		lastPos = c.Position()
		lastSpeed = c.Speed()
		lastPhase = c.Phase()
	}
}

func TestNew(t *testing.T) {
	_, err := New(&sim.Stepper{}, sim.NewClock(time.Microsecond), 0)
	assert.ErrorIs(t, err, muff.ErrZeroAcceleration)

	_, err = New(nil, sim.NewClock(time.Microsecond), 10)
	assert.Error(t, err)

	c, stepper := newTestController(t, 100)
	assert.False(t, c.IsMoving())
	assert.Equal(t, PowerDisabled, c.Power())
	assert.False(t, stepper.Enabled())
}

func TestBeginMoveReachesTarget(t *testing.T) {
	tests := []struct {
		name     string
		delta    int32
		maxSpeed uint32
		accel    uint32
	}{
		{"SingleStepForward", 1, 100, 100},
		{"SingleStepBackward", -1, 100, 100},
		{"TwoSteps", 2, 500, 999},
		{"ShortTriangle", 30, 1000, 50},
		{"FineForward", 1600, 200, 200},
		{"FineBackward", -1600, 200, 200},
		{"CoarseForward", 16000, 1000, 200},
		{"SlowCap", 30, 1, 999},
		{"CapBelowFirstStep", 50, 3, 100},
		{"HighAccel", 5000, 800, 999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, stepper := newTestController(t, tt.accel)

			c.BeginMove(tt.delta, tt.maxSpeed, false)
			assert.True(t, c.IsMoving())
			assert.Equal(t, PowerEnabled, c.Power())
			assert.True(t, stepper.Enabled())

			runToIdle(t, c)

			assert.Equal(t, tt.delta, c.Position())
			assert.Equal(t, c.Target(), c.Position())
			assert.Equal(t, int64(tt.delta), stepper.Position())
			abs := tt.delta
			if abs < 0 {
				abs = -abs
			}
			assert.Equal(t, int(abs), stepper.Pulses())
			assert.Equal(t, PhaseIdle, c.Phase())
			assert.Equal(t, PowerDisabled, c.Power())
			assert.False(t, stepper.Enabled())
			assert.Zero(t, c.Speed())
		})
	}
}

func TestTrapezoidPhases(t *testing.T) {
	c, _ := newTestController(t, 200)
	c.BeginMove(4000, 400, false)

	seen := map[Phase]int{}
	order := []Phase{c.Phase()}
	lastPos := c.Position()
	for c.IsMoving() {
		c.AdvanceOneTick()
		if c.Position() == lastPos {
			continue
		}
		lastPos = c.Position()
		seen[c.Phase()]++
		if order[len(order)-1] != c.Phase() {
			order = append(order, c.Phase())
		}
	}

	assert.Equal(t, []Phase{PhaseAccelerating, PhaseCruising, PhaseDecelerating, PhaseIdle}, order)
	// 400^2 / (2*200) = 400 steps to ramp down
	assert.InDelta(t, 400, seen[PhaseDecelerating], 2)
	assert.InDelta(t, 400, seen[PhaseAccelerating], 3)
}

func TestBeginMoveZero(t *testing.T) {
	c, stepper := newTestController(t, 100)
	c.BeginMove(0, 100, false)

	assert.False(t, c.IsMoving())
	assert.Equal(t, PowerDisabled, c.Power())
	assert.Zero(t, stepper.Pulses())
}

func TestBeginMoveBlocking(t *testing.T) {
	c, stepper := newTestController(t, 300)
	c.BeginMove(-250, 300, true)

	assert.False(t, c.IsMoving())
	assert.Equal(t, int32(-250), c.Position())
	assert.Equal(t, int64(-250), stepper.Position())
	assert.False(t, stepper.Enabled())
}

func TestBeginMoveWhileMovingStopsFirst(t *testing.T) {
	c, stepper := newTestController(t, 100)
	c.BeginMove(10000, 500, false)
	for c.Position() < 2000 {
		c.AdvanceOneTick()
	}
	speed := c.Speed()
	require.Greater(t, speed, 0.0)

	c.BeginMove(-100, 500, false)
	stoppedAt := stepper.Position()
	assert.Equal(t, int32(0), c.Position())
	assert.Equal(t, int32(-100), c.Target())

	// the stop took at most the deceleration distance
	overrun := stoppedAt - 2000
	assert.LessOrEqual(t, overrun, int64(speed*speed/200)+1)
	assert.Greater(t, overrun, int64(0))

	runToIdle(t, c)
	assert.Equal(t, stoppedAt-100, stepper.Position())
	assert.Equal(t, stepper.Position(), c.Odometer())
}

func TestEmergencyStop(t *testing.T) {
	c, stepper := newTestController(t, 250)
	c.BeginMove(20000, 700, false)
	for c.Phase() != PhaseCruising {
		c.AdvanceOneTick()
	}
	before := stepper.Position()

	c.EmergencyStop()

	assert.False(t, c.IsMoving())
	assert.Equal(t, PowerDisabled, c.Power())
	assert.Equal(t, c.Target(), c.Position())
	// 700^2 / (2*250) = 980
	assert.InDelta(t, 980, stepper.Position()-before, 1)
}

func TestEmergencyStopIdle(t *testing.T) {
	c, stepper := newTestController(t, 250)
	c.EmergencyStop()

	assert.False(t, c.IsMoving())
	assert.Zero(t, stepper.Pulses())
	assert.Zero(t, c.Position())
}

func TestEmergencyStopNearTarget(t *testing.T) {
	c, stepper := newTestController(t, 100)
	c.BeginMove(500, 300, false)
	for c.Position() < 495 {
		c.AdvanceOneTick()
	}

	c.EmergencyStop()
	assert.Equal(t, int64(500), stepper.Position())
	assert.Equal(t, int32(500), c.Position())
}

func TestWaitIdleTimeout(t *testing.T) {
	c, _ := newTestController(t, 100)
	c.BeginMove(100000, 100, false)

	assert.False(t, c.WaitIdle(time.Second))
	assert.True(t, c.IsMoving())

	c.EmergencyStop()
	assert.True(t, c.WaitIdle(time.Second))
}

func TestSetMaxAcceleration(t *testing.T) {
	c, _ := newTestController(t, 100)

	assert.ErrorIs(t, c.SetMaxAcceleration(0), muff.ErrZeroAcceleration)
	assert.Equal(t, uint32(100), c.MaxAcceleration())

	require.NoError(t, c.SetMaxAcceleration(500))
	assert.Equal(t, uint32(500), c.MaxAcceleration())
}

func TestSetMaxAccelerationAppliesToNextMove(t *testing.T) {
	c, _ := newTestController(t, 100)
	c.BeginMove(10000, 1000, false)
	for c.Position() < 100 {
		c.AdvanceOneTick()
	}

	require.NoError(t, c.SetMaxAcceleration(900))
	assert.Equal(t, uint32(100), c.moveAcceleration)

	c.BeginMove(10, 1000, true)
	assert.Equal(t, uint32(900), c.moveAcceleration)
}

func TestIdleTickPowersDown(t *testing.T) {
	c, stepper := newTestController(t, 100)
	c.enable()
	require.True(t, stepper.Enabled())

	c.AdvanceOneTick()
	assert.False(t, stepper.Enabled())
	assert.Equal(t, PowerDisabled, c.Power())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "Idle", PhaseIdle.String())
	assert.Equal(t, "Decelerating", PhaseDecelerating.String())
	assert.Equal(t, "Enabled", PowerEnabled.String())
}
