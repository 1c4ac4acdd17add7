package scheduler_test

import (
	"testing"
	"time"

	"github.com/calvinmclean/muff/firmware/commands"
	"github.com/calvinmclean/muff/firmware/interlock"
	"github.com/calvinmclean/muff/firmware/motion"
	"github.com/calvinmclean/muff/firmware/scheduler"
	"github.com/calvinmclean/muff/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// controller moves the motor for jog commands and ignores everything else
type controller struct {
	m    *motion.Controller
	acks int
}

func (c *controller) Jog(_ commands.Mode, direction int32) { c.m.BeginMove(direction*2000, 300, false) }
func (c *controller) Stop()                                { c.m.EmergencyStop() }
func (c *controller) SetFrameOffset(int32)                 {}
func (c *controller) MoveFrameOffset()                     {}
func (c *controller) SetLED(int, bool) error               { return nil }
func (c *controller) SetAllLEDs(bool)                      {}
func (c *controller) SetMaxAcceleration(uint32) error      { return nil }
func (c *controller) Status()                              {}
func (c *controller) Log(string)                           {}
func (c *controller) Error(string)                         {}
func (c *controller) Ack()                                 { c.acks++ }

type rig struct {
	loop    *scheduler.Loop
	ctrl    *controller
	stepper *sim.Stepper
	limit   *sim.Switch
	host    *sim.HostEnd
}

func newRig(t *testing.T) *rig {
	t.Helper()

	stepper := &sim.Stepper{}
	m, err := motion.New(stepper, sim.NewClock(50*time.Microsecond), 400)
	require.NoError(t, err)

	limit := &sim.Switch{}
	il, err := interlock.New(limit, m, nil, interlock.Config{
		RetreatSteps:    20,
		RetreatSpeed:    100,
		RetreatTimeout:  time.Second,
		SwitchDirection: 1,
	})
	require.NoError(t, err)

	ctrl := &controller{m: m}
	port := sim.NewPort()

	return &rig{
		loop:    scheduler.New(m, port.Device(), commands.NewDispatcher(ctrl), il),
		ctrl:    ctrl,
		stepper: stepper,
		limit:   limit,
		host:    port.Host(),
	}
}

func TestPartialArgumentDoesNotBlockMotion(t *testing.T) {
	r := newRig(t)

	_, err := r.host.Write([]byte("1"))
	require.NoError(t, err)
	for i := 0; r.stepper.Pulses() < 10; i++ {
		require.Less(t, i, 1_000_000)
		r.loop.Iterate()
	}

	// half a frame offset command, the rest never arrives
	_, err = r.host.Write([]byte("4+0"))
	require.NoError(t, err)

	pulses := r.stepper.Pulses()
	for i := 0; i < 200_000; i++ {
		r.loop.Iterate()
	}

	assert.Greater(t, r.stepper.Pulses(), pulses+100)
	assert.Equal(t, 1, r.ctrl.acks)
}

func TestLimitSwitchStopsMotion(t *testing.T) {
	r := newRig(t)
	r.limit.Closed = func() bool { return r.stepper.Position() >= 50 }

	_, err := r.host.Write([]byte("1"))
	require.NoError(t, err)

	for i := 0; r.ctrl.m.IsMoving() || !r.limit.Get(); i++ {
		require.Less(t, i, 1_000_000, "limit switch did not stop the motor")
		r.loop.Iterate()
	}

	assert.Less(t, r.stepper.Position(), int64(50))
	assert.False(t, r.stepper.Enabled())
}
