package interlock

import (
	"testing"
	"time"

	"github.com/calvinmclean/muff/firmware/motion"
	"github.com/calvinmclean/muff/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reporter struct {
	errors []string
}

func (r *reporter) Error(msg string) {
	r.errors = append(r.errors, msg)
}

var testConfig = Config{
	RetreatSteps:    32,
	RetreatSpeed:    200,
	RetreatTimeout:  time.Second,
	SwitchDirection: 1,
}

func newTestInterlock(t *testing.T, cfg Config) (*Interlock, *motion.Controller, *sim.Stepper, *sim.Switch, *reporter) {
	t.Helper()
	stepper := &sim.Stepper{}
	m, err := motion.New(stepper, sim.NewClock(20*time.Microsecond), 400)
	require.NoError(t, err)

	sw := &sim.Switch{}
	r := &reporter{}
	i, err := New(sw, m, r, cfg)
	require.NoError(t, err)
	return i, m, stepper, sw, r
}

func TestNewValidation(t *testing.T) {
	m, err := motion.New(&sim.Stepper{}, sim.NewClock(time.Microsecond), 10)
	require.NoError(t, err)

	_, err = New(nil, m, nil, testConfig)
	assert.Error(t, err)

	cfg := testConfig
	cfg.SwitchDirection = 0
	_, err = New(&sim.Switch{}, m, nil, cfg)
	assert.Error(t, err)

	cfg = testConfig
	cfg.RetreatSteps = -1
	_, err = New(&sim.Switch{}, m, nil, cfg)
	assert.Error(t, err)
}

func TestCheckOpenSwitch(t *testing.T) {
	i, m, stepper, _, r := newTestInterlock(t, testConfig)
	m.BeginMove(1000, 300, false)

	assert.False(t, i.Check())
	assert.True(t, m.IsMoving())
	assert.Zero(t, stepper.Pulses())
	assert.Empty(t, r.errors)
	assert.Zero(t, i.Trips())
}

func TestCheckWhileMovingForward(t *testing.T) {
	i, m, stepper, sw, r := newTestInterlock(t, testConfig)
	m.BeginMove(100000, 800, false)

	// the switch closes at absolute position 3000
	sw.Closed = func() bool { return stepper.Position() >= 3000 }

	iterations := 0
	for !i.Check() {
		m.AdvanceOneTick()
		iterations++
		require.Less(t, iterations, 10_000_000)
	}

	assert.False(t, m.IsMoving())
	assert.Equal(t, motion.PowerDisabled, m.Power())
	assert.False(t, stepper.Enabled())
	assert.Equal(t, []string{"limit switch triggered"}, r.errors)
	assert.Equal(t, uint32(1), i.Trips())

	// stopping took the deceleration distance, then the retreat came back by 32 steps
	// 800^2 / (2*400) = 800
	stopAt := int64(3000 + 800)
	assert.InDelta(t, stopAt-32, stepper.Position(), 2)
	assert.Equal(t, int32(-32), m.Position())
}

func TestCheckIdleSwitchClosed(t *testing.T) {
	cfg := testConfig
	cfg.SwitchDirection = -1
	i, m, stepper, sw, _ := newTestInterlock(t, cfg)

	sw.Press()
	assert.True(t, i.Check())
	assert.False(t, m.IsMoving())
	assert.Equal(t, int64(32), stepper.Position())
	assert.False(t, stepper.Enabled())

	sw.Release()
	assert.False(t, i.Check())
	assert.Equal(t, uint32(1), i.Trips())
}

func TestCheckRetreatTimeout(t *testing.T) {
	cfg := testConfig
	cfg.RetreatSteps = 5000
	cfg.RetreatSpeed = 100
	cfg.RetreatTimeout = 100 * time.Millisecond
	i, m, stepper, sw, _ := newTestInterlock(t, cfg)

	sw.Press()
	assert.True(t, i.Check())

	assert.False(t, m.IsMoving())
	assert.False(t, stepper.Enabled())
	assert.Less(t, -stepper.Position(), int64(5000))
	assert.Greater(t, -stepper.Position(), int64(0))
}
