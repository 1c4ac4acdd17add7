package device

import (
	"errors"
	"time"

	"github.com/calvinmclean/muff"
	"github.com/calvinmclean/muff/firmware/interlock"
)

// DefaultBaudRate is the serial speed expected by the host tools
const DefaultBaudRate = 9600

// Config has the move modes and calibration of the positioner. It is never persisted:
// the firmware always boots with DefaultConfig
type Config struct {
	// FineSteps and FineSpeed define the fine jog (steps, steps/s)
	FineSteps int32
	FineSpeed uint32
	// CoarseSteps and CoarseSpeed define the coarse jog (steps, steps/s)
	CoarseSteps int32
	CoarseSpeed uint32
	// FrameSpeed caps the speed of the move between frames
	FrameSpeed uint32
	// FrameOffsetSteps is the boot value of the displacement between frames
	FrameOffsetSteps int32

	// MaxAcceleration is the boot value of the max acceleration, in steps/s^2
	MaxAcceleration uint32

	// NanometersPerStep converts the frame displacement from microns to steps
	NanometersPerStep int32

	Interlock interlock.Config
}

// DefaultConfig returns the firmware defaults
func DefaultConfig() Config {
	return Config{
		FineSteps:         1600,
		FineSpeed:         200,
		CoarseSteps:       16000,
		CoarseSpeed:       1000,
		FrameSpeed:        400,
		MaxAcceleration:   200,
		NanometersPerStep: muff.NanometersPerStep,
		Interlock: interlock.Config{
			RetreatSteps:    32,
			RetreatSpeed:    200,
			RetreatTimeout:  time.Second,
			SwitchDirection: +1,
		},
	}
}

// Validate checks that every speed and increment is usable
func (c Config) Validate() error {
	if c.FineSteps <= 0 || c.CoarseSteps <= 0 {
		return errors.New("step increments must be positive")
	}
	if c.FineSpeed == 0 || c.CoarseSpeed == 0 || c.FrameSpeed == 0 || c.Interlock.RetreatSpeed == 0 {
		return errors.New("max speeds must be positive")
	}
	if c.MaxAcceleration == 0 || c.MaxAcceleration > muff.MaxAcceleration {
		return errors.New("max acceleration must be in 1-999")
	}
	if c.NanometersPerStep <= 0 {
		return errors.New("nanometers per step must be positive")
	}
	return nil
}
