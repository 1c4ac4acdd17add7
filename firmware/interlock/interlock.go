// Package interlock keeps the carriage from driving into the end-of-travel limit switch.
package interlock

import (
	"errors"
	"time"
)

// Input is the pulled-up limit switch input. Get returns false while the switch is closed
type Input interface {
	Get() bool
}

// Motor is the part of the motion controller the interlock needs
type Motor interface {
	BeginMove(delta int32, maxSpeed uint32, blocking bool)
	WaitIdle(timeout time.Duration) bool
	EmergencyStop()
}

// Reporter receives the diagnostic emitted when the switch trips
type Reporter interface {
	Error(msg string)
}

// Config has the physical calibration of the retreat. These are found experimentally
type Config struct {
	// RetreatSteps is how far to back off the switch
	RetreatSteps int32
	// RetreatSpeed is the speed cap of the retreat move in steps/s
	RetreatSpeed uint32
	// RetreatTimeout bounds how long the retreat may run before it is stopped anyway
	RetreatTimeout time.Duration
	// SwitchDirection is +1 if the switch is at the forward end of travel and -1 if at the backward end
	SwitchDirection int32
}

// Interlock checks the limit switch once per scheduling iteration
type Interlock struct {
	input    Input
	motor    Motor
	reporter Reporter
	cfg      Config

	trips uint32
}

// New creates an Interlock. reporter may be nil
func New(input Input, motor Motor, reporter Reporter, cfg Config) (*Interlock, error) {
	if input == nil || motor == nil {
		return nil, errors.New("interlock requires an input and a motor")
	}
	if cfg.SwitchDirection != 1 && cfg.SwitchDirection != -1 {
		return nil, errors.New("switch direction must be +1 or -1")
	}
	if cfg.RetreatSteps < 0 {
		return nil, errors.New("retreat steps must not be negative")
	}

	return &Interlock{
		input:    input,
		motor:    motor,
		reporter: reporter,
		cfg:      cfg,
	}, nil
}

// Check reads the switch. If it is closed, the carriage backs off and is stopped before Check
// returns. It returns true if the switch was closed
func (i *Interlock) Check() bool {
	if i.input.Get() {
		return false
	}

	i.trips++
	if i.reporter != nil {
		i.reporter.Error("limit switch triggered")
	}

	i.motor.BeginMove(-i.cfg.SwitchDirection*i.cfg.RetreatSteps, i.cfg.RetreatSpeed, false)
	i.motor.WaitIdle(i.cfg.RetreatTimeout)
	i.motor.EmergencyStop()

	return true
}

// Trips returns how many times the switch has been found closed since boot
func (i *Interlock) Trips() uint32 {
	return i.trips
}
