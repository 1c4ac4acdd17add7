//go:build tinygo

package main

import (
	"machine"
	"time"

	"github.com/calvinmclean/muff/firmware/device"
)

func main() {
	machine.Serial.Configure(machine.UARTConfig{BaudRate: device.DefaultBaudRate})

	stepperCfg := device.StepperConfig{
		StepPin:    machine.D3,
		DirPin:     machine.D4,
		EnablePin:  machine.D2,
		PulseWidth: 2 * time.Microsecond,
	}

	ledCfg := device.LEDConfig{
		LatchPin: machine.D8,
		ClockPin: machine.D9,
		DataPin:  machine.D6,
	}

	hw := device.Hardware{
		Stepper: device.NewStepDriver(stepperCfg),
		Clock:   device.NewSystemClock(),
		LEDs:    device.NewShiftChain(ledCfg),
		Limit:   device.NewLimitSwitch(machine.D7),
		Serial:  machine.Serial,
	}

	d, err := device.New(hw, device.DefaultConfig())
	if err != nil {
		panic(err)
	}

	d.Banner()

	loop := d.Loop()
	for {
		loop.Iterate()
	}
}
