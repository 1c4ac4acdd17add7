package commands

import (
	"strconv"

	"github.com/calvinmclean/muff"
)

type Command struct {
	Flag        muff.Opcode
	InputSize   uint
	Run         func(Controller, []byte) error
	Description string
}

// Mode selects the step increment and speed cap of a jog
type Mode int

const (
	ModeFine Mode = iota
	ModeCoarse
)

func (m Mode) String() string {
	if m == ModeCoarse {
		return "coarse"
	}
	return "fine"
}

// Controller is used to control the positioner
type Controller interface {
	Jog(mode Mode, direction int32)
	Stop()
	SetFrameOffset(microns int32)
	MoveFrameOffset()
	SetLED(index int, on bool) error
	SetAllLEDs(on bool)
	SetMaxAcceleration(uint32) error
	Status()

	// I/O
	Log(msg string)
	Error(msg string)
	Ack()
}

var (
	FineForwardCommand = &Command{
		Flag:      muff.OpcodeFineForward,
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			c.Jog(ModeFine, +1)
			return nil
		},
		Description: "Start a fine move up. Returns while the motor is moving.",
	}
	FineBackwardCommand = &Command{
		Flag:      muff.OpcodeFineBackward,
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			c.Jog(ModeFine, -1)
			return nil
		},
		Description: "Start a fine move down. Returns while the motor is moving.",
	}
	StopCommand = &Command{
		Flag:      muff.OpcodeStop,
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			c.Stop()
			return nil
		},
		Description: "Stop the motor, if moving. Returns once it has stopped.",
	}
	SetFrameOffsetCommand = &Command{
		Flag:      muff.OpcodeSetFrameOffset,
		InputSize: 4,
		Run: func(c Controller, input []byte) error {
			microns, err := parseMicrons(input)
			if err != nil {
				return err
			}
			c.SetFrameOffset(microns)
			return nil
		},
		Description: "Set the displacement between frames. Input: '+' or '-', then 3 digits in microns.",
	}
	MoveFrameOffsetCommand = &Command{
		Flag:      muff.OpcodeMoveFrameOffset,
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			c.MoveFrameOffset()
			return nil
		},
		Description: "Move by the frame displacement. Returns once the move is complete.",
	}
	CoarseForwardCommand = &Command{
		Flag:      muff.OpcodeCoarseForward,
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			c.Jog(ModeCoarse, +1)
			return nil
		},
		Description: "Start a coarse move up. Returns while the motor is moving.",
	}
	CoarseBackwardCommand = &Command{
		Flag:      muff.OpcodeCoarseBackward,
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			c.Jog(ModeCoarse, -1)
			return nil
		},
		Description: "Start a coarse move down. Returns while the motor is moving.",
	}
	SetMaxAccelerationCommand = &Command{
		Flag:      muff.OpcodeSetMaxAcceleration,
		InputSize: 3,
		Run: func(c Controller, input []byte) error {
			a, err := parseDigits(input)
			if err != nil {
				return err
			}
			if a == 0 {
				return muff.ErrZeroAcceleration
			}
			return c.SetMaxAcceleration(a)
		},
		Description: "Set the max acceleration for the next moves. Input: 3 digits in steps/s^2, '001' to '999'.",
	}
	LEDOnCommand = &Command{
		Flag:      muff.OpcodeLEDOn,
		InputSize: 1,
		Run: func(c Controller, input []byte) error {
			return switchLEDs(c, input[0], true)
		},
		Description: "Turn LED(s) on. Input: 'A' to 'X', or '@' for all.",
	}
	LEDOffCommand = &Command{
		Flag:      muff.OpcodeLEDOff,
		InputSize: 1,
		Run: func(c Controller, input []byte) error {
			return switchLEDs(c, input[0], false)
		},
		Description: "Turn LED(s) off. Input: 'A' to 'X', or '@' for all.",
	}
	StatusCommand = &Command{
		Flag:      muff.OpcodeStatus,
		InputSize: 0,
		Run: func(c Controller, _ []byte) error {
			c.Status()
			return nil
		},
		Description: "Print the current state.",
	}
	HelpCommand = &Command{
		Flag:        muff.OpcodeHelp,
		InputSize:   0,
		Description: "Show all available commands and their descriptions.",
		Run: func(c Controller, _ []byte) error {
			c.Log("Available Commands:")
			for _, cmd := range commands {
				c.Log(flagString(byte(cmd.Flag)) + ": " + cmd.Description)
			}
			return nil
		},
	}
)

var commands = []*Command{
	FineForwardCommand,
	FineBackwardCommand,
	StopCommand,
	SetFrameOffsetCommand,
	MoveFrameOffsetCommand,
	CoarseForwardCommand,
	CoarseBackwardCommand,
	SetMaxAccelerationCommand,
	LEDOnCommand,
	LEDOffCommand,
	StatusCommand,
}

func switchLEDs(c Controller, code byte, on bool) error {
	if on {
		c.Log("Turning LED(s) on")
	} else {
		c.Log("Turning LED(s) off")
	}
	c.Log(describeByte("LED code", code))

	index, all, err := muff.LEDIndex(code)
	if err != nil {
		return err
	}
	if all {
		c.SetAllLEDs(on)
		return nil
	}
	return c.SetLED(index, on)
}

// parseMicrons parses a sign and 3 decimal digits
func parseMicrons(input []byte) (int32, error) {
	if len(input) != 4 || (input[0] != '+' && input[0] != '-') {
		return 0, muff.ErrInvalidArgument
	}
	v, err := parseDigits(input[1:])
	if err != nil {
		return 0, err
	}
	if input[0] == '-' {
		return -int32(v), nil
	}
	return int32(v), nil
}

// parseDigits parses exactly 3 decimal digits
func parseDigits(input []byte) (uint32, error) {
	if len(input) != 3 {
		return 0, muff.ErrInvalidArgument
	}
	var v uint32
	for _, b := range input {
		if b < '0' || b > '9' {
			return 0, muff.ErrInvalidArgument
		}
		v = v*10 + uint32(b-'0')
	}
	return v, nil
}

// describeByte formats a byte like "name = 'c' = chr(99)"
func describeByte(name string, b byte) string {
	return name + " = '" + flagString(b) + "' = chr(" + strconv.Itoa(int(b)) + ")"
}

func flagString(b byte) string {
	if b >= 32 && b <= 126 {
		return string(b)
	}
	return "0x" + string("0123456789ABCDEF"[(b>>4)&0xF]) + string("0123456789ABCDEF"[b&0xF])
}
