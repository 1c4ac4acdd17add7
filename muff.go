package muff

import "errors"

// AckByte is written after every processed command, valid or not
const AckByte = '0'

// Opcode is the first byte of every command sent to the positioner
type Opcode byte

const (
	OpcodeFineForward        Opcode = '1'
	OpcodeFineBackward       Opcode = '2'
	OpcodeStop               Opcode = '3'
	OpcodeSetFrameOffset     Opcode = '4'
	OpcodeMoveFrameOffset    Opcode = '5'
	OpcodeCoarseForward      Opcode = '6'
	OpcodeCoarseBackward     Opcode = '7'
	OpcodeSetMaxAcceleration Opcode = '8'
	OpcodeLEDOn              Opcode = '+'
	OpcodeLEDOff             Opcode = '-'
	OpcodeStatus             Opcode = '?'
	OpcodeHelp               Opcode = 'H'
)

func (o Opcode) String() string {
	switch o {
	case OpcodeFineForward:
		return "FineForward"
	case OpcodeFineBackward:
		return "FineBackward"
	case OpcodeStop:
		return "Stop"
	case OpcodeSetFrameOffset:
		return "SetFrameOffset"
	case OpcodeMoveFrameOffset:
		return "MoveFrameOffset"
	case OpcodeCoarseForward:
		return "CoarseForward"
	case OpcodeCoarseBackward:
		return "CoarseBackward"
	case OpcodeSetMaxAcceleration:
		return "SetMaxAcceleration"
	case OpcodeLEDOn:
		return "LEDOn"
	case OpcodeLEDOff:
		return "LEDOff"
	case OpcodeStatus:
		return "Status"
	case OpcodeHelp:
		return "Help"
	default:
		return "Unknown"
	}
}

const (
	// NumLEDs is the number of LEDs on the lighting dome, named 'A', 'B', ...
	NumLEDs = 24
	// NumLEDGroups is the number of 8-bit shift register groups driving the LEDs
	NumLEDGroups = (NumLEDs + 7) / 8

	// AllLEDsCode selects every LED in an LED command
	AllLEDsCode = '@'
	// FirstLEDCode is the code of LED 0
	FirstLEDCode = 'A'

	// NanometersPerStep is the carriage displacement for one step of the main motor
	NanometersPerStep = 6250

	// MaxFrameOffsetMicrons is the largest magnitude accepted by the set-frame-offset command
	MaxFrameOffsetMicrons = 999
	// MaxAcceleration is the largest value accepted by the set-max-acceleration command
	MaxAcceleration = 999
)

var (
	ErrInvalidCommand   = errors.New("invalid command")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidLEDIndex  = errors.New("invalid LED code")
	ErrZeroAcceleration = errors.New("max acceleration cannot be zero")
)

// MicronsToSteps converts a signed displacement in microns to motor steps, rounding half away from zero
func MicronsToSteps(microns int32, nanometersPerStep int32) int32 {
	neg := microns < 0
	if neg {
		microns = -microns
	}
	steps := int32((int64(microns)*1000 + int64(nanometersPerStep/2)) / int64(nanometersPerStep))
	if neg {
		return -steps
	}
	return steps
}

// LEDCode returns the command byte that selects the LED with the given index
func LEDCode(index int) (byte, error) {
	if index < 0 || index >= NumLEDs {
		return 0, ErrInvalidLEDIndex
	}
	return byte(FirstLEDCode + index), nil
}

// LEDIndex parses an LED command byte. all is true for AllLEDsCode
func LEDIndex(code byte) (index int, all bool, err error) {
	if code == AllLEDsCode {
		return 0, true, nil
	}
	index = int(code) - FirstLEDCode
	if index < 0 || index >= NumLEDs {
		return 0, false, ErrInvalidLEDIndex
	}
	return index, false, nil
}

// FormatMicrons formats a frame offset argument as sign plus three digits, like "+050"
func FormatMicrons(microns int32) ([]byte, error) {
	if microns < -MaxFrameOffsetMicrons || microns > MaxFrameOffsetMicrons {
		return nil, ErrInvalidArgument
	}
	sign := byte('+')
	if microns < 0 {
		sign = '-'
		microns = -microns
	}
	return []byte{sign, byte('0' + microns/100), byte('0' + microns/10%10), byte('0' + microns%10)}, nil
}

// FormatDigits formats a value in 0-999 as exactly three digits
func FormatDigits(v uint32) ([]byte, error) {
	if v > 999 {
		return nil, ErrInvalidArgument
	}
	return []byte{byte('0' + v/100), byte('0' + v/10%10), byte('0' + v%10)}, nil
}
