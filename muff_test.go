package muff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMicronsToSteps(t *testing.T) {
	tests := []struct {
		name     string
		microns  int32
		expected int32
	}{
		{"Zero", 0, 0},
		{"Fifty", 50, 8},
		{"NegativeFifty", -50, -8},
		{"RoundUp", 4, 1},
		{"RoundDown", 3, 0},
		{"NegativeExact", -125, -20},
		{"Max", 999, 160},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MicronsToSteps(tt.microns, NanometersPerStep))
		})
	}
}

func TestLEDIndex(t *testing.T) {
	index, all, err := LEDIndex('@')
	require.NoError(t, err)
	assert.True(t, all)
	assert.Equal(t, 0, index)

	index, all, err = LEDIndex('C')
	require.NoError(t, err)
	assert.False(t, all)
	assert.Equal(t, 2, index)

	index, _, err = LEDIndex('X')
	require.NoError(t, err)
	assert.Equal(t, 23, index)

	_, _, err = LEDIndex('Y')
	assert.ErrorIs(t, err, ErrInvalidLEDIndex)

	_, _, err = LEDIndex('?')
	assert.ErrorIs(t, err, ErrInvalidLEDIndex)
}

func TestLEDCode(t *testing.T) {
	code, err := LEDCode(0)
	require.NoError(t, err)
	assert.Equal(t, byte('A'), code)

	_, err = LEDCode(NumLEDs)
	assert.ErrorIs(t, err, ErrInvalidLEDIndex)
}

func TestFormatMicrons(t *testing.T) {
	b, err := FormatMicrons(50)
	require.NoError(t, err)
	assert.Equal(t, "+050", string(b))

	b, err = FormatMicrons(-999)
	require.NoError(t, err)
	assert.Equal(t, "-999", string(b))

	_, err = FormatMicrons(1000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFormatDigits(t *testing.T) {
	b, err := FormatDigits(7)
	require.NoError(t, err)
	assert.Equal(t, "007", string(b))

	_, err = FormatDigits(1000)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "MoveFrameOffset", OpcodeMoveFrameOffset.String())
	assert.Equal(t, "Unknown", Opcode('9').String())
}
