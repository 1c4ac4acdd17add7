// Package leds keeps the on/off state of the lighting dome and pushes it to the shift register chain.
package leds

import (
	"errors"

	"github.com/calvinmclean/muff"
)

// ShiftRegister is a chain of 8-bit serial-to-parallel registers
type ShiftRegister interface {
	// ShiftOut clocks one group of 8 LED states into the chain
	ShiftOut(b byte)
	// Latch copies the shifted bits to the outputs
	Latch()
}

// Bank owns the LED bit-vector. Bit i%8 of group i/8 is LED i
type Bank struct {
	register ShiftRegister
	groups   [muff.NumLEDGroups]byte
}

// New creates a Bank and turns every LED off
func New(register ShiftRegister) (*Bank, error) {
	if register == nil {
		return nil, errors.New("LED bank requires a shift register")
	}
	b := &Bank{register: register}
	b.SetAll(false)
	return b, nil
}

// Set turns one LED on or off
func (b *Bank) Set(index int, on bool) error {
	if index < 0 || index >= muff.NumLEDs {
		return muff.ErrInvalidLEDIndex
	}

	mask := byte(1) << (index % 8)
	if on {
		b.groups[index/8] |= mask
	} else {
		b.groups[index/8] &^= mask
	}

	b.serialize()
	return nil
}

// SetAll turns every LED on or off
func (b *Bank) SetAll(on bool) {
	var v byte
	if on {
		v = 0xFF
	}
	for i := range b.groups {
		b.groups[i] = v
	}
	b.serialize()
}

// serialize shifts every group, first group first, then latches once
func (b *Bank) serialize() {
	for _, g := range b.groups {
		b.register.ShiftOut(g)
	}
	b.register.Latch()
}

// IsOn tells if the LED is on. Out of range indexes are off
func (b *Bank) IsOn(index int) bool {
	if index < 0 || index >= muff.NumLEDs {
		return false
	}
	return b.groups[index/8]&(1<<(index%8)) != 0
}

// Count returns the number of LEDs that are on
func (b *Bank) Count() int {
	n := 0
	for i := 0; i < muff.NumLEDs; i++ {
		if b.IsOn(i) {
			n++
		}
	}
	return n
}

// Groups returns a copy of the packed state
func (b *Bank) Groups() [muff.NumLEDGroups]byte {
	return b.groups
}

// String shows the LEDs that are on by their letter, or "-" if none
func (b *Bank) String() string {
	out := make([]byte, 0, muff.NumLEDs)
	for i := 0; i < muff.NumLEDs; i++ {
		if b.IsOn(i) {
			out = append(out, byte(muff.FirstLEDCode+i))
		}
	}
	if len(out) == 0 {
		return "-"
	}
	return string(out)
}
