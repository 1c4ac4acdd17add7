package main_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
)

// These tests talk to a real positioner on the port in MUFF_PORT
func portName(t *testing.T) string {
	t.Helper()
	name := os.Getenv("MUFF_PORT")
	if name == "" {
		t.Skip("MUFF_PORT is not set")
	}
	return name
}

func sendSerial(t *testing.T, in string, acks int) string {
	t.Helper()
	mode := &serial.Mode{
		BaudRate: 9600,
	}

	port, err := serial.Open(portName(t), mode)
	if err != nil {
		t.Errorf("unexpected error opening serial connection: %v", err)
		return ""
	}
	defer port.Close()

	// opening the port resets the board
	time.Sleep(2 * time.Second)

	_, err = port.Write([]byte(in))
	if err != nil {
		t.Errorf("unexpected error writing serial: %v", err)
		return ""
	}

	buf := make([]byte, 256)
	var out strings.Builder
	port.SetReadTimeout(100 * time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for countAcks(out.String()) < acks && time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			t.Errorf("unexpected error reading serial: %v", err)
			return ""
		}
		out.Write(buf[:n])
	}
	return out.String()
}

// countAcks counts the '0' bytes outside of '#' lines
func countAcks(out string) int {
	n := 0
	inLine := false
	for i := 0; i < len(out); i++ {
		switch {
		case inLine:
			inLine = out[i] != '\n'
		case out[i] == '#':
			inLine = true
		case out[i] == '0':
			n++
		}
	}
	return n
}

func TestSerial(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		acks     int
		expected []string
	}{
		{
			"InvalidCommand",
			"9",
			1,
			[]string{"# ** invalid command = '9' = chr(57)\r\n"},
		},
		{
			"SetFrameOffset",
			"4+050",
			1,
			[]string{"# frame displacement = 50 microns = 8 steps\r\n"},
		},
		{
			"LEDsAndStatus",
			"+A+X?-@",
			4,
			[]string{"leds=AX"},
		},
		{
			"ZeroAcceleration",
			"8000",
			1,
			[]string{"# ** max acceleration cannot be zero\r\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := sendSerial(t, tt.in, tt.acks)
			if countAcks(out) != tt.acks {
				t.Errorf("expected %d acks, got=%q", tt.acks, out)
			}
			for _, e := range tt.expected {
				if !strings.Contains(out, e) {
					t.Errorf("expected %q in %q", e, out)
				}
			}
		})
	}
}
