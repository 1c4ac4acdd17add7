// Package scheduler runs the single-threaded loop of the firmware. Each iteration gives the motor
// a chance to step, consumes at most one serial byte and checks the limit switch, so a slow host
// never stalls motion.
package scheduler

import "context"

// Motion is advanced once per iteration
type Motion interface {
	AdvanceOneTick()
}

// Serial is the non-blocking input side of the serial link
type Serial interface {
	Buffered() int
	ReadByte() (byte, error)
}

// Dispatcher consumes serial bytes
type Dispatcher interface {
	Feed(b byte)
}

// Interlock is checked once per iteration
type Interlock interface {
	Check() bool
}

// Loop is the cooperative main loop
type Loop struct {
	motion     Motion
	serial     Serial
	dispatcher Dispatcher
	interlock  Interlock

	iterations uint64
	received   uint64
}

// New creates a Loop
func New(motion Motion, serial Serial, dispatcher Dispatcher, interlock Interlock) *Loop {
	return &Loop{
		motion:     motion,
		serial:     serial,
		dispatcher: dispatcher,
		interlock:  interlock,
	}
}

// Iterate runs one pass of the loop: motion, then at most one byte of input, then the interlock
func (l *Loop) Iterate() {
	l.iterations++

	l.motion.AdvanceOneTick()

	if l.serial.Buffered() > 0 {
		b, err := l.serial.ReadByte()
		if err == nil {
			l.received++
			l.dispatcher.Feed(b)
		}
	}

	l.interlock.Check()
}

// Run iterates until ctx is done. yield, if not nil, is called after every iteration and may
// sleep to give the processor away while there is nothing to do
func (l *Loop) Run(ctx context.Context, yield func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		l.Iterate()

		if yield != nil {
			yield()
		}
	}
}

// Iterations returns the number of completed iterations
func (l *Loop) Iterations() uint64 {
	return l.iterations
}

// Received returns the number of serial bytes handed to the dispatcher
func (l *Loop) Received() uint64 {
	return l.received
}
