package commands

import "github.com/calvinmclean/muff"

// State is the parse state of the Dispatcher
type State int

const (
	StateAwaitingOpcode State = iota
	StateAwaitingArgument
)

// Dispatcher parses the serial byte stream one byte at a time and runs complete commands.
// It never waits for a byte, so the scheduling loop keeps running while an argument is typed.
type Dispatcher struct {
	controller Controller
	cmdMap     map[muff.Opcode]*Command

	state   State
	pending *Command
	input   []byte
}

// NewDispatcher creates a Dispatcher awaiting an opcode
func NewDispatcher(c Controller) *Dispatcher {
	cmdMap := map[muff.Opcode]*Command{
		HelpCommand.Flag: HelpCommand,
	}
	for _, cmd := range commands {
		cmdMap[cmd.Flag] = cmd
	}

	return &Dispatcher{
		controller: c,
		cmdMap:     cmdMap,
		state:      StateAwaitingOpcode,
		input:      make([]byte, 0, 4),
	}
}

// Feed hands the next received byte to the Dispatcher
func (d *Dispatcher) Feed(b byte) {
	if d.state == StateAwaitingArgument {
		d.input = append(d.input, b)
		if len(d.input) < int(d.pending.InputSize) {
			return
		}

		cmd := d.pending
		d.pending = nil
		d.state = StateAwaitingOpcode
		d.run(cmd, d.input)
		return
	}

	cmd, ok := d.cmdMap[muff.Opcode(b)]
	if !ok {
		d.controller.Error(describeByte(muff.ErrInvalidCommand.Error(), b))
		d.controller.Ack()
		return
	}

	d.controller.Log(describeByte("command received", b))
	if cmd.InputSize == 0 {
		d.run(cmd, nil)
		return
	}

	d.pending = cmd
	d.input = d.input[:0]
	d.state = StateAwaitingArgument
}

func (d *Dispatcher) run(cmd *Command, input []byte) {
	if len(input) > 0 {
		d.controller.Log("argument = " + string(input))
	}

	err := cmd.Run(d.controller, input)
	if err != nil {
		d.controller.Error(err.Error())
	}
	d.controller.Ack()
}

// State returns the current parse state
func (d *Dispatcher) State() State {
	return d.state
}

// Remaining returns how many argument bytes the pending command still needs
func (d *Dispatcher) Remaining() int {
	if d.state != StateAwaitingArgument {
		return 0
	}
	return int(d.pending.InputSize) - len(d.input)
}
