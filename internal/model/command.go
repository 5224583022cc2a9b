// internal/model/command.go
package model

// CommandTerminator ends every command on the wire
const CommandTerminator = "\r"

// CommandSequence is an ordered, immutable list of receiver commands
type CommandSequence struct {
	commands []string
}

// NewCommandSequence copies commands into a new sequence
func NewCommandSequence(commands ...string) CommandSequence {
	copied := make([]string, len(commands))
	copy(copied, commands)
	return CommandSequence{commands: copied}
}

// Len returns the number of commands
func (cs CommandSequence) Len() int {
	return len(cs.commands)
}

// Commands returns a copy of the commands without terminators
func (cs CommandSequence) Commands() []string {
	copied := make([]string, len(cs.commands))
	copy(copied, cs.commands)
	return copied
}

// Lines returns the commands as they appear on the wire
func (cs CommandSequence) Lines() []string {
	lines := make([]string, len(cs.commands))
	for i, cmd := range cs.commands {
		lines[i] = cmd + CommandTerminator
	}
	return lines
}
