package transport

import (
	"encoding/json"
	"fmt"
)

// CommandKind enumerates the commands the device understands.
type CommandKind int

const (
	CommandStart CommandKind = iota + 1
	CommandStop
	CommandSetRate
	CommandQueryIdentity
)

// Command is one outbound instruction to the device.
type Command struct {
	Kind CommandKind
	Rate int
}

// Start resumes streaming.
func Start() Command { return Command{Kind: CommandStart} }

// Stop pauses streaming.
func Stop() Command { return Command{Kind: CommandStop} }

// SetRate requests a new sampling frequency in hertz.
func SetRate(hz int) Command { return Command{Kind: CommandSetRate, Rate: hz} }

// QueryIdentity asks the device for its sensor-to-role mapping.
func QueryIdentity() Command { return Command{Kind: CommandQueryIdentity} }

type namedCommand struct {
	Command string `json:"Command"`
}

type rateCommand struct {
	GatherFreq int `json:"GatherFreq"`
}

// Encode renders the command as a single newline-terminated JSON object.
func (c Command) Encode() ([]byte, error) {
	var payload any
	switch c.Kind {
	case CommandStart:
		payload = namedCommand{Command: "START"}
	case CommandStop:
		payload = namedCommand{Command: "STOP"}
	case CommandQueryIdentity:
		payload = namedCommand{Command: "RETURN_DATA"}
	case CommandSetRate:
		if c.Rate <= 0 {
			return nil, fmt.Errorf("sampling rate must be positive, got %d", c.Rate)
		}
		payload = rateCommand{GatherFreq: c.Rate}
	default:
		return nil, fmt.Errorf("unknown command kind %d", c.Kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append(body, '\n'), nil
}

func (c Command) String() string {
	switch c.Kind {
	case CommandStart:
		return "START"
	case CommandStop:
		return "STOP"
	case CommandQueryIdentity:
		return "QUERY_IDENTITY"
	case CommandSetRate:
		return fmt.Sprintf("SET_RATE(%d)", c.Rate)
	default:
		return "UNKNOWN"
	}
}
