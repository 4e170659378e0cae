package protocol

import (
	"encoding/json"
	"fmt"
)

// Cmd represents a command
type Cmd int

const (
	Null Cmd = iota
	Join
	Shift  // shift a property, optionally for a duration
	Cancel // cancel a pending revert
	Team   // ask for the player's team name
	PropertyChanged
	Reverted
	Error
)

var CmdNames = map[Cmd]string{
	Null:            "Null",
	Join:            "Join",
	Shift:           "Shift",
	Cancel:          "Cancel",
	Team:            "Team",
	PropertyChanged: "PropertyChanged",
	Reverted:        "Reverted",
	Error:           "Error",
}

var NameToCmd = map[string]Cmd{
	"Null":            Null,
	"Join":            Join,
	"Shift":           Shift,
	"Cancel":          Cancel,
	"Team":            Team,
	"PropertyChanged": PropertyChanged,
	"Reverted":        Reverted,
	"Error":           Error,
}

func (c Cmd) String() string {
	return CmdNames[c]
}

func (c Cmd) MarshalJSON() ([]byte, error) {
	name, ok := CmdNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown command %d", int(c))
	}
	return json.Marshal(name)
}

func (c *Cmd) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	cmd, ok := NameToCmd[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	*c = cmd
	return nil
}
