// Package command defines the plaintext payload carried inside
// encrypted frames.
package command

import (
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
)

const (
	ValueMin = 0
	ValueMax = 255
)

var ErrBadPayload = fmt.Errorf("bad command payload")

// Command is the logical control message. JSON field names and order
// are a wire contract with the device firmware, do not change.
type Command struct {
	DeviceID  string `json:"device"`
	Value     int    `json:"brightness"`
	Timestamp int64  `json:"timestamp"`
}

func (c *Command) Marshal() ([]byte, error) {
	if c.DeviceID == "" {
		return nil, errors.NotValidf("device id empty")
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Annotate(err, "command marshal")
	}
	return b, nil
}

// Parse rejects anything that is not a complete command record.
// Errors unwrap to ErrBadPayload.
func Parse(b []byte) (*Command, error) {
	c := new(Command)
	if err := json.Unmarshal(b, c); err != nil {
		return nil, errors.Annotatef(ErrBadPayload, "json: %v", err)
	}
	if c.DeviceID == "" {
		return nil, errors.Annotate(ErrBadPayload, "missing device")
	}
	if c.Timestamp <= 0 {
		return nil, errors.Annotate(ErrBadPayload, "missing timestamp")
	}
	return c, nil
}

// Clamp forces Value into the actuator range.
func (c *Command) Clamp() {
	if c.Value < ValueMin {
		c.Value = ValueMin
	}
	if c.Value > ValueMax {
		c.Value = ValueMax
	}
}

func (c *Command) String() string {
	return fmt.Sprintf("command device=%s value=%d time=%d", c.DeviceID, c.Value, c.Timestamp)
}
