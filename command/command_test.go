package command

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalWireContract(t *testing.T) {
	t.Parallel()
	c := &Command{DeviceID: "TAB5", Value: 192, Timestamp: 1732612800}
	b, err := c.Marshal()
	require.NoError(t, err)
	// byte-for-byte contract with device firmware
	assert.Equal(t, `{"device":"TAB5","brightness":192,"timestamp":1732612800}`, string(b))

	back, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestMarshalEmptyDevice(t *testing.T) {
	t.Parallel()
	c := &Command{Value: 1, Timestamp: 2}
	_, err := c.Marshal()
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "\x00\x01\x02"},
		{"truncated", `{"device":"TAB5","brightness":1`},
		{"missing-device", `{"brightness":10,"timestamp":1732612800}`},
		{"missing-timestamp", `{"device":"TAB5","brightness":10}`},
		{"negative-timestamp", `{"device":"TAB5","brightness":10,"timestamp":-5}`},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			cmd, err := Parse([]byte(c.input))
			assert.Nil(t, cmd)
			require.Error(t, err)
			assert.Equal(t, ErrBadPayload, errors.Cause(err))
		})
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, expect int }{
		{-1, 0}, {0, 0}, {128, 128}, {255, 255}, {256, 255}, {99999, 255},
	}
	for _, c := range cases {
		cmd := &Command{DeviceID: "x", Value: c.in, Timestamp: 1}
		cmd.Clamp()
		assert.Equal(t, c.expect, cmd.Value, "in=%d", c.in)
	}
}
