package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeysHcl = `
cipher_key = "2b7e151628aed2a6abf7158809cf4f3c"
mac_key = "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b"
`

func TestFromString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}{
		{name: "empty", input: "", check: func(t testing.TB, c *Config) {
			assert.Equal(t, DefaultCommandTopic, c.CommandTopic)
			assert.Equal(t, 0, c.StaleWindowSec)
		}},
		{name: "full", input: `
device_id = "TAB5"
mqtt_broker = "ssl://broker.example:8883"
mqtt_user = "esp32_client"
mqtt_password = "password123"
tls_ca_file = "/etc/glim/ca.crt"
command_topic = "lab/led"
keepalive_sec = 30
stale_window_sec = 60
log_debug = true
` + testKeysHcl,
			check: func(t testing.TB, c *Config) {
				assert.Equal(t, "TAB5", c.DeviceID)
				assert.Equal(t, "ssl://broker.example:8883", c.MqttBroker)
				assert.Equal(t, "lab/led", c.CommandTopic)
				assert.Equal(t, 30, c.KeepaliveSec)
				assert.Equal(t, 60, c.StaleWindowSec)
				assert.True(t, c.LogDebug)
				ck, mk, err := c.Keys()
				require.NoError(t, err)
				assert.Equal(t, 16, len(ck))
				assert.Equal(t, 32, len(mk))
			}},
		{name: "broken", input: `mqtt_broker = `, expectErr: "config unmarshal"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			cfg, err := FromString(c.input)
			if c.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
				return
			}
			require.NoError(t, err)
			c.check(t, cfg)
		})
	}
}

func TestKeysErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		cipherKey string
		macKey    string
		expectErr string
	}{
		{"cipher-not-hex", "zz", strings.Repeat("0b", 32), "cipher_key"},
		{"cipher-short", "2b7e", strings.Repeat("0b", 32), "cipher_key"},
		{"mac-not-hex", strings.Repeat("2b", 16), "qq", "mac_key"},
		{"mac-short", strings.Repeat("2b", 16), "0b0b", "mac_key"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			cfg := &Config{CipherKey: c.cipherKey, MacKey: c.macKey}
			_, _, err := cfg.Keys()
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expectErr)
		})
	}
}
