// Package config reads the daemon HCL configuration.
package config

import (
	"encoding/hex"
	"io/ioutil"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/glim-dev/glim/crypt"
	"github.com/glim-dev/glim/log2"
)

const DefaultCommandTopic = "led/control/encrypted"

type Config struct { //nolint:maligned
	DeviceID     string `hcl:"device_id"`
	MqttBroker   string `hcl:"mqtt_broker"`
	MqttUser     string `hcl:"mqtt_user"`
	MqttPassword string `hcl:"mqtt_password"` // secret
	TlsCaFile    string `hcl:"tls_ca_file"`
	CommandTopic string `hcl:"command_topic"`

	CipherKey string `hcl:"cipher_key"` // secret, hex, 16 bytes
	MacKey    string `hcl:"mac_key"`    // secret, hex, 32 bytes

	KeepaliveSec      int `hcl:"keepalive_sec"`
	NetworkTimeoutSec int `hcl:"network_timeout_sec"`
	ReconnectDelaySec int `hcl:"reconnect_delay_sec"`
	StaleWindowSec    int `hcl:"stale_window_sec"` // 0 disables replay guard

	LogDebug bool `hcl:"log_debug"`
}

func FromString(input string) (*Config, error) {
	c := new(Config)
	if err := hcl.Unmarshal([]byte(input), c); err != nil {
		return nil, errors.Annotate(err, "config unmarshal")
	}
	c.normalize()
	return c, nil
}

func ReadFile(path string) (*Config, error) {
	bs, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "config read path=%s", path)
	}
	c := new(Config)
	if err := hcl.Unmarshal(bs, c); err != nil {
		return nil, errors.Annotatef(err, "config unmarshal path=%s", path)
	}
	c.normalize()
	return c, nil
}

func MustReadFile(log *log2.Log, path string) *Config {
	c, err := ReadFile(path)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func (c *Config) normalize() {
	if c.CommandTopic == "" {
		c.CommandTopic = DefaultCommandTopic
	}
}

// Keys validates and decodes both secrets. Key separation is a firm
// rule: cipher and mac keys are configured independently, never derived
// from each other.
func (c *Config) Keys() (cipherKey, macKey []byte, err error) {
	if cipherKey, err = hex.DecodeString(c.CipherKey); err != nil {
		return nil, nil, errors.Annotate(err, "config cipher_key")
	}
	if len(cipherKey) != crypt.CipherKeySize {
		return nil, nil, errors.Errorf("config cipher_key must be %d bytes got=%d", crypt.CipherKeySize, len(cipherKey))
	}
	if macKey, err = hex.DecodeString(c.MacKey); err != nil {
		return nil, nil, errors.Annotate(err, "config mac_key")
	}
	if len(macKey) != crypt.MacKeySize {
		return nil, nil, errors.Errorf("config mac_key must be %d bytes got=%d", crypt.MacKeySize, len(macKey))
	}
	return cipherKey, macKey, nil
}
