// glim-cli is the operator side of the encrypted command channel:
// publishes brightness commands to a device and decodes frames observed
// on the command topic. Accepts piped input for scripting.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/glim-dev/glim/command"
	"github.com/glim-dev/glim/config"
	"github.com/glim-dev/glim/crypt"
	"github.com/glim-dev/glim/helpers/cli"
	"github.com/glim-dev/glim/log2"
	"github.com/glim-dev/glim/session"
)

var errAuthFailed = fmt.Errorf("frame authentication failed")

type client struct {
	log       *log2.Log
	cfg       *config.Config
	cipher    *crypt.Cipher
	mac       *crypt.Mac
	transport session.Transport
}

func main() {
	flagConfig := flag.String("config", "glim.hcl", "")
	flag.Parse()

	log := log2.NewStderr(log2.LInfo)
	log.SetFlags(log2.LInteractiveFlags)

	cfg := config.MustReadFile(log, *flagConfig)
	c, err := newClient(log, cfg)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	a := alive.NewAlive()
	a.Add(1)
	go c.watch(a)

	cli.MainLoop("glim", c.execute, completer)
	a.Stop()
	a.Wait()
	c.transport.Close()
}

func newClient(log *log2.Log, cfg *config.Config) (*client, error) {
	cipherKey, macKey, err := cfg.Keys()
	if err != nil {
		return nil, errors.Annotate(err, "keys")
	}
	c := &client{log: log, cfg: cfg}
	if c.cipher, err = crypt.NewCipher(cipherKey); err != nil {
		return nil, err
	}
	if c.mac, err = crypt.NewMac(macKey); err != nil {
		return nil, err
	}
	c.transport, err = session.NewMqttTransport(session.MqttOptions{
		BrokerURL:  cfg.MqttBroker,
		ClientID:   cfg.MqttUser,
		Username:   cfg.MqttUser,
		Password:   cfg.MqttPassword,
		TlsCaFile:  cfg.TlsCaFile,
		TimeoutSec: cfg.NetworkTimeoutSec,
		Log:        log,
	})
	if err != nil {
		return nil, errors.Annotate(err, "transport")
	}
	return c, nil
}

// watch keeps the connection up and prints every frame seen on the
// command topic, including our own publishes echoed by the broker.
func (c *client) watch(a *alive.Alive) {
	defer a.Done()
	ctx := context.Background()
	for a.IsRunning() {
		c.ensureOnline(ctx)
		for _, in := range c.transport.Poll() {
			c.show(in.Payload)
		}
		select {
		case <-time.After(1 * time.Second):
		case <-a.StopChan():
		}
	}
}

func (c *client) ensureOnline(ctx context.Context) {
	if c.transport.IsConnected() {
		return
	}
	if err := c.transport.Connect(ctx); err != nil {
		return
	}
	if err := c.transport.Subscribe(c.cfg.CommandTopic); err != nil {
		// connected but deaf is worse than disconnected, drop the
		// connection so the next pass retries both
		c.log.Errorf("subscribe err=%v", err)
		c.transport.Close()
	}
}

func (c *client) execute(line string) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return
	}
	switch words[0] {
	case "set":
		if len(words) != 2 {
			c.log.Errorf("usage: set <0-255>")
			return
		}
		value, err := strconv.Atoi(words[1])
		if err != nil || value < command.ValueMin || value > command.ValueMax {
			c.log.Errorf("value must be integer 0-255")
			return
		}
		c.publish(value)

	case "decode":
		if len(words) != 2 {
			c.log.Errorf("usage: decode <hex-frame>")
			return
		}
		plain, err := c.decodeHex(words[1])
		if err != nil {
			c.log.Errorf("decode err=%v", err)
			return
		}
		c.log.Infof("frame ok plaintext=%s", plain)

	case "help":
		c.log.Infof("commands: set <0-255> | decode <hex-frame> | help")

	default:
		c.log.Errorf("unknown command=%s try help", words[0])
	}
}

func (c *client) publish(value int) {
	cmd := &command.Command{
		DeviceID:  c.cfg.DeviceID,
		Value:     value,
		Timestamp: time.Now().Unix(),
	}
	plain, err := cmd.Marshal()
	if err != nil {
		c.log.Errorf("marshal err=%v", err)
		return
	}
	f, err := c.cipher.Encrypt(plain)
	if err != nil {
		c.log.Errorf("encrypt err=%v", err)
		return
	}
	c.mac.Seal(f)
	if err := c.transport.Publish(c.cfg.CommandTopic, f.Marshal()); err != nil {
		c.log.Errorf("publish err=%v", err)
		return
	}
	c.log.Infof("published %s frame=%d bytes", cmd.String(), crypt.IVSize+len(f.Ciphertext)+crypt.TagSize)
}

func (c *client) show(payload []byte) {
	plain, err := c.decodeFrame(payload)
	if err != nil {
		c.log.Errorf("frame err=%v len=%d", err, len(payload))
		return
	}
	c.log.Infof("frame ok plaintext=%s", plain)
}

// decodeHex accepts hex as printed by mosquitto_sub, which strips a
// leading zero, leaving an odd-length string.
func (c *client) decodeHex(h string) (string, error) {
	if len(h)%2 == 1 {
		h = "0" + h
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return "", errors.Annotate(err, "hex")
	}
	return c.decodeFrame(b)
}

func (c *client) decodeFrame(payload []byte) (string, error) {
	f, err := crypt.FrameUnmarshal(payload)
	if err != nil {
		return "", err
	}
	if !c.mac.Verify(f.IV[:], f.Ciphertext, f.Tag[:]) {
		return "", errAuthFailed
	}
	plain, err := c.cipher.Decrypt(f.IV[:], f.Ciphertext)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func completer(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "set", Description: "publish brightness command"},
		{Text: "decode", Description: "decode hex frame"},
		{Text: "help"},
	}
	return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
}
