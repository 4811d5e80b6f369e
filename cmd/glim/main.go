// glim daemon: keeps the encrypted MQTT command channel alive and
// applies validated commands to the local actuator.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/glim-dev/glim/config"
	"github.com/glim-dev/glim/crypt"
	"github.com/glim-dev/glim/helpers"
	"github.com/glim-dev/glim/log2"
	"github.com/glim-dev/glim/session"
)

const defaultTickInterval = 1 * time.Second

func main() {
	flagConfig := flag.String("config", "glim.hcl", "")
	flag.Parse()

	log := log2.NewStderr(log2.LInfo)
	if sdnotify(daemon.SdNotifyReady + "\nSTATUS=starting") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	cfg := config.MustReadFile(log, *flagConfig)
	if cfg.LogDebug {
		log.SetLevel(log2.LDebug)
	}

	if err := run(log, cfg); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}

func run(log *log2.Log, cfg *config.Config) error {
	cipherKey, macKey, err := cfg.Keys()
	if err != nil {
		return errors.Annotate(err, "keys")
	}
	cipher, err := crypt.NewCipher(cipherKey)
	if err != nil {
		return errors.Annotate(err, "cipher")
	}
	mac, err := crypt.NewMac(macKey)
	if err != nil {
		return errors.Annotate(err, "mac")
	}

	transport, err := session.NewMqttTransport(session.MqttOptions{
		BrokerURL:    cfg.MqttBroker,
		ClientID:     cfg.DeviceID,
		Username:     cfg.MqttUser,
		Password:     cfg.MqttPassword,
		TlsCaFile:    cfg.TlsCaFile,
		KeepaliveSec: cfg.KeepaliveSec,
		TimeoutSec:   cfg.NetworkTimeoutSec,
		Log:          log,
	})
	if err != nil {
		return errors.Annotate(err, "transport")
	}

	sess, err := session.New(session.Options{
		Log:            log,
		Transport:      transport,
		Cipher:         cipher,
		Mac:            mac,
		Actuator:       logActuator{log: log},
		Observer:       session.LogObserver{Log: log},
		CommandTopic:   cfg.CommandTopic,
		StaleWindow:    helpers.IntSecondDefault(cfg.StaleWindowSec, 0),
		ReconnectDelay: helpers.IntSecondDefault(cfg.ReconnectDelaySec, session.DefaultReconnectDelay),
	})
	if err != nil {
		return errors.Annotate(err, "session")
	}

	a := alive.NewAlive()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigch
		log.Infof("stop signal")
		cancel()
		a.Stop()
	}()

	sdnotify("STATUS=running")
	for a.IsRunning() {
		sess.Tick(ctx)
		select {
		case <-time.After(defaultTickInterval):
		case <-a.StopChan():
		}
	}
	transport.Close()
	a.Wait()
	sdnotify(daemon.SdNotifyStopping)
	return nil
}

// logActuator stands in for hardware output which lives outside this
// process; the validated value is visible in the log and to observers.
type logActuator struct{ log *log2.Log }

func (la logActuator) Apply(value int) {
	la.log.Infof("actuate value=%d", value)
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		// not fatal, keep running without systemd integration
		return false
	}
	return ok
}
