package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"github.com/glim-dev/glim/helpers"
	"github.com/glim-dev/glim/log2"
)

const (
	defaultNetworkTimeout = 30 * time.Second
	defaultInboxDepth     = 16
)

type MqttOptions struct { //nolint:maligned
	BrokerURL    string
	ClientID     string
	Username     string
	Password     string // secret
	TlsCaFile    string
	KeepaliveSec int
	TimeoutSec   int
	InboxDepth   int
	Log          *log2.Log
}

// MqttTransport adapts paho to the session Transport contract.
// Auto-reconnect is off: recovery belongs to the session state machine,
// not the library. Inbound messages are buffered into inbox on paho's
// receive goroutine and drained by Poll on the service goroutine.
type MqttTransport struct {
	log     *log2.Log
	m       mqtt.Client
	timeout time.Duration
	inbox   chan Inbound
}

func NewMqttTransport(opt MqttOptions) (*MqttTransport, error) {
	if opt.BrokerURL == "" {
		return nil, errors.NotValidf("code error MqttOptions.BrokerURL empty")
	}
	t := &MqttTransport{
		log:     opt.Log,
		timeout: helpers.IntSecondDefault(opt.TimeoutSec, defaultNetworkTimeout),
	}
	depth := opt.InboxDepth
	if depth == 0 {
		depth = defaultInboxDepth
	}
	t.inbox = make(chan Inbound, depth)

	mqttLog := opt.Log.Clone(log2.LDebug)
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog

	credFun := func() (string, string) { return opt.Username, opt.Password }

	tlsconf := new(tls.Config)
	if opt.TlsCaFile != "" {
		cabytes, err := ioutil.ReadFile(opt.TlsCaFile)
		if err != nil {
			return nil, errors.Annotatef(err, "tls_ca_file=%s", opt.TlsCaFile)
		}
		tlsconf.RootCAs = x509.NewCertPool()
		if !tlsconf.RootCAs.AppendCertsFromPEM(cabytes) {
			return nil, errors.Errorf("tls_ca_file=%s no certificates found", opt.TlsCaFile)
		}
	}

	mopt := mqtt.NewClientOptions().
		AddBroker(opt.BrokerURL).
		SetAutoReconnect(false).
		SetCleanSession(true).
		SetClientID(opt.ClientID).
		SetConnectTimeout(t.timeout).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(t.onMessage).
		SetKeepAlive(helpers.IntSecondDefault(opt.KeepaliveSec, t.timeout/2)).
		SetPingTimeout(t.timeout).
		SetTLSConfig(tlsconf).
		SetWriteTimeout(t.timeout)
	t.m = mqtt.NewClient(mopt)
	return t, nil
}

func (t *MqttTransport) Connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return t.tokenWait(t.m.Connect(), "connect")
}

func (t *MqttTransport) Subscribe(topic string) error {
	return t.tokenWait(t.m.Subscribe(topic, 1, t.onMessage), "subscribe:"+topic)
}

func (t *MqttTransport) Publish(topic string, payload []byte) error {
	return t.tokenWait(t.m.Publish(topic, 1, false, payload), "publish:"+topic)
}

// Poll drains buffered inbound messages in delivery order.
func (t *MqttTransport) Poll() []Inbound {
	var out []Inbound
	for {
		select {
		case in := <-t.inbox:
			out = append(out, in)
		default:
			return out
		}
	}
}

func (t *MqttTransport) IsConnected() bool { return t.m.IsConnected() }

func (t *MqttTransport) Close() {
	t.m.Disconnect(uint(t.timeout / time.Millisecond))
}

func (t *MqttTransport) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// copy: paho may reuse the packet buffer after the handler returns
	payload := append([]byte(nil), msg.Payload()...)
	select {
	case t.inbox <- Inbound{Topic: msg.Topic(), Payload: payload}:
	default:
		// inbox full means the service loop stalled; dropping is safe,
		// QOS 1 lets the broker redeliver
		t.log.Errorf("mqtt inbox overflow, drop topic=%s len=%d", msg.Topic(), len(msg.Payload()))
	}
}

func (t *MqttTransport) tokenWait(tok mqtt.Token, tag string) error {
	if !tok.WaitTimeout(t.timeout) {
		err := errors.Timeoutf("mqtt %s", tag)
		t.log.Errorf("mqtt %s timeout", tag)
		return err
	}
	if err := tok.Error(); err != nil {
		err = errors.Annotate(err, tag)
		t.log.Errorf("mqtt %s", err.Error())
		return err
	}
	return nil
}
