package session

import (
	"context"

	"github.com/glim-dev/glim/log2"
)

// Inbound is one raw message received from the channel.
type Inbound struct {
	Topic   string
	Payload []byte
}

// Transport hides the concrete pub/sub client. Contract:
// - Connect is a single handshake attempt, no internal retry; the
//   session state machine owns recovery
// - Subscribe/Publish are valid only while connected, error otherwise
// - Publish requests at-least-once delivery, duplicates are possible
// - Poll returns buffered inbound messages in delivery order, never blocks
// - transport encryption (TLS) is the transport's business, payload
//   crypto is not
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(topic string) error
	Publish(topic string, payload []byte) error
	Poll() []Inbound
	IsConnected() bool
	Close()
}

// Actuator receives validated command values. Must be idempotent, the
// channel delivers at least once and this code does not deduplicate.
type Actuator interface {
	Apply(value int)
}

type EventKind string

const (
	EventTamper        EventKind = "tamper"
	EventMalformed     EventKind = "malformed"
	EventStale         EventKind = "stale"
	EventConnectFailed EventKind = "connect-failed"
	EventPublishFailed EventKind = "publish-failed"
)

// Observer is fire-and-forget, implementations must not block or fail
// the caller.
type Observer interface {
	Report(kind EventKind, detail string)
}

func NewNoopObserver() Observer { return noopObserver{} }

type noopObserver struct{}

func (noopObserver) Report(EventKind, string) {}

// LogObserver reports events into the process log.
type LogObserver struct{ Log *log2.Log }

func (o LogObserver) Report(kind EventKind, detail string) {
	o.Log.Errorf("session event=%s %s", kind, detail)
}

// NowFunc supplies integer unix seconds for stamping outbound commands.
type NowFunc func() int64
