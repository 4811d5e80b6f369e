package session

import (
	"context"
	"fmt"
	"testing"
)

// MockTransport is an in-memory Transport for tests, in the spirit of
// a loopback broker: published messages are collected and can be fed
// into another instance's inbox.
type MockTransport struct {
	t testing.TB

	connected    bool
	connectErrs  int // next N Connect calls fail
	ConnectCount int
	Subscribed   []string // one entry per Subscribe call
	Published    []Inbound
	queue        []Inbound
	publishErr   error
}

func NewMockTransport(t testing.TB) *MockTransport {
	return &MockTransport{t: t}
}

func (m *MockTransport) FailConnects(n int)    { m.connectErrs = n }
func (m *MockTransport) FailPublish(err error) { m.publishErr = err }

// Drop simulates losing the channel; noticed by the next liveness check.
func (m *MockTransport) Drop() { m.connected = false }

// QueueInbound puts a raw payload into the receive buffer.
func (m *MockTransport) QueueInbound(topic string, payload []byte) {
	m.queue = append(m.queue, Inbound{Topic: topic, Payload: payload})
}

func (m *MockTransport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.ConnectCount++
	if m.connectErrs > 0 {
		m.connectErrs--
		return fmt.Errorf("mock connect refused")
	}
	m.connected = true
	m.t.Logf("mock connect n=%d", m.ConnectCount)
	return nil
}

func (m *MockTransport) Subscribe(topic string) error {
	if !m.connected {
		return fmt.Errorf("mock not connected")
	}
	m.Subscribed = append(m.Subscribed, topic)
	return nil
}

func (m *MockTransport) Publish(topic string, payload []byte) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	if !m.connected {
		return fmt.Errorf("mock not connected")
	}
	m.Published = append(m.Published, Inbound{Topic: topic, Payload: payload})
	m.t.Logf("mock publish topic=%s len=%d", topic, len(payload))
	return nil
}

func (m *MockTransport) Poll() []Inbound {
	out := m.queue
	m.queue = nil
	return out
}

func (m *MockTransport) IsConnected() bool { return m.connected }

func (m *MockTransport) Close() { m.connected = false }
