// Package session keeps the encrypted command channel usable: it owns
// the transport handle, drives connect/reconnect, rebinds subscriptions
// after every reconnect and runs inbound frames through verify-decrypt-
// parse before anything reaches the actuator.
//
// Single-owner model: Tick and Publish are called from one service
// goroutine, session state needs no locking. The transport buffers
// inbound messages internally, Tick drains them.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"

	"github.com/glim-dev/glim/command"
	"github.com/glim-dev/glim/crypt"
	"github.com/glim-dev/glim/log2"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultConnectBurst   = 10
)

type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	}
	return fmt.Sprintf("invalid:%d", int32(p))
}

// Cipherer and Macer are satisfied by crypt.Cipher and crypt.Mac.
// Split out so pipeline tests can assert decrypt is never reached on
// authentication failure.
type Cipherer interface {
	Encrypt(plaintext []byte) (*crypt.Frame, error)
	Decrypt(iv, ciphertext []byte) ([]byte, error)
}

type Macer interface {
	Seal(*crypt.Frame)
	Verify(iv, ciphertext, tag []byte) bool
}

type Options struct { //nolint:maligned
	Log       *log2.Log
	Transport Transport
	Cipher    Cipherer
	Mac       Macer
	Actuator  Actuator
	Observer  Observer
	Now       NowFunc

	CommandTopic string

	// StaleWindow > 0 rejects inbound commands stamped outside
	// [now-w, now+w]. Zero disables the check.
	StaleWindow time.Duration

	ReconnectDelay time.Duration
	ConnectBurst   int
}

type Session struct {
	opt        Options
	phase      Phase
	topics     []string
	retryCount int
}

func New(opt Options) (*Session, error) {
	if opt.Transport == nil {
		return nil, errors.NotValidf("code error session.Options.Transport=nil")
	}
	if opt.Cipher == nil || opt.Mac == nil {
		return nil, errors.NotValidf("code error session.Options crypto=nil")
	}
	if opt.CommandTopic == "" {
		return nil, errors.NotValidf("code error session.Options.CommandTopic empty")
	}
	if opt.Actuator == nil {
		return nil, errors.NotValidf("code error session.Options.Actuator=nil")
	}
	if opt.Observer == nil {
		opt.Observer = NewNoopObserver()
	}
	if opt.Now == nil {
		opt.Now = func() int64 { return time.Now().Unix() }
	}
	if opt.ReconnectDelay == 0 {
		opt.ReconnectDelay = DefaultReconnectDelay
	}
	if opt.ConnectBurst == 0 {
		opt.ConnectBurst = DefaultConnectBurst
	}
	s := &Session{
		opt:    opt,
		phase:  PhaseDisconnected,
		topics: []string{opt.CommandTopic},
	}
	return s, nil
}

// Register adds a topic to be (re)subscribed on every connect. The
// command topic is registered implicitly.
func (s *Session) Register(topic string) {
	for _, t := range s.topics {
		if t == topic {
			return
		}
	}
	s.topics = append(s.topics, topic)
}

func (s *Session) Phase() Phase    { return s.phase }
func (s *Session) RetryCount() int { return s.retryCount }

// Tick performs one service pass: liveness check with bounded reconnect
// burst, then drain of pending inbound messages. Worst case blocking is
// ConnectBurst*ReconnectDelay, the burst checks ctx between attempts.
func (s *Session) Tick(ctx context.Context) {
	if !s.opt.Transport.IsConnected() {
		if s.phase == PhaseConnected {
			s.opt.Log.Errorf("session channel lost")
		}
		s.phase = PhaseDisconnected
		s.connectBurst(ctx)
	}
	if s.phase != PhaseConnected {
		return
	}
	for _, in := range s.opt.Transport.Poll() {
		s.dispatch(in)
	}
}

// connectBurst attempts up to ConnectBurst handshakes with a fixed
// delay between failures, then returns control to the caller. The next
// Tick starts a fresh burst, there is no permanent give-up state.
func (s *Session) connectBurst(ctx context.Context) {
	for attempt := 0; attempt < s.opt.ConnectBurst; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.opt.ReconnectDelay):
			case <-ctx.Done():
				s.phase = PhaseDisconnected
				return
			}
		}

		s.phase = PhaseConnecting
		if err := s.opt.Transport.Connect(ctx); err != nil {
			s.retryCount++
			s.phase = PhaseDisconnected
			s.opt.Log.Errorf("session connect attempt=%d retries=%d err=%v", attempt, s.retryCount, err)
			continue
		}

		if err := s.subscribeAll(); err != nil {
			s.retryCount++
			s.phase = PhaseDisconnected
			s.opt.Log.Errorf("session subscribe err=%v", err)
			s.opt.Transport.Close()
			continue
		}

		s.phase = PhaseConnected
		s.retryCount = 0
		s.opt.Log.Infof("session connected topics=%d", len(s.topics))
		return
	}
	s.opt.Observer.Report(EventConnectFailed, fmt.Sprintf("burst of %d attempts exhausted", s.opt.ConnectBurst))
}

// Broker state after reconnect is unknown, every registered topic is
// re-subscribed on every successful handshake.
func (s *Session) subscribeAll() error {
	for _, topic := range s.topics {
		if err := s.opt.Transport.Subscribe(topic); err != nil {
			return errors.Annotatef(err, "topic=%s", topic)
		}
	}
	return nil
}

// dispatch validates one raw inbound message. Order is strict: length,
// MAC, decrypt, parse, clamp, apply. A frame failing the MAC never
// reaches the cipher.
func (s *Session) dispatch(in Inbound) {
	// only the command topic carries frames; other registered topics
	// are drained for external collaborators, not decoded here
	if in.Topic != s.opt.CommandTopic {
		s.opt.Log.Debugf("session skip topic=%s len=%d", in.Topic, len(in.Payload))
		return
	}

	f, err := crypt.FrameUnmarshal(in.Payload)
	if err != nil {
		s.opt.Observer.Report(EventMalformed, fmt.Sprintf("short frame len=%d", len(in.Payload)))
		return
	}

	if !s.opt.Mac.Verify(f.IV[:], f.Ciphertext, f.Tag[:]) {
		s.opt.Observer.Report(EventTamper, fmt.Sprintf("mac mismatch topic=%s len=%d", in.Topic, len(in.Payload)))
		s.opt.Log.Errorf("session tamper topic=%s", in.Topic)
		return
	}

	plain, err := s.opt.Cipher.Decrypt(f.IV[:], f.Ciphertext)
	if err != nil {
		s.opt.Observer.Report(EventMalformed, err.Error())
		return
	}

	cmd, err := command.Parse(plain)
	if err != nil {
		s.opt.Observer.Report(EventMalformed, err.Error())
		return
	}

	if s.opt.StaleWindow > 0 {
		w := int64(s.opt.StaleWindow / time.Second)
		if d := cmd.Timestamp - s.opt.Now(); d > w || d < -w {
			s.opt.Observer.Report(EventStale, cmd.String())
			return
		}
	}

	cmd.Clamp()
	s.opt.Log.Debugf("session apply %s", cmd.String())
	s.opt.Actuator.Apply(cmd.Value)
}

// Publish serializes, encrypts, tags and publishes cmd to the command
// topic. May be called in any phase, succeeds only while connected.
// Failure is the caller's to handle, session phase is only reassessed
// at the next Tick.
func (s *Session) Publish(cmd *command.Command) error {
	if cmd.Timestamp == 0 {
		stamped := *cmd
		stamped.Timestamp = s.opt.Now()
		cmd = &stamped
	}
	plain, err := cmd.Marshal()
	if err != nil {
		return errors.Annotate(err, "serialize")
	}
	f, err := s.opt.Cipher.Encrypt(plain)
	if err != nil {
		return errors.Annotate(err, "encrypt")
	}
	s.opt.Mac.Seal(f)

	if err := s.opt.Transport.Publish(s.opt.CommandTopic, f.Marshal()); err != nil {
		s.opt.Observer.Report(EventPublishFailed, err.Error())
		return errors.Annotate(err, "publish")
	}
	return nil
}
