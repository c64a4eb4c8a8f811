// Package mqttlink implements coordinator.DeviceLink on top of an MQTT
// gateway that bridges a purifier's local protocol onto the broker.
//
// Open subscribes to the device's status, availability and ack topics
// and asks the gateway for a full status. ReceiveNext yields each status
// delta. WriteControl publishes a command and waits for its ack.
package mqttlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
	"github.com/nerrad567/gray-logic-purifier/internal/infrastructure/mqtt"
)

// deltaBuffer is how many undelivered deltas a session holds before the
// MQTT handler blocks.
const deltaBuffer = 64

// Broker is the subset of *mqtt.Client the link needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger is the logging interface used by the link.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Link is a DeviceLink for one purifier host.
type Link struct {
	broker Broker
	topics mqtt.Topics
	host   string
	qos    byte
	logger Logger

	mu      sync.Mutex
	session *session
}

// session is one Open..Close span. Handlers capture the session they
// were registered for so messages arriving after a reopen cannot leak
// into the new session.
type session struct {
	deltas  chan coordinator.Status
	offline chan struct{}
	closed  chan struct{}

	once        sync.Once
	offlineOnce sync.Once

	pendingMu sync.Mutex
	pending   map[string]chan AckMessage
}

func newSession() *session {
	return &session{
		deltas:  make(chan coordinator.Status, deltaBuffer),
		offline: make(chan struct{}),
		closed:  make(chan struct{}),
		pending: make(map[string]chan AckMessage),
	}
}

func (s *session) close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *session) markOffline() {
	s.offlineOnce.Do(func() { close(s.offline) })
}

var _ coordinator.DeviceLink = (*Link)(nil)

// New creates a link for host. topics is normally client.Topics().
func New(broker Broker, topics mqtt.Topics, host string, qos byte) *Link {
	return &Link{
		broker: broker,
		topics: topics,
		host:   host,
		qos:    qos,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the link.
func (l *Link) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Host returns the device host this link serves.
func (l *Link) Host() string { return l.host }

// Open subscribes to the device topics and requests a full status.
// Calling Open on an open link replaces the previous session.
func (l *Link) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.broker.IsConnected() {
		return ErrBrokerDown
	}

	s := newSession()

	l.mu.Lock()
	old := l.session
	l.session = s
	l.mu.Unlock()
	if old != nil {
		old.close()
	}

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{l.topics.PurifierStatus(l.host), l.statusHandler(s)},
		{l.topics.PurifierAvailability(l.host), l.availabilityHandler(s)},
		{l.topics.PurifierAck(l.host), l.ackHandler(s)},
	}
	for _, sub := range subs {
		if err := l.broker.Subscribe(sub.topic, l.qos, sub.handler); err != nil {
			l.teardown(s)
			return fmt.Errorf("subscribing %s: %w", sub.topic, err)
		}
	}

	if err := l.publish(CommandMessage{Command: CommandRefresh}); err != nil {
		l.teardown(s)
		return fmt.Errorf("requesting status: %w", err)
	}

	if err := ctx.Err(); err != nil {
		l.teardown(s)
		return err
	}

	l.logger.Debug("mqtt link opened", "host", l.host)
	return nil
}

// ReceiveNext blocks until the next status delta arrives.
func (l *Link) ReceiveNext(ctx context.Context) (coordinator.Status, error) {
	s := l.current()
	if s == nil {
		return nil, ErrNotOpen
	}

	// Drain buffered deltas before reporting offline or closed.
	select {
	case d := <-s.deltas:
		return d, nil
	default:
	}

	select {
	case d := <-s.deltas:
		return d, nil
	case <-s.offline:
		return nil, ErrOffline
	case <-s.closed:
		return nil, ErrNotOpen
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteControl publishes a set command and waits for the gateway's ack.
func (l *Link) WriteControl(ctx context.Context, key string, value any) error {
	s := l.current()
	if s == nil {
		return ErrNotOpen
	}

	id := uuid.NewString()
	ack := make(chan AckMessage, 1)

	s.pendingMu.Lock()
	s.pending[id] = ack
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if err := l.publish(CommandMessage{ID: id, Command: CommandSet, Key: key, Value: value}); err != nil {
		return err
	}

	select {
	case msg := <-ack:
		if msg.Status == AckAccepted {
			return nil
		}
		if msg.Error != nil {
			return fmt.Errorf("%w: %s: %s", ErrRejected, msg.Error.Code, msg.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrRejected, msg.Status)
	case <-s.closed:
		return ErrNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unsubscribes from the device topics. It is safe to call repeatedly.
func (l *Link) Close() error {
	l.mu.Lock()
	s := l.session
	l.session = nil
	l.mu.Unlock()

	if s == nil {
		return nil
	}
	return l.teardown(s)
}

func (l *Link) teardown(s *session) error {
	s.close()

	l.mu.Lock()
	if l.session == s {
		l.session = nil
	}
	l.mu.Unlock()

	if !l.broker.IsConnected() {
		return nil
	}
	var errs []error
	for _, topic := range []string{
		l.topics.PurifierStatus(l.host),
		l.topics.PurifierAvailability(l.host),
		l.topics.PurifierAck(l.host),
	} {
		if err := l.broker.Unsubscribe(topic); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Link) current() *session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

func (l *Link) publish(cmd CommandMessage) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	cmd.Timestamp = time.Now().UTC()
	cmd.Host = l.host
	cmd.Source = "purifierd"

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}
	return l.broker.Publish(l.topics.PurifierCommand(l.host), payload, l.qos, false)
}

func (l *Link) statusHandler(s *session) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		delta, err := decodeState(payload)
		if err != nil {
			return err
		}
		select {
		case s.deltas <- delta:
		case <-s.closed:
		}
		return nil
	}
}

func (l *Link) availabilityHandler(s *session) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		state := strings.ToLower(strings.TrimSpace(string(payload)))
		if state == AvailabilityOffline {
			l.logger.Warn("gateway reports device offline", "host", l.host)
			s.markOffline()
		}
		return nil
	}
}

func (l *Link) ackHandler(s *session) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		var msg AckMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: ack: %w", ErrPayload, err)
		}
		s.pendingMu.Lock()
		ch, ok := s.pending[msg.CommandID]
		s.pendingMu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
		return nil
	}
}
