package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var (
	errRefused   = errors.New("connection refused")
	errHang      = errors.New("hang until cancelled")
	errLinkDown  = errors.New("session reset by peer")
	errRejected  = errors.New("device rejected command")
	errLinkClose = errors.New("link closed")
)

// mockLink is a DeviceLink driven by the test.
type mockLink struct {
	mu          sync.Mutex
	openErr     error
	writeErr    error
	writeGate   chan struct{}
	session     chan struct{}
	openCalls   int
	closeCalls  int
	writes      []Control
	inflight    int
	maxInflight int
	lateWrites  int

	deltas chan Status
	fail   chan error
}

func newMockLink() *mockLink {
	return &mockLink{
		deltas: make(chan Status, 64),
		fail:   make(chan error, 4),
	}
}

func (m *mockLink) Open(ctx context.Context) error {
	m.mu.Lock()
	m.openCalls++
	err := m.openErr
	m.mu.Unlock()

	if errors.Is(err, errHang) {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.session = make(chan struct{})
	m.mu.Unlock()
	return nil
}

func (m *mockLink) ReceiveNext(ctx context.Context) (Status, error) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return nil, errLinkClose
	}

	select {
	case d := <-m.deltas:
		return d, nil
	case err := <-m.fail:
		return nil, err
	case <-session:
		return nil, errLinkClose
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mockLink) WriteControl(ctx context.Context, key string, value any) error {
	m.mu.Lock()
	if m.session == nil && m.closeCalls > 0 {
		m.lateWrites++
	}
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	gate := m.writeGate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, Control{Key: key, Value: value})
	return nil
}

func (m *mockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	if m.session != nil {
		close(m.session)
		m.session = nil
	}
	return nil
}

func (m *mockLink) setOpenErr(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

func (m *mockLink) setWriteErr(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

func (m *mockLink) recordedWrites() []Control {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Control(nil), m.writes...)
}

func (m *mockLink) inflightWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight
}

// writesAfterClose counts writes that reached a closed link.
func (m *mockLink) writesAfterClose() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lateWrites
}

func (m *mockLink) opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// counter counts notifications.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fastOptions keeps test timings short.
func fastOptions() Options {
	return Options{
		Name:            "test-purifier",
		ConnectTimeout:  500 * time.Millisecond,
		StalenessWindow: time.Hour,
		BackoffBase:     2 * time.Millisecond,
		BackoffMax:      10 * time.Millisecond,
		WriteTimeout:    time.Second,
	}
}
