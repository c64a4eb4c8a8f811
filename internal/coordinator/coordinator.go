package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Default timings.
const (
	// DefaultConnectTimeout bounds FirstRefresh and each reconnect attempt.
	DefaultConnectTimeout = 25 * time.Second

	// DefaultStalenessWindow is how long the device may stay silent before it
	// is reported unavailable.
	DefaultStalenessWindow = 60 * time.Second

	// DefaultBackoffBase is the first reconnect delay.
	DefaultBackoffBase = 5 * time.Second

	// DefaultBackoffMax caps the reconnect delay.
	DefaultBackoffMax = 2 * time.Minute

	// DefaultWriteTimeout bounds a single control write.
	DefaultWriteTimeout = 10 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Coordinator. Zero values select the defaults.
type Options struct {
	// Name identifies the device in logs.
	Name string

	ConnectTimeout  time.Duration
	StalenessWindow time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	WriteTimeout    time.Duration

	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.StalenessWindow <= 0 {
		o.StalenessWindow = DefaultStalenessWindow
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// Stats is a point-in-time view of a Coordinator for diagnostics.
type Stats struct {
	State             State
	Connected         bool
	Available         bool
	TaskAlive         bool
	Reconnecting      bool
	StalenessArmed    bool
	Listeners         int
	Keys              int
	DeltasTotal       uint64
	WritesTotal       uint64
	WriteErrorsTotal  uint64
	LinkErrorsTotal   uint64
	ReconnectAttempts uint64
	ReconnectsTotal   uint64
	StaleTotal        uint64
	LastUpdate        time.Time
}

// Coordinator owns the session to one device and the merged view of its status.
type Coordinator struct {
	name   string
	opts   Options
	link   DeviceLink
	logger Logger

	cache      *StatusCache
	listeners  *ListenerRegistry
	timer      *StalenessTimer
	supervisor *ReconnectSupervisor
	writes     *writeQueue

	state      atomic.Int32
	connected  atomic.Bool
	available  atomic.Bool
	taskAlive  atomic.Bool
	lastUpdate atomic.Int64

	deltasTotal atomic.Uint64
	writesTotal atomic.Uint64
	writeErrors atomic.Uint64
	linkErrors  atomic.Uint64
	staleTotal  atomic.Uint64

	// startMu orders FirstRefresh against Shutdown.
	startMu sync.Mutex
	// gateMu admits writers only before Shutdown; writers drains them.
	gateMu       sync.Mutex
	writers      sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// New creates a Coordinator in the INIT state. snapshot, if non-nil,
// pre-populates the cache so consumers can read it before the first live
// delta arrives.
func New(link DeviceLink, snapshot Status, opts Options) *Coordinator {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		name:   opts.Name,
		opts:   opts,
		link:   link,
		logger: opts.Logger,
		cache:  NewStatusCache(snapshot),
		writes: newWriteQueue(),
		ctx:    ctx,
		cancel: cancel,
	}
	c.listeners = NewListenerRegistry(opts.Logger)
	c.timer = NewStalenessTimer(opts.StalenessWindow, c.handleStale)
	c.supervisor = NewReconnectSupervisor(link, opts.BackoffBase, opts.BackoffMax, opts.ConnectTimeout, opts.Logger)
	return c
}

// FirstRefresh opens the link and waits for the first status delta, both
// within the connect timeout. On success the observation goroutine is started.
// On failure the link is closed, the Coordinator returns to INIT and the error
// wraps ErrConnect.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	switch c.State() {
	case StateShutdown:
		return ErrShutdown
	case StateInit:
	default:
		return ErrAlreadyStarted
	}

	c.setState(StateConnecting)
	c.logger.Info("connecting to device", "device", c.name, "timeout", c.opts.ConnectTimeout.String())

	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	delta, err := c.openAndReceive(attemptCtx)
	if err != nil {
		c.closeLink()
		c.setState(StateInit)
		c.logger.Warn("device not ready", "device", c.name, "error", err)
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	c.connected.Store(true)
	c.setState(StateObserving)
	c.apply(delta)

	c.taskAlive.Store(true)
	c.wg.Add(1)
	go c.observe()

	c.logger.Info("device connected", "device", c.name, "keys", c.cache.Len())
	return nil
}

func (c *Coordinator) openAndReceive(ctx context.Context) (Status, error) {
	if err := c.link.Open(ctx); err != nil {
		return nil, err
	}
	return c.link.ReceiveNext(ctx)
}

// observe is the observation loop. It owns the link until Shutdown.
func (c *Coordinator) observe() {
	defer c.wg.Done()
	defer c.taskAlive.Store(false)

	// rejoined is set after a reconnect until the new session delivers data.
	var rejoined bool
	for {
		delta, err := c.link.ReceiveNext(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if !c.reconnect(err) {
				return
			}
			rejoined = true
			continue
		}
		if rejoined {
			c.supervisor.ResetBackoff()
			rejoined = false
		}
		c.apply(delta)
	}
}

// reconnect moves to RECONNECTING and blocks until the supervisor succeeds.
// It returns false if the Coordinator was shut down meanwhile. The backoff is
// not reset here: a session that opens and fails before any delta keeps the
// grown delay.
func (c *Coordinator) reconnect(cause error) bool {
	c.linkErrors.Add(1)
	c.connected.Store(false)
	c.setState(StateReconnecting)
	c.logger.Warn("device link lost", "device", c.name, "error", fmt.Errorf("%w: %w", ErrLink, cause))

	if err := c.supervisor.Run(c.ctx); err != nil {
		return false
	}

	c.connected.Store(true)
	c.setState(StateObserving)
	c.timer.Reset()
	c.logger.Info("device link restored", "device", c.name)
	return true
}

// apply merges a delta and notifies subscribers before returning.
func (c *Coordinator) apply(delta Status) {
	c.cache.Merge(delta)
	c.deltasTotal.Add(1)
	c.lastUpdate.Store(time.Now().UnixNano())

	if !c.available.Swap(true) {
		c.logger.Info("device available", "device", c.name)
	}
	c.timer.Reset()
	c.listeners.NotifyAll()
}

func (c *Coordinator) handleStale() {
	if !c.available.CompareAndSwap(true, false) {
		return
	}
	c.staleTotal.Add(1)
	c.logger.Warn("device unavailable, no status received",
		"device", c.name,
		"window", c.timer.Window().String(),
	)
	c.listeners.NotifyAll()
}

// CurrentStatus returns a copy of the merged status. It never blocks on the
// observation loop or on writes.
func (c *Coordinator) CurrentStatus() Status {
	return c.cache.Snapshot()
}

// Value returns one cached field.
func (c *Coordinator) Value(key string) (any, bool) {
	return c.cache.Get(key)
}

// SetControlValue writes one control value. See SetControlValues.
func (c *Coordinator) SetControlValue(ctx context.Context, key string, value any) error {
	return c.SetControlValues(ctx, Control{Key: key, Value: value})
}

// SetControlValues writes controls to the device as one serialised batch.
//
// Writes are admitted one at a time in call order. The cache is updated
// optimistically before the network write and the update is kept even if the
// write fails; the next delta from the device is authoritative. Subscribers
// are notified after the write completes. Shutdown cancels a write in progress
// and waits for it to finish.
func (c *Coordinator) SetControlValues(ctx context.Context, controls ...Control) error {
	if len(controls) == 0 {
		return nil
	}
	if !c.admitWriter() {
		return fmt.Errorf("%w: %w", ErrWrite, ErrShutdown)
	}
	defer c.writers.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	release, err := c.writes.acquire(ctx)
	if err != nil {
		c.writeErrors.Add(1)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	err = c.write(ctx, controls)
	release()

	c.listeners.NotifyAll()
	return err
}

// admitWriter registers a writer unless Shutdown has begun.
func (c *Coordinator) admitWriter() bool {
	c.gateMu.Lock()
	defer c.gateMu.Unlock()
	if c.State() == StateShutdown {
		return false
	}
	c.writers.Add(1)
	return true
}

func (c *Coordinator) write(ctx context.Context, controls []Control) error {
	optimistic := make(Status, len(controls))
	for _, ctl := range controls {
		optimistic[ctl.Key] = ctl.Value
	}
	c.cache.Merge(optimistic)

	if !c.connected.Load() {
		c.writeErrors.Add(1)
		return fmt.Errorf("%w: %w", ErrWrite, ErrNotConnected)
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()

	for _, ctl := range controls {
		if err := c.link.WriteControl(writeCtx, ctl.Key, ctl.Value); err != nil {
			c.writeErrors.Add(1)
			c.logger.Warn("control write failed", "device", c.name, "key", ctl.Key, "error", err)
			return fmt.Errorf("%w: %s: %w", ErrWrite, ctl.Key, err)
		}
		c.writesTotal.Add(1)
		c.logger.Debug("control written", "device", c.name, "key", ctl.Key)
	}
	return nil
}

// Subscribe registers cb to be called after every merged delta, every
// availability loss and every control write. After Shutdown the returned
// registration is inactive.
func (c *Coordinator) Subscribe(cb func()) *Registration {
	return c.listeners.Add(cb)
}

// Unsubscribe removes a registration. It is equivalent to reg.Release.
func (c *Coordinator) Unsubscribe(reg *Registration) {
	reg.Release()
}

// NotifyListeners runs a notification round using cached data.
func (c *Coordinator) NotifyListeners() {
	c.listeners.NotifyAll()
}

// Shutdown stops the observation loop, any reconnect in progress, writes in
// progress and the staleness timer, closes the link and drops every
// subscriber. All of this has completed when Shutdown returns and no callback
// runs afterwards. Calling it again has no effect.
//
// Shutdown waits for running callbacks, so a callback must not call it. Use
// ShutdownAsync from inside a notification.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.cancel()

		c.startMu.Lock()
		c.gateMu.Lock()
		c.state.Store(int32(StateShutdown))
		c.gateMu.Unlock()
		c.startMu.Unlock()

		c.timer.Stop()
		c.writers.Wait()
		c.closeLink()
		c.wg.Wait()

		c.connected.Store(false)
		c.listeners.Close()
		c.logger.Info("coordinator shut down", "device", c.name)
	})
}

// ShutdownAsync starts Shutdown on its own goroutine and returns a channel
// that is closed once it has completed. It is safe to call from a callback.
func (c *Coordinator) ShutdownAsync() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Shutdown()
	}()
	return done
}

func (c *Coordinator) closeLink() {
	if err := c.link.Close(); err != nil {
		c.logger.Warn("closing device link", "device", c.name, "error", err)
	}
}

func (c *Coordinator) setState(s State) {
	for {
		cur := c.state.Load()
		if State(cur) == StateShutdown {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Name returns the device name given in Options.
func (c *Coordinator) Name() string {
	return c.name
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether a session is currently open.
func (c *Coordinator) IsConnected() bool {
	return c.connected.Load()
}

// IsAvailable reports whether a delta arrived within the staleness window.
func (c *Coordinator) IsAvailable() bool {
	return c.available.Load()
}

// ListenerCount returns the number of active subscriptions.
func (c *Coordinator) ListenerCount() int {
	return c.listeners.Len()
}

// TaskAlive reports whether the observation goroutine is running.
func (c *Coordinator) TaskAlive() bool {
	return c.taskAlive.Load()
}

// ReconnectActive reports whether the reconnect supervisor is running.
func (c *Coordinator) ReconnectActive() bool {
	return c.supervisor.Active()
}

// LastUpdate returns when the last delta was merged, or the zero time.
func (c *Coordinator) LastUpdate() time.Time {
	ns := c.lastUpdate.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Stats returns counters and flags for diagnostics.
func (c *Coordinator) Stats() Stats {
	return Stats{
		State:             c.State(),
		Connected:         c.IsConnected(),
		Available:         c.IsAvailable(),
		TaskAlive:         c.TaskAlive(),
		Reconnecting:      c.ReconnectActive(),
		StalenessArmed:    c.timer.Armed(),
		Listeners:         c.ListenerCount(),
		Keys:              c.cache.Len(),
		DeltasTotal:       c.deltasTotal.Load(),
		WritesTotal:       c.writesTotal.Load(),
		WriteErrorsTotal:  c.writeErrors.Load(),
		LinkErrorsTotal:   c.linkErrors.Load(),
		ReconnectAttempts: c.supervisor.Attempts(),
		ReconnectsTotal:   c.supervisor.Successes(),
		StaleTotal:        c.staleTotal.Load(),
		LastUpdate:        c.LastUpdate(),
	}
}
