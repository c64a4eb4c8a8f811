// Package services runs named service calls against a purifier entry.
//
// A service call validates its parameters against the entry's capability
// model, turns them into control writes on the entry's coordinator, and
// records the outcome in the service log. Writes for each entry pass
// through a circuit breaker so a device that keeps rejecting or timing out
// is left alone for a while instead of queueing more work.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/gray-logic-purifier/internal/audit"
	"github.com/nerrad567/gray-logic-purifier/internal/capability"
	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
)

// Logger defines the logging interface used by the Executor.
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

// Target is the coordinator surface a service call needs.
type Target interface {
	CurrentStatus() coordinator.Status
	SetControlValues(ctx context.Context, controls ...coordinator.Control) error
}

// Recorder persists service log records.
type Recorder interface {
	Create(ctx context.Context, rec *audit.Record) error
}

// ServiceSetControl is the service name recorded for raw control writes.
const ServiceSetControl = "set_control"

// Default breaker settings.
const (
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
	DefaultBreakerInterval = time.Minute
)

// Options configures an Executor.
type Options struct {
	// BreakerFailures is the number of consecutive write failures that
	// opens an entry's breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long an open breaker stays open.
	BreakerTimeout time.Duration
	// BreakerInterval is the closed-state window after which counts reset.
	BreakerInterval time.Duration
	Recorder        Recorder
	Logger          Logger
	// Now is used for maintenance schedules. Defaults to time.Now.
	Now func() time.Time
}

// Call is one service invocation.
type Call struct {
	EntryID string
	Service string
	Params  Params
	Model   capability.Model
	Target  Target
}

// Result describes what a service call did.
type Result struct {
	Service string                `json:"service"`
	Written []coordinator.Control `json:"written,omitempty"`
	Skipped []string              `json:"skipped,omitempty"`
	Detail  map[string]any        `json:"detail,omitempty"`
}

// Executor dispatches service calls and owns the per-entry breakers.
type Executor struct {
	opts     Options
	logger   Logger
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewExecutor creates an Executor. Zero option fields take defaults.
func NewExecutor(opts Options) *Executor {
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = DefaultBreakerTimeout
	}
	if opts.BreakerInterval <= 0 {
		opts.BreakerInterval = DefaultBreakerInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Executor{
		opts:     opts,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Names lists the registered service names.
func Names() []string {
	out := make([]string, 0, len(handlers))
	for name := range handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Execute validates and runs a service call, recording its outcome.
func (e *Executor) Execute(ctx context.Context, call Call) (*Result, error) {
	h, ok := handlers[call.Service]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, call.Service)
	}
	if call.Params == nil {
		call.Params = Params{}
	}

	plan, err := h(e, call)
	if err != nil {
		e.record(ctx, call, err)
		return nil, err
	}

	res := &Result{Service: call.Service, Skipped: plan.skipped, Detail: plan.detail}
	if len(plan.controls) > 0 {
		if err := e.write(ctx, call.EntryID, call.Target, plan.controls); err != nil {
			e.record(ctx, call, err)
			return nil, err
		}
		res.Written = plan.controls
	}

	e.logger.Info("service executed", "entry_id", call.EntryID, "service", call.Service,
		"writes", len(res.Written), "skipped", len(res.Skipped))
	e.record(ctx, call, nil)
	return res, nil
}

// SetControl writes a single raw control through the entry's breaker.
func (e *Executor) SetControl(ctx context.Context, entryID string, target Target, key string, value any) error {
	call := Call{
		EntryID: entryID,
		Service: ServiceSetControl,
		Params:  Params{"key": key, "value": value},
	}
	if key == "" {
		err := fmt.Errorf("%w: key is required", ErrInvalidParams)
		e.record(ctx, call, err)
		return err
	}
	err := e.write(ctx, entryID, target, []coordinator.Control{{Key: key, Value: value}})
	e.record(ctx, call, err)
	return err
}

// BreakerState reports the breaker state for an entry ("closed" when the
// entry has never written).
func (e *Executor) BreakerState(entryID string) string {
	e.mu.Lock()
	cb, ok := e.breakers[entryID]
	e.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

// Forget drops the breaker for a removed entry.
func (e *Executor) Forget(entryID string) {
	e.mu.Lock()
	delete(e.breakers, entryID)
	e.mu.Unlock()
}

func (e *Executor) breaker(entryID string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[entryID]; ok {
		return cb
	}
	failures := e.opts.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     entryID,
		Interval: e.opts.BreakerInterval,
		Timeout:  e.opts.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation and shutdown say nothing about the device.
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, coordinator.ErrShutdown)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("device write breaker changed state", "entry_id", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[entryID] = cb
	return cb
}

func (e *Executor) write(ctx context.Context, entryID string, target Target, controls []coordinator.Control) error {
	if target == nil {
		return coordinator.ErrNotConnected
	}
	_, err := e.breaker(entryID).Execute(func() (any, error) {
		return nil, target.SetControlValues(ctx, controls...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}

func (e *Executor) record(ctx context.Context, call Call, callErr error) {
	if e.opts.Recorder == nil {
		return
	}
	rec := &audit.Record{
		EntryID: call.EntryID,
		Service: call.Service,
		Params:  map[string]any(call.Params),
		Outcome: outcomeOf(callErr),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	// The log entry should survive a cancelled request.
	if err := e.opts.Recorder.Create(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Error("failed to record service call", "entry_id", call.EntryID, "service", call.Service, "error", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return audit.OutcomeOK
	case errors.Is(err, ErrInvalidParams),
		errors.Is(err, ErrConfirmationRequired),
		errors.Is(err, ErrUnknownService),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, capability.ErrUnsupported):
		return audit.OutcomeRejected
	default:
		return audit.OutcomeFailed
	}
}
