package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectSupervisor re-establishes a failed session.
//
// Every attempt, the first of a Run included, waits the current delay before
// opening the link. Delays start at the base interval and double after every
// attempt up to the cap. The schedule carries over between Runs and returns
// to the base only through ResetBackoff, which the owner calls once the new
// session has delivered data. A device that accepts the session and drops it
// straight away therefore keeps backing off instead of being redialled in a
// tight loop. There is no attempt limit: Run returns only on success or when
// its context is cancelled.
type ReconnectSupervisor struct {
	link           DeviceLink
	attemptTimeout time.Duration
	logger         Logger

	mu sync.Mutex
	b  *backoff.ExponentialBackOff

	active    atomic.Bool
	attempts  atomic.Uint64
	successes atomic.Uint64

	// onRetry observes each scheduled delay.
	onRetry func(attempt uint64, delay time.Duration)
}

// NewReconnectSupervisor creates a supervisor for link.
func NewReconnectSupervisor(link DeviceLink, base, maxDelay, attemptTimeout time.Duration, logger Logger) *ReconnectSupervisor {
	if logger == nil {
		logger = noopLogger{}
	}
	if maxDelay < base {
		maxDelay = base
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &ReconnectSupervisor{
		link:           link,
		attemptTimeout: attemptTimeout,
		logger:         logger,
		b:              b,
	}
}

// ResetBackoff returns the delay schedule to the base interval.
func (s *ReconnectSupervisor) ResetBackoff() {
	s.mu.Lock()
	s.b.Reset()
	s.mu.Unlock()
}

func (s *ReconnectSupervisor) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.NextBackOff()
}

// Run retries until the link opens or ctx is cancelled. Each attempt closes
// any half-open session first and is bounded by the attempt timeout.
func (s *ReconnectSupervisor) Run(ctx context.Context) error {
	s.active.Store(true)
	defer s.active.Store(false)

	var attempt uint64
	for {
		attempt++
		delay := s.nextDelay()
		if s.onRetry != nil {
			s.onRetry(attempt, delay)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}

		s.attempts.Add(1)
		err := s.attempt(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("reconnect attempt failed",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
	}

	s.successes.Add(1)
	s.logger.Info("reconnected", "attempts", attempt)
	return nil
}

func (s *ReconnectSupervisor) attempt(ctx context.Context) error {
	if err := s.link.Close(); err != nil {
		s.logger.Debug("closing half-open link", "error", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	if err := s.link.Open(attemptCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return nil
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports whether Run is in progress.
func (s *ReconnectSupervisor) Active() bool {
	return s.active.Load()
}

// Attempts returns the total number of connect attempts made.
func (s *ReconnectSupervisor) Attempts() uint64 {
	return s.attempts.Load()
}

// Successes returns the number of completed reconnections.
func (s *ReconnectSupervisor) Successes() uint64 {
	return s.successes.Load()
}
