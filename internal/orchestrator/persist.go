package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
)

// persistTimeout bounds a single snapshot write.
const persistTimeout = 5 * time.Second

// persistMaxWaitFactor caps how many debounce intervals a pending write can
// be pushed back by a steady stream of changes.
const persistMaxWaitFactor = 5

// persister writes an entry's status back to the store a short while after
// it last changed. Bursts of deltas collapse into one write, but a pending
// write is never delayed by more than maxWait.
type persister struct {
	entryID string
	store   Store
	source  func() coordinator.Status
	delay   time.Duration
	maxWait time.Duration
	logger  Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending time.Time
	stopped bool
	saveMu  sync.Mutex
}

func newPersister(entryID string, store Store, source func() coordinator.Status, delay time.Duration, logger Logger) *persister {
	return &persister{
		entryID: entryID,
		store:   store,
		source:  source,
		delay:   delay,
		maxWait: persistMaxWaitFactor * delay,
		logger:  logger,
	}
}

// Trigger schedules a write, pushing back any pending one until it has
// waited maxWait. It is the coordinator listener.
func (p *persister) Trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	now := time.Now()
	if p.pending.IsZero() {
		p.pending = now
	}
	wait := min(p.delay, max(p.maxWait-now.Sub(p.pending), 0))

	if p.timer == nil {
		p.timer = time.AfterFunc(wait, p.fire)
		return
	}
	p.timer.Reset(wait)
}

func (p *persister) fire() {
	p.mu.Lock()
	stopped := p.stopped
	p.pending = time.Time{}
	p.mu.Unlock()
	if stopped {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	p.save(ctx)
}

// Flush cancels any pending write, stops further triggers and saves once.
func (p *persister) Flush(ctx context.Context) {
	p.mu.Lock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	p.save(ctx)
}

func (p *persister) save(ctx context.Context) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	status := p.source()
	if len(status) == 0 {
		return
	}
	if err := p.store.SaveStatus(ctx, p.entryID, status); err != nil {
		p.logger.Warn("failed to persist status snapshot", "entry_id", p.entryID, "error", err)
	}
}
