package coordinator

import (
	"fmt"
	"slices"
	"sync"
)

// Registration is the handle returned by Subscribe.
type Registration struct {
	id       uint64
	registry *ListenerRegistry
	once     sync.Once
}

// Release removes the callback. It is safe to call more than once and from
// inside a notification.
func (r *Registration) Release() {
	if r == nil || r.registry == nil {
		return
	}
	r.once.Do(func() { r.registry.remove(r.id) })
}

// Active reports whether the callback is still registered.
func (r *Registration) Active() bool {
	if r == nil || r.registry == nil {
		return false
	}
	return r.registry.has(r.id)
}

// ListenerRegistry is the set of change callbacks for one Coordinator.
//
// NotifyAll calls a snapshot of the membership taken when the round starts,
// so callbacks may add or remove registrations while it runs. A panicking
// callback is logged and the round continues. Once Close returns no callback
// is running or will run.
type ListenerRegistry struct {
	mu        sync.Mutex
	nextID    uint64
	callbacks map[uint64]func()
	closed    bool
	rounds    sync.WaitGroup
	logger    Logger
}

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry(logger Logger) *ListenerRegistry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ListenerRegistry{
		callbacks: make(map[uint64]func()),
		logger:    logger,
	}
}

// Add registers cb. After Close, Add returns an inactive registration and cb
// is never called.
func (l *ListenerRegistry) Add(cb func()) *Registration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || cb == nil {
		return &Registration{}
	}

	l.nextID++
	l.callbacks[l.nextID] = cb
	return &Registration{id: l.nextID, registry: l}
}

func (l *ListenerRegistry) remove(id uint64) {
	l.mu.Lock()
	delete(l.callbacks, id)
	l.mu.Unlock()
}

func (l *ListenerRegistry) has(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.callbacks[id]
	return ok
}

// Len returns the number of registered callbacks.
func (l *ListenerRegistry) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callbacks)
}

// NotifyAll invokes every callback registered when the round starts, in
// registration order.
func (l *ListenerRegistry) NotifyAll() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	ids := make([]uint64, 0, len(l.callbacks))
	for id := range l.callbacks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	round := make([]func(), len(ids))
	for i, id := range ids {
		round[i] = l.callbacks[id]
	}
	l.rounds.Add(1)
	l.mu.Unlock()
	defer l.rounds.Done()

	for i, cb := range round {
		if l.isClosed() {
			return
		}
		l.invoke(ids[i], cb)
	}
}

func (l *ListenerRegistry) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *ListenerRegistry) invoke(id uint64, cb func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("listener callback panicked",
				"listener_id", id,
				"error", fmt.Sprint(r),
			)
		}
	}()
	cb()
}

// Close drops every callback, rejects future registrations and waits for
// running rounds to finish their current callback. It must not be called
// from a callback.
func (l *ListenerRegistry) Close() {
	l.mu.Lock()
	l.closed = true
	clear(l.callbacks)
	l.mu.Unlock()

	l.rounds.Wait()
}
