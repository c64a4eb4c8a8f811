// Package orchestrator loads purifier entries into running coordinators.
//
// Setup builds the device link for an entry, pre-populates a Coordinator
// from the stored status snapshot and performs the first refresh. While an
// entry is loaded its status is written back to the store after changes,
// so the next start has a recent snapshot to show before the device
// answers. Teardown stops the coordinator and saves a final snapshot.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/capability"
	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
	"github.com/nerrad567/gray-logic-purifier/internal/device"
	"github.com/nerrad567/gray-logic-purifier/internal/health"
)

// Defaults.
const (
	DefaultSetupTimeout    = 25 * time.Second
	DefaultPersistDebounce = 2 * time.Second
)

// Logger defines the logging interface used by the Orchestrator.
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

// Store is the entry persistence the orchestrator needs. *device.Registry
// satisfies it.
type Store interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	ListDevices(ctx context.Context) ([]device.Device, error)
	SaveStatus(ctx context.Context, id string, status map[string]any) error
}

// LinkFactory builds the device link for an entry.
type LinkFactory func(entry *device.Device) (coordinator.DeviceLink, error)

// Watcher is told when entries are loaded and unloaded.
type Watcher interface {
	EntryLoaded(e *Entry)
	EntryUnloaded(entryID string)
}

// Options configures an Orchestrator. Zero values select the defaults.
type Options struct {
	// Coordinator carries the session timings; Name and Logger are set per entry.
	Coordinator     coordinator.Options
	SetupTimeout    time.Duration
	PersistDebounce time.Duration
	Logger          Logger
}

// Entry is a loaded purifier entry.
type Entry struct {
	ID          string
	Name        string
	Host        string
	Model       capability.Model
	Coordinator *coordinator.Coordinator
	LoadedAt    time.Time

	persist *persister
}

// Orchestrator owns the loaded entries.
type Orchestrator struct {
	store  Store
	links  LinkFactory
	opts   Options
	logger Logger

	mu       sync.RWMutex
	entries  map[string]*Entry
	loading  map[string]struct{}
	watchers []Watcher
}

// New creates an Orchestrator.
func New(store Store, links LinkFactory, opts Options) *Orchestrator {
	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = DefaultSetupTimeout
	}
	if opts.PersistDebounce <= 0 {
		opts.PersistDebounce = DefaultPersistDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Orchestrator{
		store:   store,
		links:   links,
		opts:    opts,
		logger:  logger,
		entries: make(map[string]*Entry),
		loading: make(map[string]struct{}),
	}
}

// Watch registers w for load and unload events.
func (o *Orchestrator) Watch(w Watcher) {
	o.mu.Lock()
	o.watchers = append(o.watchers, w)
	o.mu.Unlock()
}

// Setup loads an entry. A failed first refresh returns an error wrapping
// ErrNotReady and leaves nothing running.
func (o *Orchestrator) Setup(ctx context.Context, id string) (*Entry, error) {
	o.mu.Lock()
	if _, ok := o.entries[id]; ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, id)
	}
	if _, ok := o.loading[id]; ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, id)
	}
	o.loading[id] = struct{}{}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.loading, id)
		o.mu.Unlock()
	}()

	dev, err := o.store.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	link, err := o.links(dev)
	if err != nil {
		return nil, fmt.Errorf("creating link for %s: %w", id, err)
	}

	copts := o.opts.Coordinator
	copts.Name = dev.ID
	if copts.ConnectTimeout <= 0 || copts.ConnectTimeout > o.opts.SetupTimeout {
		copts.ConnectTimeout = o.opts.SetupTimeout
	}
	if copts.Logger == nil {
		copts.Logger = o.logger
	}

	firstRun := !dev.HasSnapshot()
	c := coordinator.New(link, coordinator.Status(dev.Status), copts)
	if err := c.FirstRefresh(ctx); err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("%w: %s: %w", ErrNotReady, dev.Name, err)
	}

	e := &Entry{
		ID:          dev.ID,
		Name:        dev.Name,
		Host:        dev.Host,
		Model:       capability.Lookup(dev.Model),
		Coordinator: c,
		LoadedAt:    time.Now().UTC(),
	}
	e.persist = newPersister(dev.ID, o.store, c.CurrentStatus, o.opts.PersistDebounce, o.logger)

	if firstRun {
		if err := o.store.SaveStatus(ctx, dev.ID, c.CurrentStatus()); err != nil {
			o.logger.Warn("failed to store first status snapshot", "entry_id", dev.ID, "error", err)
		}
	}
	c.Subscribe(e.persist.Trigger)

	o.mu.Lock()
	o.entries[id] = e
	watchers := append([]Watcher(nil), o.watchers...)
	o.mu.Unlock()

	for _, w := range watchers {
		w.EntryLoaded(e)
	}

	o.logger.Info("entry loaded", "entry_id", dev.ID, "name", dev.Name, "model", e.Model.Name, "first_run", firstRun)
	return e, nil
}

// SetupAll loads every stored entry. Entries that fail stay unloaded; the
// failures are joined into the returned error.
func (o *Orchestrator) SetupAll(ctx context.Context) (int, error) {
	devices, err := o.store.ListDevices(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		loaded int
		errs   []error
	)
	for i := range devices {
		id := devices[i].ID
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Setup(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.logger.Warn("entry setup failed", "entry_id", id, "error", err)
				errs = append(errs, err)
				return
			}
			loaded++
		}()
	}
	wg.Wait()
	return loaded, errors.Join(errs...)
}

// Teardown unloads an entry: the coordinator is shut down and its final
// status saved.
func (o *Orchestrator) Teardown(ctx context.Context, id string) error {
	o.mu.Lock()
	e, ok := o.entries[id]
	if ok {
		delete(o.entries, id)
	}
	watchers := append([]Watcher(nil), o.watchers...)
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}

	e.Coordinator.Shutdown()
	e.persist.Flush(ctx)

	for _, w := range watchers {
		w.EntryUnloaded(id)
	}

	o.logger.Info("entry unloaded", "entry_id", id)
	return nil
}

// Reload tears an entry down if loaded and sets it up again.
func (o *Orchestrator) Reload(ctx context.Context, id string) (*Entry, error) {
	if err := o.Teardown(ctx, id); err != nil && !errors.Is(err, ErrNotLoaded) {
		return nil, err
	}
	return o.Setup(ctx, id)
}

// Shutdown unloads every entry.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.RLock()
	ids := make([]string, 0, len(o.entries))
	for id := range o.entries {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	for _, id := range ids {
		if err := o.Teardown(ctx, id); err != nil && !errors.Is(err, ErrNotLoaded) {
			o.logger.Warn("entry teardown failed", "entry_id", id, "error", err)
		}
	}
}

// Get returns a loaded entry.
func (o *Orchestrator) Get(id string) (*Entry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[id]
	return e, ok
}

// Entries returns the loaded entries ordered by name.
func (o *Orchestrator) Entries() []*Entry {
	o.mu.RLock()
	out := make([]*Entry, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, e)
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Coordinators returns the running coordinators. It feeds the metrics
// collector.
func (o *Orchestrator) Coordinators() []*coordinator.Coordinator {
	entries := o.Entries()
	out := make([]*coordinator.Coordinator, len(entries))
	for i, e := range entries {
		out[i] = e.Coordinator
	}
	return out
}

// Count returns the number of loaded entries.
func (o *Orchestrator) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}

// HealthTargets lists every stored entry, with a probe for the loaded ones.
func (o *Orchestrator) HealthTargets() []health.Target {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	devices, err := o.store.ListDevices(ctx)
	if err != nil {
		o.logger.Warn("listing entries for health checks", "error", err)
		return nil
	}

	targets := make([]health.Target, 0, len(devices))
	for _, d := range devices {
		t := health.Target{EntryID: d.ID, Name: d.Name, Model: d.Model}
		if e, ok := o.Get(d.ID); ok {
			t.Probe = e.Coordinator
		}
		targets = append(targets, t)
	}
	return targets
}
