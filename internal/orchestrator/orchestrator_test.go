package orchestrator

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
	"github.com/nerrad567/gray-logic-purifier/internal/device"
	"github.com/nerrad567/gray-logic-purifier/internal/link/memlink"
)

var errRefused = errors.New("connection refused")

// mockStore is an in-memory Store.
type mockStore struct {
	mu      sync.Mutex
	devices map[string]*device.Device
	saves   map[string][]map[string]any
}

func newMockStore(devs ...*device.Device) *mockStore {
	s := &mockStore{devices: make(map[string]*device.Device), saves: make(map[string][]map[string]any)}
	for _, d := range devs {
		s.devices[d.ID] = d
	}
	return s
}

func (s *mockStore) GetDevice(_ context.Context, id string) (*device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (s *mockStore) ListDevices(_ context.Context) ([]device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]device.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (s *mockStore) SaveStatus(_ context.Context, id string, status map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves[id] = append(s.saves[id], maps.Clone(status))
	if d, ok := s.devices[id]; ok {
		d.Status = maps.Clone(status)
	}
	return nil
}

func (s *mockStore) saved(id string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.saves[id]...)
}

// mockWatcher records load events.
type mockWatcher struct {
	mu       sync.Mutex
	loaded   []string
	unloaded []string
}

func (w *mockWatcher) EntryLoaded(e *Entry) {
	w.mu.Lock()
	w.loaded = append(w.loaded, e.ID)
	w.mu.Unlock()
}

func (w *mockWatcher) EntryUnloaded(id string) {
	w.mu.Lock()
	w.unloaded = append(w.unloaded, id)
	w.mu.Unlock()
}

// simLinks hands out one memlink device per entry.
type simLinks struct {
	mu      sync.Mutex
	devices map[string]*memlink.Device
}

func newSimLinks() *simLinks {
	return &simLinks{devices: make(map[string]*memlink.Device)}
}

func (l *simLinks) device(id string) *memlink.Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.devices[id]
	if !ok {
		d = memlink.New(nil)
		l.devices[id] = d
	}
	return d
}

func (l *simLinks) factory(entry *device.Device) (coordinator.DeviceLink, error) {
	return l.device(entry.ID), nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testOptions() Options {
	return Options{
		Coordinator: coordinator.Options{
			ConnectTimeout:  time.Second,
			StalenessWindow: time.Hour,
			BackoffBase:     5 * time.Millisecond,
			BackoffMax:      20 * time.Millisecond,
		},
		PersistDebounce: 20 * time.Millisecond,
	}
}

func bedroom() *device.Device {
	return &device.Device{ID: "e1", Name: "Bedroom", Host: "192.168.1.40", Model: "AC2729/10"}
}

func TestSetup_FirstRunPersistsSnapshot(t *testing.T) {
	store := newMockStore(bedroom())
	links := newSimLinks()
	o := New(store, links.factory, testOptions())
	w := &mockWatcher{}
	o.Watch(w)
	t.Cleanup(func() { o.Shutdown(context.Background()) })

	e, err := o.Setup(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if e.Model.Name != "AC2729" || e.Name != "Bedroom" {
		t.Errorf("entry = %+v", e)
	}
	if e.Coordinator.State() != coordinator.StateObserving {
		t.Errorf("State() = %v, want observing", e.Coordinator.State())
	}
	saves := store.saved("e1")
	if len(saves) == 0 || saves[0]["modelid"] != "AC2729/10" {
		t.Fatalf("first-run snapshot not stored: %v", saves)
	}
	if got, ok := o.Get("e1"); !ok || got != e {
		t.Error("Get() did not return the loaded entry")
	}
	if o.Count() != 1 || len(o.Coordinators()) != 1 {
		t.Errorf("Count() = %d", o.Count())
	}
	if len(w.loaded) != 1 || w.loaded[0] != "e1" {
		t.Errorf("watcher loaded = %v", w.loaded)
	}
}

func TestSetup_PrepopulatesFromStoredSnapshot(t *testing.T) {
	dev := bedroom()
	dev.Status = map[string]any{"legacy": "kept", "pwr": "0"}
	store := newMockStore(dev)
	links := newSimLinks()
	o := New(store, links.factory, testOptions())
	t.Cleanup(func() { o.Shutdown(context.Background()) })

	e, err := o.Setup(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	status := e.Coordinator.CurrentStatus()
	if status["legacy"] != "kept" {
		t.Errorf("stored key dropped: %v", status["legacy"])
	}
	if status["pwr"] != "1" {
		t.Errorf("pwr = %v, want live value 1", status["pwr"])
	}
	if len(store.saved("e1")) != 0 {
		t.Error("snapshot written immediately although one was stored")
	}
}

func TestSetup_NotReady(t *testing.T) {
	store := newMockStore(bedroom())
	links := newSimLinks()
	links.device("e1").SetOpenError(errRefused)
	o := New(store, links.factory, testOptions())

	_, err := o.Setup(context.Background(), "e1")
	if !errors.Is(err, ErrNotReady) || !errors.Is(err, coordinator.ErrConnect) {
		t.Fatalf("Setup() error = %v, want ErrNotReady wrapping ErrConnect", err)
	}
	if o.Count() != 0 {
		t.Errorf("Count() = %d after failed setup", o.Count())
	}

	links.device("e1").SetOpenError(nil)
	if _, err := o.Setup(context.Background(), "e1"); err != nil {
		t.Fatalf("retry Setup() error = %v", err)
	}
	o.Shutdown(context.Background())
}

func TestSetup_Errors(t *testing.T) {
	store := newMockStore(bedroom())
	links := newSimLinks()
	o := New(store, links.factory, testOptions())
	t.Cleanup(func() { o.Shutdown(context.Background()) })

	if _, err := o.Setup(context.Background(), "missing"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Setup(missing) error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := o.Setup(context.Background(), "e1"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := o.Setup(context.Background(), "e1"); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("second Setup() error = %v, want ErrAlreadyLoaded", err)
	}

	failing := New(store, func(*device.Device) (coordinator.DeviceLink, error) { return nil, errRefused }, testOptions())
	if _, err := failing.Setup(context.Background(), "e1"); !errors.Is(err, errRefused) {
		t.Errorf("Setup() with failing factory error = %v", err)
	}
}

func TestPersist_Debounced(t *testing.T) {
	dev := bedroom()
	dev.Status = map[string]any{"pwr": "1"}
	store := newMockStore(dev)
	links := newSimLinks()
	o := New(store, links.factory, testOptions())
	t.Cleanup(func() { o.Shutdown(context.Background()) })

	if _, err := o.Setup(context.Background(), "e1"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	sim := links.device("e1")
	for i := range 10 {
		sim.Push(coordinator.Status{"pm25": int64(i)})
	}

	waitFor(t, "debounced save", func() bool {
		saves := store.saved("e1")
		return len(saves) > 0 && saves[len(saves)-1]["pm25"] == int64(9)
	})
	if n := len(store.saved("e1")); n > 3 {
		t.Errorf("%d saves for one burst, want the burst collapsed", n)
	}
}

func TestPersist_SteadyChangesStillSaved(t *testing.T) {
	store := newMockStore(bedroom())
	var mu sync.Mutex
	var seq int64
	source := func() coordinator.Status {
		mu.Lock()
		defer mu.Unlock()
		return coordinator.Status{"pm25": seq}
	}
	p := newPersister("e1", store, source, 20*time.Millisecond, noopLogger{})

	// Changes arrive faster than the debounce for well past the max wait.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		mu.Lock()
		seq++
		mu.Unlock()
		p.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	if n := len(store.saved("e1")); n < 2 {
		t.Errorf("saves during a steady stream = %d, want at least 2", n)
	}
	p.Flush(context.Background())
}

func TestTeardown(t *testing.T) {
	store := newMockStore(bedroom())
	links := newSimLinks()
	o := New(store, links.factory, testOptions())
	w := &mockWatcher{}
	o.Watch(w)

	e, err := o.Setup(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	sim := links.device("e1")
	sim.Push(coordinator.Status{"pm25": int64(42)})
	waitFor(t, "delta merged", func() bool {
		v, _ := e.Coordinator.Value("pm25")
		return v == int64(42)
	})

	if err := o.Teardown(context.Background(), "e1"); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}

	if e.Coordinator.State() != coordinator.StateShutdown {
		t.Errorf("State() = %v, want shutdown", e.Coordinator.State())
	}
	saves := store.saved("e1")
	if len(saves) == 0 || saves[len(saves)-1]["pm25"] != int64(42) {
		t.Errorf("final snapshot not saved: %v", saves)
	}
	if _, ok := o.Get("e1"); ok {
		t.Error("entry still loaded after Teardown")
	}
	if len(w.unloaded) != 1 {
		t.Errorf("watcher unloaded = %v", w.unloaded)
	}
	if err := o.Teardown(context.Background(), "e1"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("second Teardown() error = %v, want ErrNotLoaded", err)
	}
}

func TestReload(t *testing.T) {
	store := newMockStore(bedroom())
	links := newSimLinks()
	o := New(store, links.factory, testOptions())
	t.Cleanup(func() { o.Shutdown(context.Background()) })

	first, err := o.Reload(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	second, err := o.Reload(context.Background(), "e1")
	if err != nil {
		t.Fatalf("second Reload() error = %v", err)
	}
	if first == second || first.Coordinator.State() != coordinator.StateShutdown {
		t.Error("Reload() did not replace the running entry")
	}
	if links.device("e1").Sessions() != 2 {
		t.Errorf("Sessions() = %d, want 2", links.device("e1").Sessions())
	}
}

func TestSetupAll_AndHealthTargets(t *testing.T) {
	kitchen := &device.Device{ID: "e2", Name: "Kitchen", Host: "192.168.1.41", Model: "AC1214"}
	store := newMockStore(bedroom(), kitchen)
	links := newSimLinks()
	links.device("e2").SetOpenError(errRefused)
	o := New(store, links.factory, testOptions())
	t.Cleanup(func() { o.Shutdown(context.Background()) })

	loaded, err := o.SetupAll(context.Background())
	if loaded != 1 {
		t.Errorf("SetupAll() loaded = %d, want 1", loaded)
	}
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("SetupAll() error = %v, want ErrNotReady", err)
	}

	targets := o.HealthTargets()
	if len(targets) != 2 {
		t.Fatalf("HealthTargets() = %d, want 2", len(targets))
	}
	for _, tg := range targets {
		switch tg.EntryID {
		case "e1":
			if tg.Probe == nil {
				t.Error("loaded entry has no probe")
			}
		case "e2":
			if tg.Probe != nil {
				t.Error("unloaded entry has a probe")
			}
		}
	}

	entries := o.Entries()
	if len(entries) != 1 || entries[0].ID != "e1" {
		t.Errorf("Entries() = %v", entries)
	}
}
