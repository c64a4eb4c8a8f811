package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu        sync.Mutex
	devices   map[string]*Device
	saveCalls int
	// For testing error paths
	createErr error
	saveErr   error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{devices: make(map[string]*Device)}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) GetByHost(_ context.Context, host string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.Host == host {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.DeepCopy())
	}
	return devices, nil
}

func (m *MockRepository) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.devices[d.ID]; ok {
		return ErrDeviceExists
	}
	m.devices[d.ID] = d.DeepCopy()
	return nil
}

func (m *MockRepository) Update(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.devices[d.ID]
	if !ok {
		return ErrDeviceNotFound
	}
	cpy := d.DeepCopy()
	cpy.Status = existing.Status
	m.devices[d.ID] = cpy
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

func (m *MockRepository) SaveStatus(_ context.Context, id string, status map[string]any, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Status = deepCopyMap(status)
	d.StatusUpdatedAt = &at
	return nil
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["dev-1"] = testDevice("dev-1", "Bedroom", "10.0.0.1")
	repo.devices["dev-2"] = testDevice("dev-2", "Kitchen", "10.0.0.2")

	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if got := reg.GetDeviceCount(); got != 2 {
		t.Errorf("GetDeviceCount() = %d, want 2", got)
	}
}

func TestRegistry_GetDevice(t *testing.T) {
	repo := NewMockRepository()
	repo.devices["dev-1"] = testDevice("dev-1", "Bedroom", "10.0.0.1")
	reg := NewRegistry(repo)
	ctx := context.Background()

	t.Run("falls back to repository and caches", func(t *testing.T) {
		got, err := reg.GetDevice(ctx, "dev-1")
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if got.Name != "Bedroom" {
			t.Errorf("Name = %q, want Bedroom", got.Name)
		}
		if reg.GetDeviceCount() != 1 {
			t.Errorf("device not cached after lookup")
		}
	})

	t.Run("returned copy is isolated", func(t *testing.T) {
		got, _ := reg.GetDevice(ctx, "dev-1")
		got.Name = "mutated"
		again, _ := reg.GetDevice(ctx, "dev-1")
		if again.Name != "Bedroom" {
			t.Errorf("cache mutated through returned copy: %q", again.Name)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := reg.GetDevice(ctx, "missing")
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("GetDevice() error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestRegistry_CreateDevice(t *testing.T) {
	ctx := context.Background()

	t.Run("generates ID", func(t *testing.T) {
		reg := NewRegistry(NewMockRepository())
		d := &Device{Name: "Lounge", Host: "192.168.1.50"}
		if err := reg.CreateDevice(ctx, d); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
		if d.ID == "" {
			t.Error("ID was not generated")
		}
		got, err := reg.GetDeviceByHost(ctx, "192.168.1.50")
		if err != nil {
			t.Fatalf("GetDeviceByHost() error = %v", err)
		}
		if got.ID != d.ID {
			t.Errorf("GetDeviceByHost() ID = %q, want %q", got.ID, d.ID)
		}
	})

	t.Run("rejects invalid device", func(t *testing.T) {
		reg := NewRegistry(NewMockRepository())
		err := reg.CreateDevice(ctx, &Device{Name: "No host"})
		if !errors.Is(err, ErrInvalidHost) {
			t.Errorf("CreateDevice() error = %v, want ErrInvalidHost", err)
		}
		if reg.GetDeviceCount() != 0 {
			t.Error("invalid device was cached")
		}
	})

	t.Run("repository error is not cached", func(t *testing.T) {
		repo := NewMockRepository()
		repo.createErr = errors.New("disk full")
		reg := NewRegistry(repo)
		if err := reg.CreateDevice(ctx, testDevice("x", "X", "10.0.0.1")); err == nil {
			t.Fatal("CreateDevice() expected error")
		}
		if reg.GetDeviceCount() != 0 {
			t.Error("failed device was cached")
		}
	})
}

func TestRegistry_UpdateDevice(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	d := testDevice("dev-1", "Bedroom", "10.0.0.1")
	d.Status = map[string]any{"pwr": "1"}
	if err := reg.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	update := testDevice("dev-1", "Main Bedroom", "10.0.0.1")
	if err := reg.UpdateDevice(ctx, update); err != nil {
		t.Fatalf("UpdateDevice() error = %v", err)
	}

	got, _ := reg.GetDevice(ctx, "dev-1")
	if got.Name != "Main Bedroom" {
		t.Errorf("Name = %q, want Main Bedroom", got.Name)
	}
	if got.Status["pwr"] != "1" {
		t.Errorf("snapshot lost on update: %v", got.Status)
	}

	if err := reg.UpdateDevice(ctx, testDevice("missing", "M", "10.0.0.2")); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateDevice(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_DeleteDevice(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()

	if err := reg.CreateDevice(ctx, testDevice("dev-1", "Bedroom", "10.0.0.1")); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if err := reg.DeleteDevice(ctx, "dev-1"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if reg.GetDeviceCount() != 0 {
		t.Errorf("GetDeviceCount() = %d, want 0", reg.GetDeviceCount())
	}
}

func TestRegistry_SaveStatus(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	if err := reg.CreateDevice(ctx, testDevice("dev-1", "Bedroom", "10.0.0.1")); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	status := map[string]any{"pwr": "1", "pm25": int64(4)}
	if err := reg.SaveStatus(ctx, "dev-1", status); err != nil {
		t.Fatalf("SaveStatus() error = %v", err)
	}
	status["pwr"] = "0"

	got, _ := reg.GetDevice(ctx, "dev-1")
	if got.Status["pwr"] != "1" {
		t.Errorf("cached snapshot aliases caller map: pwr = %v", got.Status["pwr"])
	}
	if got.StatusUpdatedAt == nil {
		t.Error("StatusUpdatedAt not set")
	}

	t.Run("repository failure leaves cache alone", func(t *testing.T) {
		repo.saveErr = errors.New("locked")
		defer func() { repo.saveErr = nil }()

		if err := reg.SaveStatus(ctx, "dev-1", map[string]any{"pwr": "0"}); err == nil {
			t.Fatal("SaveStatus() expected error")
		}
		got, _ := reg.GetDevice(ctx, "dev-1")
		if got.Status["pwr"] != "1" {
			t.Errorf("pwr = %v, want 1", got.Status["pwr"])
		}
	})
}

func TestRegistry_ListDevicesSorted(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()

	for _, d := range []*Device{
		testDevice("c", "Study", "10.0.0.3"),
		testDevice("a", "Attic", "10.0.0.1"),
		testDevice("b", "Kitchen", "10.0.0.2"),
	} {
		if err := reg.CreateDevice(ctx, d); err != nil {
			t.Fatalf("CreateDevice() error = %v", err)
		}
	}

	devices, err := reg.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	want := []string{"Attic", "Kitchen", "Study"}
	for i, name := range want {
		if devices[i].Name != name {
			t.Errorf("devices[%d] = %q, want %q", i, devices[i].Name, name)
		}
	}
}
