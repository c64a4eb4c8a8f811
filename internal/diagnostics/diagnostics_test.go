package diagnostics

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
	"github.com/nerrad567/gray-logic-purifier/internal/device"
)

type mockSource struct {
	status coordinator.Status
	stats  coordinator.Stats
}

func (m mockSource) CurrentStatus() coordinator.Status { return m.status.Clone() }
func (m mockSource) Stats() coordinator.Stats          { return m.stats }

func testEntry() *device.Device {
	return &device.Device{
		ID:    "e1",
		Name:  "Bedroom",
		Host:  "192.168.1.40",
		Model: "AC2729/10",
		MAC:   "aa:bb:cc:dd:ee:ff",
	}
}

func TestBuild_Loaded(t *testing.T) {
	last := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	src := mockSource{
		status: coordinator.Status{
			"pwr": "1", "pm25": int64(4), "rssi": int64(-58),
			"fltsts0": int64(180), "flttotal0": int64(360),
			"wifi_ssid": "home-net",
			"wifi":      map[string]any{"ip": "192.168.1.40", "channel": int64(6)},
		},
		stats: coordinator.Stats{
			State: coordinator.StateObserving, Connected: true, Available: true,
			TaskAlive: true, Listeners: 2, LastUpdate: last,
		},
	}

	r := Build(testEntry(), src, "closed", last.Add(time.Minute))

	if !r.Loaded || r.Coordinator == nil {
		t.Fatal("report not marked as loaded")
	}
	if r.Coordinator.State != "observing" || r.Coordinator.Listeners != 2 || r.Coordinator.BreakerState != "closed" {
		t.Errorf("Coordinator = %+v", r.Coordinator)
	}
	if r.Coordinator.LastUpdate == nil || !r.Coordinator.LastUpdate.Equal(last) {
		t.Errorf("LastUpdate = %v, want %v", r.Coordinator.LastUpdate, last)
	}
	if r.Entry.MAC != Redacted || r.Entry.Host != Redacted {
		t.Errorf("entry identity not redacted: %+v", r.Entry)
	}
	if r.Status["wifi_ssid"] != Redacted {
		t.Errorf("wifi_ssid = %v, want redacted", r.Status["wifi_ssid"])
	}
	nested, _ := r.Status["wifi"].(map[string]any)
	if nested["ip"] != Redacted || nested["channel"] != int64(6) {
		t.Errorf("nested wifi = %v", nested)
	}
	if r.Summary["pwr"] != "1" || r.Summary["pm25"] != int64(4) {
		t.Errorf("Summary = %v", r.Summary)
	}
	if _, ok := r.Summary["rssi"]; ok {
		t.Error("Summary includes rssi")
	}
	if r.Signal == nil || r.Signal.Quality != "good" {
		t.Errorf("Signal = %+v, want good", r.Signal)
	}
	if len(r.Filters) != 3 || r.Filters[0].Percent != 50 {
		t.Errorf("Filters = %+v", r.Filters)
	}
	if !r.Capability.Known || r.Capability.Model != "AC2729" {
		t.Errorf("Capability = %+v", r.Capability)
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, secret := range []string{"aa:bb:cc", "192.168.1.40", "home-net"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("report JSON leaks %q", secret)
		}
	}
}

func TestBuild_NotLoadedUsesStoredSnapshot(t *testing.T) {
	e := testEntry()
	e.MAC = ""
	e.Status = map[string]any{"pwr": "0"}

	r := Build(e, nil, "", time.Now())

	if r.Loaded || r.Coordinator != nil {
		t.Errorf("Loaded = %v, Coordinator = %v; want not loaded", r.Loaded, r.Coordinator)
	}
	if r.Entry.MAC != "" {
		t.Errorf("empty MAC rendered as %q", r.Entry.MAC)
	}
	if !r.Entry.SnapshotStored || r.Summary["pwr"] != "0" {
		t.Errorf("stored snapshot not reported: %+v", r)
	}
	if r.Signal != nil {
		t.Errorf("Signal = %+v without rssi", r.Signal)
	}
}

func TestSignalQuality(t *testing.T) {
	tests := []struct {
		rssi int64
		want string
	}{
		{-40, "excellent"},
		{-50, "excellent"},
		{-51, "good"},
		{-60, "good"},
		{-65, "fair"},
		{-70, "fair"},
		{-71, "poor"},
	}
	for _, tt := range tests {
		if got := SignalQuality(tt.rssi); got != tt.want {
			t.Errorf("SignalQuality(%d) = %q, want %q", tt.rssi, got, tt.want)
		}
	}
}

func TestRedact_Nil(t *testing.T) {
	if Redact(nil) != nil {
		t.Error("Redact(nil) != nil")
	}
}
