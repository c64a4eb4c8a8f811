package coordinator

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector(t *testing.T) {
	link := newMockLink()
	c := startedCoordinator(t, link, nil, fastOptions())
	link.deltas <- Status{"pm25": int64(9), "mode": "P"}

	waitFor(t, "pm25 merged", func() bool {
		_, ok := c.Value("pm25")
		return ok
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(func() []*Coordinator { return []*Coordinator{c, nil} }))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				if l.GetName() == "device" && l.GetValue() != "test-purifier" {
					t.Errorf("%s device label = %q", key, l.GetValue())
				}
				if l.GetName() != "device" {
					key += "/" + l.GetValue()
				}
			}
			switch {
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			}
		}
	}

	tests := []struct {
		key  string
		want float64
	}{
		{"purifier_connected", 1},
		{"purifier_available", 1},
		{"purifier_coordinator_state/observing", 1},
		{"purifier_coordinator_state/reconnecting", 0},
		{"purifier_status_value/pm25", 9},
		{"purifier_status_keys", 3},
	}
	for _, tt := range tests {
		got, ok := values[tt.key]
		if !ok {
			t.Errorf("%s not exported", tt.key)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %v, want %v", tt.key, got, tt.want)
		}
	}
	if values["purifier_deltas_total"] < 1 {
		t.Errorf("purifier_deltas_total = %v, want >= 1", values["purifier_deltas_total"])
	}
	if _, ok := values["purifier_status_value/mode"]; ok {
		t.Error("non-numeric key exported as a gauge")
	}
	if _, ok := values["purifier_last_update_timestamp_seconds"]; !ok {
		t.Error("last update not exported")
	}
}
