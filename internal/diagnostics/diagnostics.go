// Package diagnostics assembles a support snapshot for one purifier entry.
//
// Identifying values (MAC address, network host, Wi-Fi details) are
// redacted so the report can be shared.
package diagnostics

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/capability"
	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
	"github.com/nerrad567/gray-logic-purifier/internal/device"
)

// Redacted replaces sensitive values.
const Redacted = "**REDACTED**"

// sensitiveKeys are redacted wherever they appear in a report.
var sensitiveKeys = map[string]struct{}{
	"mac":         {},
	"host":        {},
	"ip":          {},
	"ssid":        {},
	"wifi_ssid":   {},
	"wifi_pass":   {},
	"password":    {},
	"token":       {},
	"serial":      {},
	"device_id":   {},
	"deviceid":    {},
	"wifiversion": {},
}

// summaryKeys are surfaced in DeviceSummary when the device reports them.
var summaryKeys = []string{
	"pwr", "mode", "om", "pm25", "iaql", "gas", "temp", "rh", "cl", "uil", "ddp", "err",
	"D03-02", "D03-12", "D03-05",
}

// Source is the coordinator surface a report reads.
type Source interface {
	CurrentStatus() coordinator.Status
	Stats() coordinator.Stats
}

// Entry is the redacted identity of an entry.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Host      string    `json:"host"`
	MAC       string    `json:"mac"`
	CreatedAt time.Time `json:"created_at"`

	SnapshotStored    bool       `json:"snapshot_stored"`
	SnapshotUpdatedAt *time.Time `json:"snapshot_updated_at,omitempty"`
}

// Coordinator is the introspection block of a report.
type Coordinator struct {
	State             string     `json:"state"`
	Connected         bool       `json:"connected"`
	Available         bool       `json:"available"`
	TaskAlive         bool       `json:"task_alive"`
	Reconnecting      bool       `json:"reconnecting"`
	StalenessArmed    bool       `json:"staleness_armed"`
	Listeners         int        `json:"listeners"`
	Keys              int        `json:"keys"`
	DeltasTotal       uint64     `json:"deltas_total"`
	WritesTotal       uint64     `json:"writes_total"`
	WriteErrorsTotal  uint64     `json:"write_errors_total"`
	LinkErrorsTotal   uint64     `json:"link_errors_total"`
	ReconnectAttempts uint64     `json:"reconnect_attempts"`
	ReconnectsTotal   uint64     `json:"reconnects_total"`
	StaleTotal        uint64     `json:"stale_total"`
	LastUpdate        *time.Time `json:"last_update,omitempty"`
	BreakerState      string     `json:"breaker_state,omitempty"`
}

// Signal describes Wi-Fi reception when the device reports rssi.
type Signal struct {
	RSSI    int64  `json:"rssi"`
	Quality string `json:"quality"`
}

// Capability summarises the model record in use.
type Capability struct {
	Model      string   `json:"model"`
	Known      bool     `json:"known"`
	Presets    []string `json:"presets"`
	Speeds     []string `json:"speeds"`
	Humidifier bool     `json:"humidifier"`
}

// Report is a full diagnostics snapshot.
type Report struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Entry       Entry                   `json:"entry"`
	Loaded      bool                    `json:"loaded"`
	Coordinator *Coordinator            `json:"coordinator,omitempty"`
	Capability  Capability              `json:"capability"`
	Summary     map[string]any          `json:"summary,omitempty"`
	Filters     []capability.FilterLife `json:"filters,omitempty"`
	Signal      *Signal                 `json:"signal,omitempty"`
	Status      map[string]any          `json:"status,omitempty"`
}

// Build assembles a report. src may be nil when the entry is not loaded;
// the stored snapshot is reported instead.
func Build(entry *device.Device, src Source, breakerState string, now time.Time) Report {
	model := capability.Lookup(entry.Model)

	r := Report{
		GeneratedAt: now.UTC(),
		Entry: Entry{
			ID:                entry.ID,
			Name:              entry.Name,
			Model:             entry.Model,
			Host:              redactString(entry.Host),
			MAC:               redactString(entry.MAC),
			CreatedAt:         entry.CreatedAt,
			SnapshotStored:    entry.HasSnapshot(),
			SnapshotUpdatedAt: entry.StatusUpdatedAt,
		},
		Capability: Capability{
			Model:      model.Name,
			Known:      capability.Known(entry.Model),
			Presets:    model.PresetNames(),
			Speeds:     model.SpeedNames(),
			Humidifier: model.Humidifier,
		},
	}

	var status coordinator.Status
	if src != nil {
		r.Loaded = true
		r.Coordinator = coordinatorBlock(src.Stats(), breakerState)
		status = src.CurrentStatus()
	} else {
		status = coordinator.Status(entry.Status)
	}

	if len(status) == 0 {
		return r
	}
	r.Status = Redact(status)
	r.Summary = summary(status)
	r.Filters = model.FilterLife(status)
	if rssi, ok := capability.Int64(status["rssi"]); ok {
		r.Signal = &Signal{RSSI: rssi, Quality: SignalQuality(rssi)}
	}
	return r
}

func coordinatorBlock(s coordinator.Stats, breakerState string) *Coordinator {
	c := &Coordinator{
		State:             s.State.String(),
		Connected:         s.Connected,
		Available:         s.Available,
		TaskAlive:         s.TaskAlive,
		Reconnecting:      s.Reconnecting,
		StalenessArmed:    s.StalenessArmed,
		Listeners:         s.Listeners,
		Keys:              s.Keys,
		DeltasTotal:       s.DeltasTotal,
		WritesTotal:       s.WritesTotal,
		WriteErrorsTotal:  s.WriteErrorsTotal,
		LinkErrorsTotal:   s.LinkErrorsTotal,
		ReconnectAttempts: s.ReconnectAttempts,
		ReconnectsTotal:   s.ReconnectsTotal,
		StaleTotal:        s.StaleTotal,
		BreakerState:      breakerState,
	}
	if !s.LastUpdate.IsZero() {
		t := s.LastUpdate.UTC()
		c.LastUpdate = &t
	}
	return c
}

func summary(status coordinator.Status) map[string]any {
	out := make(map[string]any)
	for _, k := range summaryKeys {
		if v, ok := status[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Redact returns a deep copy of m with sensitive keys masked.
func Redact(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = redactValue(v)
			continue
		}
		out[k] = redactNested(v)
	}
	return out
}

func redactNested(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Redact(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactNested(item)
		}
		return out
	default:
		return v
	}
}

// redactValue masks non-empty values and leaves empty ones visible so a
// missing field is still obvious.
func redactValue(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && s == "" {
		return ""
	}
	return Redacted
}

func redactString(s string) string {
	if s == "" {
		return ""
	}
	return Redacted
}

// SignalQuality buckets an RSSI reading in dBm.
func SignalQuality(rssi int64) string {
	switch {
	case rssi >= -50:
		return "excellent"
	case rssi >= -60:
		return "good"
	case rssi >= -70:
		return "fair"
	default:
		return "poor"
	}
}
