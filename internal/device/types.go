package device

import "time"

// Device is a configured purifier entry as persisted in the entries table.
//
// Status holds the last known status snapshot. It is written on first
// setup and refreshed by the orchestrator's persisting listener so a
// restart can seed the coordinator before the device answers.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Connection
	Host  string `json:"host"`
	Model string `json:"model,omitempty"`
	MAC   string `json:"mac,omitempty"`

	// Last persisted snapshot
	Status          map[string]any `json:"status,omitempty"`
	StatusUpdatedAt *time.Time     `json:"status_updated_at,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSnapshot reports whether a status snapshot has been persisted.
func (d *Device) HasSnapshot() bool {
	return d != nil && len(d.Status) > 0
}

// DeepCopy creates a complete independent copy of the Device.
// The status map is cloned recursively so cached entries cannot be
// mutated through a returned copy.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Status = deepCopyMap(d.Status)

	if d.StatusUpdatedAt != nil {
		t := *d.StatusUpdatedAt
		cpy.StatusUpdatedAt = &t
	}

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
