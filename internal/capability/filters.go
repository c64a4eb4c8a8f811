package capability

import (
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
)

// FilterLife is the remaining life of one filter as reported by the device.
type FilterLife struct {
	Name      string  `json:"name"`
	Remaining int64   `json:"remaining"`
	Total     int64   `json:"total"`
	Percent   float64 `json:"percent"`
	// Known is false when the device has not reported both values yet.
	Known bool `json:"known"`
}

// FilterLife returns one entry per model filter, in table order.
func (m Model) FilterLife(status coordinator.Status) []FilterLife {
	out := make([]FilterLife, 0, len(m.Filters))
	for _, f := range m.Filters {
		fl := FilterLife{Name: f.Name}
		remaining, okR := Int64(status[f.StatusKey])
		total, okT := Int64(status[f.TotalKey])
		if okR && okT && total > 0 {
			fl.Remaining = remaining
			fl.Total = total
			fl.Percent = float64(remaining) * 100 / float64(total)
			fl.Known = true
		}
		out = append(out, fl)
	}
	return out
}

// Int64 converts a status value to int64. Decoded status numbers are int64
// or float64, and some firmware reports counters as decimal strings.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
