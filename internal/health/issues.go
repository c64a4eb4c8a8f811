package health

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/capability"
	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
)

// Severity grades an issue.
type Severity string

// Issue severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue kinds.
const (
	IssueConnectivity      = "connectivity"
	IssueFilterReplacement = "filter_replacement"
)

// DefaultFilterWarningPercent raises a filter issue at or below this
// remaining life.
const DefaultFilterWarningPercent = 15

// Issue is an open problem on an entry.
type Issue struct {
	Kind     string         `json:"kind"`
	EntryID  string         `json:"entry_id"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Detail   map[string]any `json:"detail,omitempty"`
	// Since is when the issue was first raised; it is kept while the
	// issue stays open.
	Since time.Time `json:"since"`
}

// Probe is the coordinator surface the checks read.
type Probe interface {
	State() coordinator.State
	IsConnected() bool
	IsAvailable() bool
	CurrentStatus() coordinator.Status
}

// Target is one entry to check. Probe is nil when the entry is not loaded.
type Target struct {
	EntryID string
	Name    string
	Model   string
	Probe   Probe
}

// Evaluate runs the checks for one target. Since is left zero.
func Evaluate(t Target, filterWarnPercent int) []Issue {
	if t.Probe == nil {
		return []Issue{{
			Kind:     IssueConnectivity,
			EntryID:  t.EntryID,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s is not loaded", displayName(t)),
		}}
	}

	var issues []Issue
	if !t.Probe.IsAvailable() {
		issues = append(issues, Issue{
			Kind:     IssueConnectivity,
			EntryID:  t.EntryID,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s is unavailable", displayName(t)),
			Detail: map[string]any{
				"state":     t.Probe.State().String(),
				"connected": t.Probe.IsConnected(),
			},
		})
	}

	var worn []map[string]any
	for _, fl := range capability.Lookup(t.Model).FilterLife(t.Probe.CurrentStatus()) {
		if fl.Known && fl.Percent <= float64(filterWarnPercent) {
			worn = append(worn, map[string]any{"name": fl.Name, "percent": roundPercent(fl.Percent)})
		}
	}
	if len(worn) > 0 {
		issues = append(issues, Issue{
			Kind:     IssueFilterReplacement,
			EntryID:  t.EntryID,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%s needs %d filter(s) replaced", displayName(t), len(worn)),
			Detail:   map[string]any{"filters": worn, "threshold_percent": filterWarnPercent},
		})
	}
	return issues
}

func displayName(t Target) string {
	if t.Name != "" {
		return t.Name
	}
	return t.EntryID
}

func roundPercent(p float64) float64 {
	return float64(int64(p*10+0.5)) / 10
}
