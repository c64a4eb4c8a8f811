// Package health runs periodic checks over the loaded purifier entries.
//
// Each round evaluates every entry, keeps the set of open issues
// (connectivity loss, worn filters), publishes a retained health message
// and issue list per entry over MQTT, and writes a health point to
// InfluxDB.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/capability"
	"github.com/nerrad567/gray-logic-purifier/internal/infrastructure/mqtt"
)

// Health statuses published per entry.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusOffline  = "offline"
	StatusStopping = "stopping"
)

// Default timings.
const (
	DefaultInitialDelay = 10 * time.Second
	DefaultInterval     = 5 * time.Minute
)

// Logger defines the logging interface used by the Reporter.
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

// Source lists the entries to check.
type Source interface {
	HealthTargets() []Target
}

// Publisher sends retained health messages. Typically the MQTT client.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	IsConnected() bool
}

// PointWriter records health and air quality points. Typically the
// InfluxDB client.
type PointWriter interface {
	WriteHealth(entryID, model string, fields map[string]any, ts time.Time)
	WriteAirQuality(entryID, model string, status map[string]any)
}

// Message is the retained per-entry health payload.
type Message struct {
	EntryID   string                  `json:"entry_id"`
	Name      string                  `json:"name"`
	Model     string                  `json:"model"`
	Status    string                  `json:"status"`
	State     string                  `json:"state,omitempty"`
	Connected bool                    `json:"connected"`
	Available bool                    `json:"available"`
	Issues    int                     `json:"issues"`
	Filters   []capability.FilterLife `json:"filters,omitempty"`
	Version   string                  `json:"version,omitempty"`
	Uptime    int64                   `json:"uptime_seconds"`
	Timestamp time.Time               `json:"timestamp"`
}

// Config configures a Reporter. Publisher and Points are optional.
type Config struct {
	InitialDelay         time.Duration
	Interval             time.Duration
	FilterWarningPercent int
	Version              string

	Source    Source
	Publisher Publisher
	Topics    mqtt.Topics
	Points    PointWriter

	// Now defaults to time.Now.
	Now func() time.Time
}

// Reporter runs the checks and holds the open issues.
type Reporter struct {
	cfg       Config
	startTime time.Time

	mu     sync.RWMutex
	issues map[string][]Issue
	last   map[string]Message

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReporter creates a Reporter. Call Start to begin checking.
func NewReporter(cfg Config) *Reporter {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FilterWarningPercent <= 0 {
		cfg.FilterWarningPercent = DefaultFilterWarningPercent
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reporter{
		cfg:       cfg,
		startTime: cfg.Now(),
		issues:    make(map[string][]Issue),
		last:      make(map[string]Message),
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for this reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Reporter) log() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// Start runs the first check after InitialDelay and then every Interval.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop ends the loop and publishes a final "stopping" status for every
// entry seen. Safe to call multiple times.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		r.mu.RLock()
		last := slices.Collect(maps.Values(r.last))
		r.mu.RUnlock()

		for _, msg := range last {
			msg.Status = StatusStopping
			msg.Timestamp = r.cfg.Now().UTC()
			if err := r.publishJSON(r.cfg.Topics.CoreHealth(msg.EntryID), msg); err != nil {
				r.log().Debug("failed to publish stopping health", "entry_id", msg.EntryID, "error", err)
			}
		}
	})
}

func (r *Reporter) loop(ctx context.Context) {
	defer r.wg.Done()

	timer := time.NewTimer(r.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-timer.C:
			r.CheckNow()
			timer.Reset(r.cfg.Interval)
		}
	}
}

// CheckNow evaluates every entry immediately and publishes the results.
func (r *Reporter) CheckNow() {
	if r.cfg.Source == nil {
		return
	}
	now := r.cfg.Now().UTC()
	targets := r.cfg.Source.HealthTargets()

	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		seen[t.EntryID] = struct{}{}
		issues := r.update(t, Evaluate(t, r.cfg.FilterWarningPercent), now)
		msg := r.message(t, issues, now)

		r.mu.Lock()
		r.last[t.EntryID] = msg
		r.mu.Unlock()

		r.publish(msg, issues)
		r.writePoints(t, msg)
	}

	// Entries that disappeared since the last round.
	r.mu.RLock()
	var gone []string
	for id := range r.last {
		if _, ok := seen[id]; !ok {
			gone = append(gone, id)
		}
	}
	r.mu.RUnlock()
	for _, id := range gone {
		r.Remove(id)
	}
}

// update stores the new issue set, keeping Since for issues still open,
// and logs transitions.
func (r *Reporter) update(t Target, fresh []Issue, now time.Time) []Issue {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := make(map[string]Issue, len(r.issues[t.EntryID]))
	for _, is := range r.issues[t.EntryID] {
		prev[is.Kind] = is
	}

	logger := r.log()
	for i := range fresh {
		if old, ok := prev[fresh[i].Kind]; ok {
			fresh[i].Since = old.Since
			delete(prev, fresh[i].Kind)
			continue
		}
		fresh[i].Since = now
		logger.Warn("issue raised", "entry_id", t.EntryID, "kind", fresh[i].Kind, "message", fresh[i].Message)
	}
	for kind := range prev {
		logger.Info("issue resolved", "entry_id", t.EntryID, "kind", kind)
	}

	if len(fresh) == 0 {
		delete(r.issues, t.EntryID)
	} else {
		r.issues[t.EntryID] = fresh
	}
	return fresh
}

func (r *Reporter) message(t Target, issues []Issue, now time.Time) Message {
	msg := Message{
		EntryID:   t.EntryID,
		Name:      t.Name,
		Model:     t.Model,
		Issues:    len(issues),
		Version:   r.cfg.Version,
		Uptime:    int64(now.Sub(r.startTime).Seconds()),
		Timestamp: now,
	}
	if t.Probe == nil {
		msg.Status = StatusOffline
		return msg
	}

	msg.State = t.Probe.State().String()
	msg.Connected = t.Probe.IsConnected()
	msg.Available = t.Probe.IsAvailable()
	for _, fl := range capability.Lookup(t.Model).FilterLife(t.Probe.CurrentStatus()) {
		if fl.Known {
			msg.Filters = append(msg.Filters, fl)
		}
	}

	switch {
	case !msg.Available:
		msg.Status = StatusOffline
	case len(issues) > 0:
		msg.Status = StatusDegraded
	default:
		msg.Status = StatusHealthy
	}
	return msg
}

func (r *Reporter) publish(msg Message, issues []Issue) {
	if r.cfg.Publisher == nil || !r.cfg.Publisher.IsConnected() {
		return
	}
	if issues == nil {
		issues = []Issue{}
	}
	if err := r.publishJSON(r.cfg.Topics.CoreHealth(msg.EntryID), msg); err != nil {
		r.log().Error("failed to publish health", "entry_id", msg.EntryID, "error", err)
	}
	if err := r.publishJSON(r.cfg.Topics.CoreIssues(msg.EntryID), issues); err != nil {
		r.log().Error("failed to publish issues", "entry_id", msg.EntryID, "error", err)
	}
}

func (r *Reporter) publishJSON(topic string, v any) error {
	if r.cfg.Publisher == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.cfg.Publisher.PublishRetained(topic, payload)
}

func (r *Reporter) writePoints(t Target, msg Message) {
	if r.cfg.Points == nil {
		return
	}
	fields := map[string]any{
		"available": msg.Available,
		"connected": msg.Connected,
		"issues":    int64(msg.Issues),
		"status":    msg.Status,
	}
	for _, fl := range msg.Filters {
		fields[fl.Name+"_percent"] = fl.Percent
	}
	r.cfg.Points.WriteHealth(t.EntryID, t.Model, fields, msg.Timestamp)

	if t.Probe != nil && msg.Available {
		r.cfg.Points.WriteAirQuality(t.EntryID, t.Model, t.Probe.CurrentStatus())
	}
}

// Issues returns the open issues for an entry.
func (r *Reporter) Issues(entryID string) []Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.issues[entryID])
}

// LastMessage returns the most recent health message for an entry.
func (r *Reporter) LastMessage(entryID string) (Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.last[entryID]
	return msg, ok
}

// Remove forgets an entry and clears its retained topics.
func (r *Reporter) Remove(entryID string) {
	r.mu.Lock()
	delete(r.issues, entryID)
	delete(r.last, entryID)
	r.mu.Unlock()

	if r.cfg.Publisher == nil || !r.cfg.Publisher.IsConnected() {
		return
	}
	// An empty retained payload clears the retained message.
	for _, topic := range []string{r.cfg.Topics.CoreHealth(entryID), r.cfg.Topics.CoreIssues(entryID)} {
		if err := r.cfg.Publisher.PublishRetained(topic, nil); err != nil {
			r.log().Warn("failed to clear retained health", "entry_id", entryID, "error", err)
		}
	}
}
