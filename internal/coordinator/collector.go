package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "purifier"

// gaugeKeys are numeric status keys exported as purifier_status_value.
var gaugeKeys = []string{"pm25", "iaql", "gas", "tvoc", "rh", "temp", "rssi"}

// Collector exports every coordinator returned by list as Prometheus
// metrics, labelled by coordinator name. Values are read at scrape time.
type Collector struct {
	list func() []*Coordinator

	state          *prometheus.Desc
	connected      *prometheus.Desc
	available      *prometheus.Desc
	listeners      *prometheus.Desc
	keys           *prometheus.Desc
	lastUpdate     *prometheus.Desc
	deltas         *prometheus.Desc
	writes         *prometheus.Desc
	writeErrors    *prometheus.Desc
	linkErrors     *prometheus.Desc
	reconnectTries *prometheus.Desc
	reconnects     *prometheus.Desc
	stale          *prometheus.Desc
	statusValue    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a Collector over the coordinators list returns.
func NewCollector(list func() []*Coordinator) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", name), help,
			append([]string{"device"}, labels...), nil)
	}
	return &Collector{
		list:           list,
		state:          desc("coordinator_state", "1 for the coordinator's current lifecycle state.", "state"),
		connected:      desc("connected", "Whether a device session is open."),
		available:      desc("available", "Whether the device is considered available."),
		listeners:      desc("listeners", "Registered status listeners."),
		keys:           desc("status_keys", "Keys in the cached status."),
		lastUpdate:     desc("last_update_timestamp_seconds", "Unix time of the last merged delta."),
		deltas:         desc("deltas_total", "Status deltas merged."),
		writes:         desc("writes_total", "Control writes sent to the device."),
		writeErrors:    desc("write_errors_total", "Control writes that failed."),
		linkErrors:     desc("link_errors_total", "Receive errors that ended a session."),
		reconnectTries: desc("reconnect_attempts_total", "Reconnect attempts."),
		reconnects:     desc("reconnects_total", "Successful reconnects."),
		stale:          desc("stale_total", "Times the device went unavailable through silence."),
		statusValue:    desc("status_value", "Numeric sensor readings from the cached status.", "key"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.state, c.connected, c.available, c.listeners, c.keys, c.lastUpdate,
		c.deltas, c.writes, c.writeErrors, c.linkErrors, c.reconnectTries,
		c.reconnects, c.stale, c.statusValue,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, co := range c.list() {
		if co == nil {
			continue
		}
		name := co.Name()
		s := co.Stats()

		for st := StateInit; st <= StateShutdown; st++ {
			ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, boolValue(s.State == st), name, st.String())
		}
		ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolValue(s.Connected), name)
		ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, boolValue(s.Available), name)
		ch <- prometheus.MustNewConstMetric(c.listeners, prometheus.GaugeValue, float64(s.Listeners), name)
		ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(s.Keys), name)
		if !s.LastUpdate.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastUpdate, prometheus.GaugeValue, float64(s.LastUpdate.UnixNano())/1e9, name)
		}

		counters := []struct {
			desc *prometheus.Desc
			v    uint64
		}{
			{c.deltas, s.DeltasTotal},
			{c.writes, s.WritesTotal},
			{c.writeErrors, s.WriteErrorsTotal},
			{c.linkErrors, s.LinkErrorsTotal},
			{c.reconnectTries, s.ReconnectAttempts},
			{c.reconnects, s.ReconnectsTotal},
			{c.stale, s.StaleTotal},
		}
		for _, ctr := range counters {
			ch <- prometheus.MustNewConstMetric(ctr.desc, prometheus.CounterValue, float64(ctr.v), name)
		}

		status := co.CurrentStatus()
		for _, k := range gaugeKeys {
			if f, ok := numericValue(status[k]); ok {
				ch <- prometheus.MustNewConstMetric(c.statusValue, prometheus.GaugeValue, f, name, k)
			}
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
