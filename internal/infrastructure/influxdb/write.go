package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAirQuality = "air_quality"
	MeasurementHealth     = "purifier_health"
)

// airQualityKeys are the status keys recorded as air_quality fields.
var airQualityKeys = []string{"pm25", "iaql", "gas", "tvoc", "rh", "temp", "D03-33", "D03-32"}

// WriteAirQuality records the numeric sensor readings in status.
// Nothing is written when status carries none of them.
func (c *Client) WriteAirQuality(entryID, model string, status map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]any)
	for _, k := range airQualityKeys {
		if f, ok := numeric(status[k]); ok {
			fields[k] = f
		}
	}
	if len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementAirQuality,
		map[string]string{"entry_id": entryID, "model": model},
		fields,
		time.Now(),
	))
}

// WriteHealth records one health evaluation for an entry.
func (c *Client) WriteHealth(entryID, model string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementHealth,
		map[string]string{"entry_id": entryID, "model": model},
		fields,
		ts,
	))
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

func numeric(v any) (float64, bool) {
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
