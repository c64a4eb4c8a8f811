// Package influxdb writes purifier telemetry to InfluxDB v2.
//
// Two measurements are written: air_quality carries the numeric sensor
// readings a device reports, and purifier_health carries the periodic
// liveness and filter-life record produced by the health reporter.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAirQuality("bedroom", "AC2729", status)
//
// Writes are batched according to batch_size and flush_interval and are
// delivered asynchronously; failures reach the SetOnError callback.
package influxdb
