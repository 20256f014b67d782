// Package influxdb exports connection lifecycle telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each association,
// connect, connect failure and forced disconnect becomes a point in the
// connection_events measurement, tagged with device, component and event,
// so reconnect storms and broker outages are visible across a fleet.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.Name)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordEvent("session", "connected", nil)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// RecordEvent never blocks: points are batched by the non-blocking write
// API and write errors are delivered to the SetOnError callback.
package influxdb
