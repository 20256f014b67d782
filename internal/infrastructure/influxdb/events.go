package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// eventMeasurement is the measurement name for lifecycle events.
const eventMeasurement = "connection_events"

// RecordEvent writes one lifecycle event (association, connect, failure,
// forced disconnect) as a point. The write is non-blocking and batched.
//
// Numeric, boolean and string values of fields become point fields; other
// types are skipped. A "count" field of 1 is always present so events can
// be summed per window.
//
// Example:
//
//	client.RecordEvent("session", "connect_failed", map[string]any{"return_code": 5})
func (c *Client) RecordEvent(component, event string, fields map[string]any) {
	if !c.open.Load() {
		return
	}
	c.writeAPI.WritePoint(eventPoint(c.device, component, event, fields, time.Now()))
	c.written.Add(1)
}

// eventPoint builds the point for RecordEvent.
func eventPoint(device, component, event string, fields map[string]any, ts time.Time) *write.Point {
	values := map[string]interface{}{"count": 1}
	for k, v := range fields {
		switch v.(type) {
		case int, int32, int64, uint, uint32, uint64, float32, float64, bool, string:
			values[k] = v
		}
	}

	return write.NewPoint(
		eventMeasurement,
		map[string]string{
			"device":    device,
			"component": component,
			"event":     event,
		},
		values,
		ts,
	)
}
