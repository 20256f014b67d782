package influxdb

import (
	"fmt"
	"testing"
	"time"
)

func TestEventPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := eventPoint("greenhouse-01", "session", "connect_failed", map[string]any{
		"return_code": 5,
		"server":      "broker.local",
		"closed":      false,
		"skipped":     []string{"not", "a", "field"},
	}, ts)

	if p.Name() != eventMeasurement {
		t.Errorf("Name() = %q, want %q", p.Name(), eventMeasurement)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	wantTags := map[string]string{"device": "greenhouse-01", "component": "session", "event": "connect_failed"}
	for k, v := range wantTags {
		if tags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, tags[k], v)
		}
	}

	fields := map[string]string{}
	for _, f := range p.FieldList() {
		fields[f.Key] = fmt.Sprint(f.Value)
	}
	wantFields := map[string]string{"count": "1", "return_code": "5", "server": "broker.local", "closed": "false"}
	if len(fields) != len(wantFields) {
		t.Errorf("fields = %v, want %v", fields, wantFields)
	}
	for k, v := range wantFields {
		if fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, fields[k], v)
		}
	}
}
