package node

// Recorders fans an event out to several recorders in order.
type Recorders []EventRecorder

// RecordEvent forwards to every non-nil recorder.
func (rs Recorders) RecordEvent(component, event string, fields map[string]any) {
	for _, r := range rs {
		if r != nil {
			r.RecordEvent(component, event, fields)
		}
	}
}
