package audit

import (
	"context"
	"sync/atomic"
	"time"
)

// defaultQueueSize is the number of events buffered ahead of the writer.
const defaultQueueSize = 128

// writeTimeout bounds a single insert.
const writeTimeout = 2 * time.Second

// Logger is the logging surface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder accepts events from the control goroutine without blocking and
// writes them to the repository from its own goroutine. Events arriving
// while the queue is full are dropped and counted.
type Recorder struct {
	repo    Repository
	queue   chan Event
	dropped atomic.Uint64
	logger  Logger
}

// NewRecorder creates a Recorder over repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		queue:  make(chan Event, defaultQueueSize),
		logger: logger,
	}
}

// RecordEvent enqueues an event. It never blocks.
func (r *Recorder) RecordEvent(component, event string, fields map[string]any) {
	ev := Event{
		Component:  component,
		Event:      event,
		Details:    fields,
		OccurredAt: time.Now().UTC(),
	}
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded on a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run writes queued events until ctx is cancelled, then drains what is
// already queued.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case ev := <-r.queue:
			r.write(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.queue:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, &ev); err != nil && r.logger != nil {
		r.logger.Warn("event not recorded", "component", ev.Component, "event", ev.Event, "error", err)
	}
}
