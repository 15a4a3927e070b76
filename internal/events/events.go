// Package events carries run and stage lifecycle notifications from the
// workflow engine to observers such as the logger and the terminal UI.
package events

import (
	"context"
	"time"
)

const (
	// RunStarted is emitted once the input has been validated.
	RunStarted = "run.started"
	// RunCompleted is emitted when the run reaches END.
	RunCompleted = "run.completed"
	// RunFailed is emitted when a stage fails terminally.
	RunFailed = "run.failed"
	// StageStarted is emitted before a stage function is invoked.
	StageStarted = "stage.started"
	// StageCompleted is emitted after the stage output has been applied.
	StageCompleted = "stage.completed"
	// StageFailed is emitted when a stage gives up.
	StageFailed = "stage.failed"
	// StageRetrying is emitted before a backoff sleep inside a stage.
	StageRetrying = "stage.retrying"

	// All subscribes a handler to every event type.
	All = "*"
)

// Event is a single lifecycle notification.
type Event struct {
	Type     string
	RunID    string
	Stage    string
	Attempt  int
	Duration time.Duration
	Err      error
	Time     time.Time
}

// Fields renders the event payload as key/value pairs for structured logging.
func (e Event) Fields() []any {
	fields := []any{"event_type", e.Type}
	if e.RunID != "" {
		fields = append(fields, "run_id", e.RunID)
	}
	if e.Stage != "" {
		fields = append(fields, "stage", e.Stage)
	}
	if e.Attempt > 0 {
		fields = append(fields, "attempt", e.Attempt)
	}
	if e.Duration > 0 {
		fields = append(fields, "duration", e.Duration)
	}
	return fields
}

// Publisher distributes events to interested subscribers. Dispatch is
// synchronous: Publish returns after every handler ran. Implementations must
// be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Handler processes an event. Failures are logged by the publisher and do
// not stop delivery to other handlers.
type Handler func(context.Context, Event) error

// Subscription represents a registered handler.
type Subscription interface {
	Unsubscribe()
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
