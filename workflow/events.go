// ABOUTME: Lifecycle events emitted by the workflow executor during a run.
// ABOUTME: Callers observe progress through an optional EventHandler callback.
package workflow

import (
	"time"
)

// EventType identifies the kind of executor lifecycle event.
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventRunCompleted  EventType = "run.completed"
	EventRunFailed     EventType = "run.failed"
	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
)

// Event is a lifecycle event emitted during graph execution.
type Event struct {
	Type      EventType
	Step      string
	Data      map[string]any
	Timestamp time.Time
}

// EventHandler receives executor lifecycle events. Handlers must be fast;
// they run inline on the execution goroutine.
type EventHandler func(Event)
