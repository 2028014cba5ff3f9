package domain

import "time"

// EventType classifies run lifecycle events.
type EventType string

const (
	EventTypeRunSubmitted EventType = "run.submitted"
	EventTypeRunQueued    EventType = "run.queued"
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunCompleted EventType = "run.completed"
	EventTypeRunFailed    EventType = "run.failed"
	EventTypeRunCancelled EventType = "run.cancelled"
	EventTypeJobChanged   EventType = "job.changed"
)

// Topics used on the event bus.
const (
	TopicRunEvents = "run.events"
	TopicJobEvents = "job.events"
)

// Event is a run lifecycle notification.
type Event struct {
	ID         string                 `json:"id"`
	Type       EventType              `json:"type"`
	RunID      string                 `json:"run_id"`
	InstanceID InstanceID             `json:"instance_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data,omitempty"`
}
