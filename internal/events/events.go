package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskEventKind identifies a step in the lifecycle of a pooled task
type TaskEventKind string

// Lifecycle steps reported by the task pool
const (
	TaskSubmitted TaskEventKind = "submitted"
	TaskStarted   TaskEventKind = "started"
	TaskCompleted TaskEventKind = "completed"
	TaskFailed    TaskEventKind = "failed"
	TaskDiscarded TaskEventKind = "discarded"
)

// Finished reports whether the kind ends a task's lifecycle
func (k TaskEventKind) Finished() bool {
	return k == TaskCompleted || k == TaskFailed || k == TaskDiscarded
}

// TaskEvent describes a lifecycle transition of a single task.
// It carries only plain values so that handlers do not depend on the
// task package.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// TaskID identifies the task the event refers to
	TaskID uuid.UUID `json:"task_id"`

	// Tag is the progress-accounting tag of the task
	Tag string `json:"tag"`

	// Kind is the lifecycle step
	Kind TaskEventKind `json:"kind"`

	// Error holds the failure message for TaskFailed events
	Error string `json:"error,omitempty"`

	// Duration is the execution time for finished tasks
	Duration time.Duration `json:"duration,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskEvent creates a new TaskEvent for the given task.
func NewTaskEvent(kind TaskEventKind, taskID uuid.UUID, tag string) *TaskEvent {
	return &TaskEvent{
		ID:        uuid.New(),
		TaskID:    taskID,
		Tag:       tag,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// HandlerFunc adapts an ordinary function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the pool to publish events without knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}
