package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus int32

// Possible task status values. A task moves strictly forward through them.
const (
	TaskStatusQueued TaskStatus = iota
	TaskStatusRunning
	TaskStatusDone
)

// String returns the lower-case name of the status
func (s TaskStatus) String() string {
	switch s {
	case TaskStatusQueued:
		return "queued"
	case TaskStatusRunning:
		return "running"
	case TaskStatusDone:
		return "done"
	default:
		return "unknown"
	}
}

// Work is a unit of work executed by the pool.
//
// Any arguments the work needs are captured by the closure. The context passed
// in is owned by the pool: it is cancelled when the pool is stopped without
// draining, and submissions made with it are treated as nested submissions.
type Work func(ctx context.Context) error

// Task is a unit of work bound to a tag at submission time
type Task struct {
	// ID identifies the task in logs and lifecycle events only
	ID uuid.UUID

	// Tag groups the task for progress accounting
	Tag string

	// SubmittedAt is the time the task entered the pending queue
	SubmittedAt time.Time

	work   Work
	status atomic.Int32

	// announced is closed once Submit has published the submitted event
	announced chan struct{}

	eventMu     sync.Mutex
	sentSubmit  bool
	discardLate bool
}

func newTask(tag string, work Work) *Task {
	return &Task{
		ID:          uuid.New(),
		Tag:         tag,
		SubmittedAt: time.Now(),
		work:        work,
		announced:   make(chan struct{}),
	}
}

// Status returns the current task status
func (t *Task) Status() TaskStatus {
	return TaskStatus(t.status.Load())
}

func (t *Task) setStatus(s TaskStatus) {
	t.status.Store(int32(s))
}

// markAnnounced records that the submitted event went out. It reports
// whether the task was discarded meanwhile, in which case the caller
// publishes the discarded event.
func (t *Task) markAnnounced() bool {
	t.eventMu.Lock()
	defer t.eventMu.Unlock()
	t.sentSubmit = true
	close(t.announced)
	return t.discardLate
}

// deferDiscard reports whether the discarded event has to wait for the
// submitter to publish the submitted event first.
func (t *Task) deferDiscard() bool {
	t.eventMu.Lock()
	defer t.eventMu.Unlock()
	if t.sentSubmit {
		return false
	}
	t.discardLate = true
	return true
}
