package task

import "errors"

// Common errors returned by the Pool
var (
	// ErrPoolClosed is returned when work is submitted after Stop was called.
	ErrPoolClosed = errors.New("task pool is closed")

	// ErrNilWork is returned when Submit is called without a work function.
	ErrNilWork = errors.New("work must not be nil")

	// ErrTaskPanicked wraps the recovered value of a task that panicked.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrDrainAborted is returned by a draining Stop when the pool was stopped
	// without draining before the work finished.
	ErrDrainAborted = errors.New("task pool stopped before draining finished")

	// ErrInvalidOrder is returned when a dequeue order name is not recognised.
	ErrInvalidOrder = errors.New("invalid dequeue order")
)
