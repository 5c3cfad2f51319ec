package task

import (
	"fmt"
	"strings"
)

// DequeueOrder selects which pending task the dispatcher starts next
type DequeueOrder int

const (
	// OrderFIFO starts the oldest pending task first.
	OrderFIFO DequeueOrder = iota

	// OrderLIFO starts the most recently submitted task first.
	OrderLIFO
)

// String returns the configuration name of the order
func (o DequeueOrder) String() string {
	switch o {
	case OrderFIFO:
		return "fifo"
	case OrderLIFO:
		return "lifo"
	default:
		return fmt.Sprintf("DequeueOrder(%d)", int(o))
	}
}

// ParseDequeueOrder converts a configuration value ("fifo" or "lifo") into a
// DequeueOrder. The empty string selects OrderFIFO.
func ParseDequeueOrder(s string) (DequeueOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo":
		return OrderFIFO, nil
	case "lifo":
		return OrderLIFO, nil
	default:
		return OrderFIFO, fmt.Errorf("%w: %q", ErrInvalidOrder, s)
	}
}

// pendingQueue holds tasks that were submitted but not dispatched yet.
// It is not safe for concurrent use; the pool guards it with its mutex.
type pendingQueue struct {
	order DequeueOrder
	items []*Task
	head  int
}

func newPendingQueue(order DequeueOrder) *pendingQueue {
	return &pendingQueue{order: order}
}

// Len returns the number of pending tasks
func (q *pendingQueue) Len() int {
	return len(q.items) - q.head
}

// Push appends a task to the queue
func (q *pendingQueue) Push(t *Task) {
	q.items = append(q.items, t)
}

// Pop removes the next task according to the queue order.
// It returns nil when the queue is empty.
func (q *pendingQueue) Pop() *Task {
	if q.Len() == 0 {
		return nil
	}

	var t *Task
	if q.order == OrderLIFO {
		last := len(q.items) - 1
		t = q.items[last]
		q.items[last] = nil
		q.items = q.items[:last]
	} else {
		t = q.items[q.head]
		q.items[q.head] = nil
		q.head++
	}

	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 32 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	return t
}

// DrainAll removes and returns every pending task in dequeue order
func (q *pendingQueue) DrainAll() []*Task {
	drained := make([]*Task, 0, q.Len())
	for q.Len() > 0 {
		drained = append(drained, q.Pop())
	}
	return drained
}
