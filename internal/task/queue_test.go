package task

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noopWork(ctx context.Context) error { return nil }

func queueTags(tasks []*Task) []string {
	tags := make([]string, 0, len(tasks))
	for _, t := range tasks {
		tags = append(tags, t.Tag)
	}
	return tags
}

func TestParseDequeueOrder(t *testing.T) {
	testCases := []struct {
		input    string
		expected DequeueOrder
		wantErr  bool
	}{
		{"", OrderFIFO, false},
		{"fifo", OrderFIFO, false},
		{"FIFO", OrderFIFO, false},
		{" lifo ", OrderLIFO, false},
		{"random", OrderFIFO, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			order, err := ParseDequeueOrder(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, order)
		})
	}

	assert.Equal(t, "fifo", OrderFIFO.String())
	assert.Equal(t, "lifo", OrderLIFO.String())
}

func TestPendingQueue_FIFO(t *testing.T) {
	q := newPendingQueue(OrderFIFO)
	assert.Nil(t, q.Pop())

	for _, tag := range []string{"a", "b", "c"} {
		q.Push(newTask(tag, noopWork))
	}
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, "a", q.Pop().Tag)
	q.Push(newTask("d", noopWork))
	assert.Equal(t, []string{"b", "c", "d"}, queueTags(q.DrainAll()))
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Pop())
}

func TestPendingQueue_LIFO(t *testing.T) {
	q := newPendingQueue(OrderLIFO)

	for _, tag := range []string{"a", "b", "c"} {
		q.Push(newTask(tag, noopWork))
	}

	assert.Equal(t, "c", q.Pop().Tag)
	q.Push(newTask("d", noopWork))
	assert.Equal(t, []string{"d", "b", "a"}, queueTags(q.DrainAll()))
}

func TestPendingQueue_CompactsConsumedPrefix(t *testing.T) {
	q := newPendingQueue(OrderFIFO)

	for i := 0; i < 200; i++ {
		q.Push(newTask("t", noopWork))
		if i%2 == 1 {
			q.Pop()
		}
	}

	assert.Equal(t, 100, q.Len())
	assert.LessOrEqual(t, len(q.items), 200)
	assert.Len(t, q.DrainAll(), 100)
}

func TestTagCounters(t *testing.T) {
	c := newTagCounters()

	assert.Equal(t, 0, c.get("unknown"))
	select {
	case <-c.waitCh("unknown"):
	default:
		t.Fatal("wait channel of an unknown tag should be closed")
	}

	c.inc("x")
	c.inc("x")
	assert.Equal(t, 2, c.get("x"))
	assert.Equal(t, 1, c.tags())

	ch := c.waitCh("x")
	c.dec("x")
	select {
	case <-ch:
		t.Fatal("wait channel closed before tag drained")
	default:
	}

	c.dec("x")
	select {
	case <-ch:
	default:
		t.Fatal("wait channel not closed after tag drained")
	}
	assert.Equal(t, 0, c.get("x"))
	assert.Equal(t, 0, c.tags())

	// Decrementing an unknown tag never goes negative
	c.dec("x")
	assert.Equal(t, 0, c.get("x"))
}
