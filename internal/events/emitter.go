package events

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Subscription selects the events delivered to a handler.
// The zero value matches every event.
type Subscription struct {
	// TagPrefix restricts delivery to tasks whose tag starts with it
	TagPrefix string

	// Kinds restricts delivery to the listed lifecycle steps; empty means all
	Kinds []TaskEventKind
}

// Matches reports whether event is selected by s
func (s Subscription) Matches(event *TaskEvent) bool {
	if !strings.HasPrefix(event.Tag, s.TagPrefix) {
		return false
	}
	return len(s.Kinds) == 0 || slices.Contains(s.Kinds, event.Kind)
}

type subscriber struct {
	sub     Subscription
	handler EventHandler
}

// InMemoryEventEmitter dispatches events synchronously to the handlers whose
// subscription matches, in registration order.
type InMemoryEventEmitter struct {
	subscribers []subscriber
	mu          sync.RWMutex
	logger      *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler subscribes handler to every event.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.Subscribe(Subscription{}, handler)
}

// Subscribe registers handler for the events matched by sub.
func (e *InMemoryEventEmitter) Subscribe(sub Subscription, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, subscriber{sub: sub, handler: handler})
	e.logger.Debug("registered event handler",
		"handler_count", len(e.subscribers),
		"tag_prefix", sub.TagPrefix)
}

// EmitEvent delivers event to every matching handler. A failing handler does
// not stop delivery to the others; all failures are joined in the result.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	e.mu.RLock()
	subscribers := e.subscribers
	e.mu.RUnlock()

	var errs []error
	for i, s := range subscribers {
		if !s.sub.Matches(event) {
			continue
		}
		if err := s.handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_kind", event.Kind,
				"task_id", event.TaskID,
				"task_tag", event.Tag)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)
