package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/phrazzld/coda-batch/internal/events"
	"github.com/phrazzld/coda-batch/internal/redact"
)

// PoolConfig holds configuration options for the pool
type PoolConfig struct {
	// MaxConcurrency is the maximum number of tasks running at the same time.
	// If zero or negative, defaults to 1
	MaxConcurrency int

	// MaxAwaiting is the maximum number of tasks waiting in the pending queue
	// before Submit blocks. If zero or negative, defaults to 1
	MaxAwaiting int

	// Order selects which pending task is started next
	Order DequeueOrder
}

// DefaultPoolConfig returns a PoolConfig with reasonable defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConcurrency: 10,
		MaxAwaiting:    10,
		Order:          OrderFIFO,
	}
}

// PoolStats is a point-in-time snapshot of the pool state
type PoolStats struct {
	Running        int `json:"running"`
	Pending        int `json:"pending"`
	Tags           int `json:"tags"`
	MaxConcurrency int `json:"max_concurrency"`
	MaxAwaiting    int `json:"max_awaiting"`
}

type poolState int

const (
	stateRunning poolState = iota
	stateDraining
	stateStopped
)

// nestedKey marks contexts handed to running tasks
type nestedKey struct{}

// Pool runs submitted work on a bounded number of goroutines and tracks
// in-flight work per tag.
//
// All mutable state is guarded by mu. The dispatcher, blocked submitters and
// completing executors coordinate through cond, which is broadcast on every
// state change.
type Pool struct {
	maxConcurrency int
	maxAwaiting    int

	mu       sync.Mutex
	cond     *sync.Cond
	state    poolState
	pending  *pendingQueue
	running  int
	counters *tagCounters

	// drained is set once the pool stopped with no queued or running work
	drained bool

	// blockedNested counts running tasks waiting in Submit for queue space
	blockedNested int

	// errorHandler is called when a task execution fails
	// If nil, errors are only logged
	errorHandler func(task *Task, err error)
	emitter      events.EventEmitter
	metrics      *Metrics

	// ctx is handed to every task and cancelled when the pool stops
	ctx    context.Context
	cancel context.CancelFunc

	// done is closed when the dispatcher exits
	done chan struct{}

	logger *slog.Logger
}

// NewPool creates a pool with the specified configuration and starts its
// dispatcher. The pool accepts work as soon as NewPool returns.
func NewPool(config PoolConfig, logger *slog.Logger) *Pool {
	logger = logger.With("component", "task_pool")

	maxConcurrency := config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
		logger.Warn("invalid max concurrency specified, using default",
			"specified", config.MaxConcurrency,
			"default", maxConcurrency)
	}

	maxAwaiting := config.MaxAwaiting
	if maxAwaiting <= 0 {
		maxAwaiting = 1
		logger.Warn("invalid max awaiting specified, using default",
			"specified", config.MaxAwaiting,
			"default", maxAwaiting)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		maxConcurrency: maxConcurrency,
		maxAwaiting:    maxAwaiting,
		state:          stateRunning,
		pending:        newPendingQueue(config.Order),
		counters:       newTagCounters(),
		cancel:         cancel,
		done:           make(chan struct{}),
		logger:         logger,
	}
	p.cond = sync.NewCond(&p.mu)
	p.ctx = context.WithValue(ctx, nestedKey{}, p)

	go p.dispatch()

	logger.Debug("task pool started",
		"max_concurrency", maxConcurrency,
		"max_awaiting", maxAwaiting,
		"order", config.Order.String())

	return p
}

// SetErrorHandler sets a callback for task failures. The handler runs on the
// executor goroutine before the task's tag counter is released, so a caller
// waiting on the tag observes every failure first.
func (p *Pool) SetErrorHandler(handler func(task *Task, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorHandler = handler
}

// SetEmitter sets the sink for task lifecycle events. Each task's events
// arrive in lifecycle order. Handlers run on submitter and executor
// goroutines and must not wait on the pool.
func (p *Pool) SetEmitter(emitter events.EventEmitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitter = emitter
}

// SetMetrics enables Prometheus instrumentation. The pending and running
// gauges start from the pool's current state, so it may be called at any time.
func (p *Pool) SetMetrics(metrics *Metrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = metrics
	metrics.sync(p.pending.Len(), p.running)
}

// Submit increments the live counter of tag and queues work for execution.
//
// While the pending queue holds MaxAwaiting tasks, Submit blocks until the
// dispatcher frees a place or ctx is done. Submissions made with the context
// of a running task wait the same way, except when every executor slot is
// held by a task that is itself waiting in Submit: no place could free up
// then, so the submission is queued over the limit. Such submissions are
// still accepted while the pool drains, so a task can fan out under its own
// tag without deadlocking the pool.
//
// Submit returns once the task is queued; it does not wait for it to start.
func (p *Pool) Submit(ctx context.Context, tag string, work Work) error {
	if work == nil {
		return ErrNilWork
	}

	nested := ctx.Value(nestedKey{}) == p

	t, emitter, err := p.enqueue(ctx, tag, work, nested)
	if err != nil {
		return err
	}

	if emitter != nil {
		p.emit(emitter, events.NewTaskEvent(events.TaskSubmitted, t.ID, tag))
	}
	if t.markAnnounced() && emitter != nil {
		p.emit(emitter, events.NewTaskEvent(events.TaskDiscarded, t.ID, tag))
	}

	return nil
}

// enqueue waits for room in the pending queue and appends a new task
func (p *Pool) enqueue(ctx context.Context, tag string, work Work, nested bool) (*Task, events.EventEmitter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mustWait(nested) {
		stop := context.AfterFunc(ctx, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.cond.Broadcast()
		})
		defer stop()

		if nested {
			p.blockedNested++
			p.cond.Broadcast()
			defer func() {
				p.blockedNested--
				p.cond.Broadcast()
			}()
		}

		for p.mustWait(nested) {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			p.cond.Wait()
		}
	}

	if !p.accepting(nested) {
		return nil, nil, ErrPoolClosed
	}

	t := newTask(tag, work)
	p.counters.inc(tag)
	p.pending.Push(t)
	p.metrics.submitted(tag)
	p.cond.Broadcast()

	return t, p.emitter, nil
}

// mustWait reports whether a submission has to wait for queue space.
// Must be called with mu held.
func (p *Pool) mustWait(nested bool) bool {
	if !p.accepting(nested) || p.pending.Len() < p.maxAwaiting {
		return false
	}
	if nested {
		// Only pass the bound when every executor slot is held by a task
		// that is itself waiting here.
		return p.running < p.maxConcurrency || p.blockedNested < p.running
	}
	return true
}

func (p *Pool) accepting(nested bool) bool {
	switch p.state {
	case stateRunning:
		return true
	case stateDraining:
		return nested
	default:
		return false
	}
}

// Count returns the number of submitted but not yet completed tasks under tag.
// Unknown tags report zero.
func (p *Pool) Count(tag string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters.get(tag)
}

// Wait blocks until no task under tag is pending or running, or ctx is done.
// Tasks submitted under tag by running tasks keep the tag busy, so Wait does
// not return before recursively submitted work has finished.
func (p *Pool) Wait(ctx context.Context, tag string) error {
	p.mu.Lock()
	ch := p.counters.waitCh(tag)
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running returns the number of tasks currently executing
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Pending returns the number of tasks waiting to be dispatched
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Len()
}

// Stats returns a snapshot of the pool state
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Running:        p.running,
		Pending:        p.pending.Len(),
		Tags:           p.counters.tags(),
		MaxConcurrency: p.maxConcurrency,
		MaxAwaiting:    p.maxAwaiting,
	}
}

// Stop stops accepting new submissions.
//
// With drain set, Stop waits until queued and running tasks (including the
// ones they submit) have finished, or until ctx is done. Without drain,
// queued tasks are discarded, their counters released, the context handed
// to running tasks is cancelled and Stop returns without waiting.
// Calling Stop again after a drained stop waits for the same completion.
// A draining Stop overtaken by a Stop without drain returns ErrDrainAborted.
func (p *Pool) Stop(ctx context.Context, drain bool) error {
	p.mu.Lock()
	var discarded []*Task
	switch {
	case p.state == stateStopped:
	case drain && p.state == stateRunning:
		p.state = stateDraining
		p.logger.Debug("task pool draining",
			"running", p.running,
			"pending", p.pending.Len())
	case !drain:
		p.state = stateStopped
		discarded = p.pending.DrainAll()
		for _, t := range discarded {
			p.counters.dec(t.Tag)
			t.setStatus(TaskStatusDone)
		}
		p.metrics.discarded(len(discarded))
		p.cancel()
	}
	emitter := p.emitter
	p.cond.Broadcast()
	p.mu.Unlock()

	if !drain {
		if len(discarded) > 0 {
			p.logger.Info("task pool stopped, discarded pending tasks", "discarded", len(discarded))
			if emitter != nil {
				for _, t := range discarded {
					if t.deferDiscard() {
						continue
					}
					p.emit(emitter, events.NewTaskEvent(events.TaskDiscarded, t.ID, t.Tag))
				}
			}
		}
		return nil
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	drained := p.drained
	p.mu.Unlock()
	if !drained {
		return ErrDrainAborted
	}
	p.logger.Debug("task pool drained")
	return nil
}

// dispatch starts pending tasks while executor slots are free
func (p *Pool) dispatch() {
	defer close(p.done)

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		switch {
		case p.state == stateStopped:
			return

		case p.state == stateDraining && p.pending.Len() == 0 && p.running == 0:
			p.state = stateStopped
			p.drained = true
			p.cancel()
			p.cond.Broadcast()
			return

		case p.pending.Len() > 0 && p.running < p.maxConcurrency:
			t := p.pending.Pop()
			p.running++
			t.setStatus(TaskStatusRunning)
			p.metrics.started()
			p.cond.Broadcast()
			go p.execute(t, observers{
				errorHandler: p.errorHandler,
				emitter:      p.emitter,
			})

		default:
			p.cond.Wait()
		}
	}
}

// observers is the set of outcome sinks captured when a task is dispatched
type observers struct {
	errorHandler func(*Task, error)
	emitter      events.EventEmitter
}

// execute runs a single task on its own goroutine and releases its executor
// slot and tag counter afterwards, whatever the outcome
func (p *Pool) execute(t *Task, obs observers) {
	errorHandler, emitter := obs.errorHandler, obs.emitter
	if emitter != nil {
		<-t.announced
		p.emit(emitter, events.NewTaskEvent(events.TaskStarted, t.ID, t.Tag))
	}

	start := time.Now()
	err := p.run(t)
	elapsed := time.Since(start)

	p.mu.Lock()
	metrics := p.metrics
	p.mu.Unlock()
	metrics.finished(t.Tag, elapsed, err)

	if err != nil {
		if errorHandler != nil {
			p.safeHandle(errorHandler, t, err)
		} else {
			p.logger.Warn("task execution failed",
				"task_id", t.ID,
				"tag", t.Tag,
				"error", redact.Error(err))
		}
	}

	if emitter != nil {
		event := events.NewTaskEvent(events.TaskCompleted, t.ID, t.Tag)
		if err != nil {
			event.Kind = events.TaskFailed
			event.Error = redact.Error(err)
		}
		event.Duration = elapsed
		p.emit(emitter, event)
	}

	p.mu.Lock()
	p.running--
	p.counters.dec(t.Tag)
	t.setStatus(TaskStatusDone)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// run executes the task's work, converting a panic into an error
func (p *Pool) run(t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				"task_id", t.ID,
				"tag", t.Tag,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()

	return t.work(p.ctx)
}

// safeHandle shields the executor from a panicking error handler
func (p *Pool) safeHandle(handler func(*Task, error), t *Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task error handler panicked",
				"task_id", t.ID,
				"panic", fmt.Sprint(r))
		}
	}()
	handler(t, err)
}

func (p *Pool) emit(emitter events.EventEmitter, event *events.TaskEvent) {
	if err := emitter.EmitEvent(p.ctx, event); err != nil {
		p.logger.Debug("task event handler failed",
			"event_kind", event.Kind,
			"task_id", event.TaskID,
			"error", err)
	}
}
