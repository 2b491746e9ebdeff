package container

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	taskPending int32 = iota
	taskClaimed
	taskDone
	taskFailed
)

// DeferredTask is a build attempt waiting for missing dependencies.
//
// The attempt returns nil on success, an error wrapping ErrNotReady while
// dependencies are missing, and any other error for permanent failures.
type DeferredTask struct {
	Symbol  Symbol
	attempt func() error
	state   atomic.Int32
	err     error
}

// Done reports whether the task completed successfully.
func (t *DeferredTask) Done() bool { return t.state.Load() == taskDone }

// Failed reports whether the task failed permanently.
func (t *DeferredTask) Failed() bool { return t.state.Load() == taskFailed }

// Err is the permanent failure of the task, if any.
func (t *DeferredTask) Err() error {
	if !t.Failed() {
		return nil
	}
	return t.err
}

// Undo resets a claimed or completed task to pending so the next pass runs
// it again.
func (t *DeferredTask) Undo() {
	t.state.Store(taskPending)
}

// run claims the task and executes the attempt. A task that is already
// claimed (for instance by a replay triggered from inside its own attempt)
// is skipped.
func (t *DeferredTask) run() (ran bool, err error) {
	if !t.state.CompareAndSwap(taskPending, taskClaimed) {
		return false, nil
	}
	err = t.attempt()
	switch {
	case err == nil:
		t.state.Store(taskDone)
	case errors.Is(err, ErrNotReady):
		t.Undo()
	default:
		t.err = err
		t.state.Store(taskFailed)
	}
	return true, err
}

// TaskQueue holds deferred tasks in insertion order.
type TaskQueue struct {
	mu       sync.Mutex
	tasks    []*DeferredTask
	failures []error

	name   string
	logger *zap.Logger
}

// NewTaskQueue creates an empty queue. name identifies the owning scope in
// log lines.
func NewTaskQueue(name string, l *zap.Logger) *TaskQueue {
	if l == nil {
		l = Logger()
	}
	return &TaskQueue{name: name, logger: l}
}

// Enqueue appends a task for sym.
func (q *TaskQueue) Enqueue(sym Symbol, attempt func() error) *DeferredTask {
	t := &DeferredTask{Symbol: sym, attempt: attempt}
	q.push(t)
	q.logger.Debug("build deferred until dependencies appear",
		zap.String("scope", q.name),
		zap.Stringer("symbol", sym))
	return t
}

func (q *TaskQueue) push(tasks ...*DeferredTask) {
	q.mu.Lock()
	q.tasks = append(q.tasks, tasks...)
	q.mu.Unlock()
}

// ReplayAll runs every pending task in insertion order, repeating full passes
// until one resolves nothing. Completed tasks leave the queue, not-ready ones
// stay. Permanent failures are logged, removed and returned.
func (q *TaskQueue) ReplayAll() (resolved int, failures []error) {
	for {
		n, errs := q.pass()
		resolved += n
		failures = append(failures, errs...)
		if n == 0 {
			return resolved, failures
		}
	}
}

func (q *TaskQueue) pass() (resolved int, failures []error) {
	q.mu.Lock()
	snapshot := make([]*DeferredTask, len(q.tasks))
	copy(snapshot, q.tasks)
	q.mu.Unlock()

	for _, t := range snapshot {
		ran, err := t.run()
		if !ran {
			continue
		}
		switch {
		case err == nil:
			resolved++
		case !errors.Is(err, ErrNotReady):
			err = fmt.Errorf("deferred build of %s: %w", t.Symbol, err)
			q.logger.Error("deferred build failed",
				zap.String("scope", q.name),
				zap.Stringer("symbol", t.Symbol),
				zap.Error(err))
			failures = append(failures, err)
		}
	}

	if resolved > 0 || len(failures) > 0 {
		q.mu.Lock()
		q.failures = append(q.failures, failures...)
		q.compactLocked()
		q.mu.Unlock()
		q.logger.Debug("deferred tasks replayed",
			zap.String("scope", q.name),
			zap.Int("resolved", resolved),
			zap.Int("failed", len(failures)))
	}
	return resolved, failures
}

func (q *TaskQueue) compactLocked() {
	kept := q.tasks[:0:0]
	for _, t := range q.tasks {
		if t.Done() || t.Failed() {
			continue
		}
		kept = append(kept, t)
	}
	q.tasks = kept
}

// Purge removes and returns the tasks matching pred.
func (q *TaskQueue) Purge(pred func(*DeferredTask) bool) []*DeferredTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed []*DeferredTask
	kept := q.tasks[:0:0]
	for _, t := range q.tasks {
		if pred(t) {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	q.tasks = kept
	return removed
}

// Pending returns a snapshot of the queued tasks.
func (q *TaskQueue) Pending() []*DeferredTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*DeferredTask, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// Len is the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Failures returns every permanent failure seen by this queue.
func (q *TaskQueue) Failures() []error {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]error, len(q.failures))
	copy(out, q.failures)
	return out
}

// Clear drops all tasks and recorded failures.
func (q *TaskQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = nil
	q.failures = nil
}
