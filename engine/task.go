package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Task is a background unit of work spawned on an engine.
type Task struct {
	err      error
	cancel   context.CancelFunc
	done     chan struct{}
	name     string
	finished atomic.Bool
}

func (t *Task) finish(err error) {
	t.err = err
	t.finished.Store(true)
	close(t.done)
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Done is closed when the task has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Finished reports whether the task has returned.
func (t *Task) Finished() bool { return t.finished.Load() }

// Err returns the task result. It is nil until the task has finished.
func (t *Task) Err() error {
	if !t.finished.Load() {
		return nil
	}
	return t.err
}

// Cancel asks the task to stop. It does not wait.
func (t *Task) Cancel() { t.cancel() }

// Join waits for the task to finish or ctx to end.
func (t *Task) Join(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrJoinTimeout, t.name, ctx.Err())
	}
}

// JoinTimeout waits at most d for the task to finish.
func (t *Task) JoinTimeout(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return t.err
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", ErrJoinTimeout, t.name, d)
	}
}
