package offcache

import "context"

// Task is the completion handle of a lifecycle event. The hosting
// environment must not recycle the manager before Done is closed.
type Task struct {
	done chan struct{}
	err  error
}

// runTask runs fn in its own goroutine. Lifecycle work is not cancellable:
// fn gets ctx's values but not its deadline or cancellation.
func runTask(ctx context.Context, fn func(context.Context) error) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = fn(context.WithoutCancel(ctx))
	}()
	return t
}

func failedTask(err error) *Task {
	t := &Task{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

// Done is closed when the work has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends. Giving up on the wait
// does not stop the work.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task result, or nil while it is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
