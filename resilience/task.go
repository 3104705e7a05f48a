package resilience

import (
	"context"
	"sync"
)

// Task is a deferred operation producing a T. The context carries the
// caller's cancellation signal; tasks that want hard interruption must watch
// it themselves.
type Task[T any] func(ctx context.Context) (T, error)

// Op adapts an error-only operation to a Task.
func Op(op func(context.Context) error) Task[struct{}] {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// settle records the outcome. Only the first call has any effect.
func (f *Future[T]) settle(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task settles and returns its outcome.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Settled reports whether the result is available without blocking.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// abortError converts a finished context into an AbortError.
func abortError(ctx context.Context) error {
	return &AbortError{Cause: context.Cause(ctx)}
}

// runTask invokes task, turning a panic into a PanicError.
func runTask[T any](ctx context.Context, task Task[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return task(ctx)
}
