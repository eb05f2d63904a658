package workerpool

import (
	"context"
	"fmt"
	"sync"
)

// Future is the eventual result of an asynchronous computation. It resolves
// exactly once; later Resolve calls are ignored.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that already holds val and err.
func Resolved[T any](val T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(val, err)
	return f
}

// Resolve sets the result and wakes every waiter.
func (f *Future[T]) Resolve(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future has resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx ends. Abandoning a wait does
// not stop the computation behind the future.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go submits fn to p and returns a future for its result. If submission
// fails, the returned future is already resolved with that error.
func Go[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()
	err := p.Submit(ctx, func(poolCtx context.Context) {
		var zero T
		defer func() {
			// a panicking fn must not leave waiters hanging
			if r := recover(); r != nil {
				f.Resolve(zero, &PanicError{Value: r})
				panic(r)
			}
		}()
		if err := poolCtx.Err(); err != nil {
			f.Resolve(zero, err)
			return
		}
		val, err := fn(poolCtx)
		f.Resolve(val, err)
	})
	if err != nil {
		var zero T
		return Resolved(zero, err)
	}
	return f
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
