package inspector

import (
	"context"
	"sync"
)

// Future is the eventual result of an operation started with Async.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Async runs fn on its own goroutine and returns immediately.
func Async[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn(ctx)
	}()
	return f
}

// Resolved returns a future that is already complete.
func Resolved[T any](value T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: value, err: err}
	close(f.done)
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result or for ctx to end.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then chains fn after f without blocking the caller.
func Then[T, U any](ctx context.Context, f *Future[T], fn func(ctx context.Context, value T) (U, error)) *Future[U] {
	return Async(ctx, func(ctx context.Context) (U, error) {
		value, err := f.Get(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(ctx, value)
	})
}

// AllDone returns a channel closed once every future has completed.
func AllDone[T any](futures ...*Future[T]) <-chan struct{} {
	out := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(len(futures))
	for _, f := range futures {
		go func(f *Future[T]) {
			<-f.done
			wg.Done()
		}(f)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// WhenComplete delivers the result of f to fn on the session's delivery
// goroutine, unless g has been disposed by then. Errors are logged.
func WhenComplete[T any](g *ObjectGroup, f *Future[T], fn func(T)) {
	go func() {
		select {
		case <-f.done:
		case <-g.Done():
			return
		}
		if f.err != nil {
			g.session.logger.Debug("inspector request failed", "group", g.name, "error", f.err)
			return
		}
		g.session.deliver(func() {
			if g.IsDisposed() {
				return
			}
			fn(f.value)
		})
	}()
}
