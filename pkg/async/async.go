package async

import "context"

// Future is the eventual result of a computation running in its own goroutine.
// A Future completes exactly once; every Await observes the same result.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Go runs fn in a new goroutine and returns its Future.
// A context cancelled before the goroutine starts completes the Future with ctx.Err().
func Go[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}

		f.result, f.err = fn(ctx)
	}()

	return f
}

// Await blocks until the computation finishes.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitContext blocks until the computation finishes or ctx is done.
// Giving up does not cancel the computation itself.
func (f *Future[U]) AwaitContext(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, ctx.Err()
	}
}
