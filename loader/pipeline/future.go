package pipeline

import (
	"context"
	"sync"
)

// Future fires once the sync.WaitGroup it wraps reaches zero, exposed as
// a channel receive so callers can select on it alongside a context's
// cancellation. A reusable await-completion value used by both
// Pipeline.Complete and Job.Complete.
type Future struct {
	done   <-chan struct{}
	errPtr *error
}

func newFuture(wg *sync.WaitGroup) *Future {
	return JoinWaitGroups(wg)
}

// NewFutureFromChan wraps an already-closing-on-completion channel (such
// as one closed after an errgroup.Group's Wait returns) as a Future, for
// stages whose drain condition isn't a single sync.WaitGroup.
func NewFutureFromChan(done <-chan struct{}) *Future {
	return &Future{done: done}
}

// NewFutureFromResult wraps a closing-on-completion channel together
// with a pointer to the error that completion produced — for stages
// (such as the archive errgroup) whose drain condition yields a result,
// not just a signal. The caller must only write to *err before closing
// done; the channel close is what makes that write visible to Await.
func NewFutureFromResult(done <-chan struct{}, err *error) *Future {
	return &Future{done: done, errPtr: err}
}

// JoinWaitGroups builds a Future that fires once every given WaitGroup
// has drained. Used by stages (like the Texture Pipeline) that track
// more than one in-flight counter but expose a single completion point.
func JoinWaitGroups(wgs ...*sync.WaitGroup) *Future {
	done := make(chan struct{})
	go func() {
		for _, wg := range wgs {
			wg.Wait()
		}
		close(done)
	}()
	return &Future{done: done}
}

// Done returns a channel that is closed once the underlying work drains.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future fires or ctx is done, whichever first.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-f.done:
		if f.errPtr != nil {
			return *f.errPtr
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join waits for several futures to all complete.
func Join(ctx context.Context, futures ...*Future) error {
	for _, f := range futures {
		if f == nil {
			continue
		}
		if err := f.Await(ctx); err != nil {
			return err
		}
	}
	return nil
}
