package orchestrator

import (
	"context"
	"sync"
)

// addressFuture is the write-once, read-many handoff for a service's resolved
// base URL. It is resolved (or failed) exactly once, when the service's
// supervisor reaches a terminal state; dependents block on wait until then.
type addressFuture struct {
	done chan struct{}
	once sync.Once
	url  string
	err  error
}

func newAddressFuture() *addressFuture {
	return &addressFuture{done: make(chan struct{})}
}

func (f *addressFuture) resolve(url string) {
	f.once.Do(func() {
		f.url = url
		close(f.done)
	})
}

func (f *addressFuture) fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// wait blocks until the future settles or the context is cancelled.
func (f *addressFuture) wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.url, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
