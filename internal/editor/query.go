package editor

import (
	"sync"
	"time"

	"github.com/romdo/go-debounce"
)

// querier debounces a lookup and runs it on its own goroutine. The callback
// never runs while a debouncer lock is held by the caller, so run may take
// the session lock.
type querier struct {
	trigger func()
	cancel  func()

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newQuerier(wait time.Duration, run func()) *querier {
	q := &querier{}
	q.trigger, q.cancel = debounce.New(wait, func() { q.start(run) })
	return q
}

func (q *querier) start(run func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()
	go func() {
		defer q.wg.Done()
		run()
	}()
}

// Schedule (re)starts the debounce window.
func (q *querier) Schedule() {
	q.trigger()
}

// Stop drops the pending call. Calls already running are left alone.
func (q *querier) Stop() {
	q.cancel()
}

// Close stops the debouncer and waits for running calls. It must not be
// called with the session lock held.
func (q *querier) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}
