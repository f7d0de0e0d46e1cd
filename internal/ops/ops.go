// Package ops tracks the lifetime of the session's long-running goroutines
// (the receiver worker, the sender worker) the way the teacher codebase
// tracked its own background goroutines: start them through one place so a
// panic or terminal error surfaces centrally instead of silently killing a
// goroutine nobody is watching.
//
// This is a thin wrapper over the upstream github.com/getlantern/ops
// tracker rather than a reimplementation, since the teacher's own local
// ops subpackage depended on an internal context manager that is not part
// of this module's lineage.
package ops

import (
	"fmt"
	"sync"

	lanternops "github.com/getlantern/ops"
)

// Tracker runs named goroutines and collects the first failure any of them
// report, whether via an explicit error return or a recovered panic.
type Tracker struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	err     error
	errOnce sync.Once
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Go starts fn on a new goroutine tracked both by this Tracker's WaitGroup
// and by the upstream ops package, the same lanternops.Go(func()) call the
// teacher codebase uses to launch its own background loops.
func (t *Tracker) Go(name string, fn func() error) {
	t.wg.Add(1)
	lanternops.Go(func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.recordFailure(fmt.Errorf("panic in %s: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			t.recordFailure(fmt.Errorf("%s: %w", name, err))
		}
	})
}

func (t *Tracker) recordFailure(err error) {
	t.errOnce.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	})
}

// Wait blocks until every goroutine started via Go has returned, then
// returns the first failure reported by any of them (or nil).
func (t *Tracker) Wait() error {
	t.wg.Wait()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
