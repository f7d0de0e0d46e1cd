package lockstep

import (
	"sync"
)

// CyclicBarrier is a reusable N-way rendezvous: once `count` countDown calls
// have landed since the last release, every waiter in await() is woken and
// remaining is reset to count before any of them returns. Unlike a one-shot
// barrier, this same object is reused for every simulation tick of the
// session's lifetime.
//
// The reset-before-release step is the one subtlety: a waiter must never
// observe remaining == 0 and return before remaining has already been set
// back to count, or a countDown racing the wakeup could be silently lost.
type CyclicBarrier struct {
	mu        sync.Mutex
	cond      *sync.Cond
	count     int
	remaining int
	cycle     uint64 // bumped on every release, lets await() detect its own cycle ended
	cancelled bool
}

// NewCyclicBarrier constructs a barrier for count parties. count must be > 0.
func NewCyclicBarrier(count int) *CyclicBarrier {
	if count <= 0 {
		panic("lockstep: CyclicBarrier count must be > 0")
	}
	b := &CyclicBarrier{count: count, remaining: count}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await blocks the caller until remaining reaches zero, at which point
// remaining is atomically reset to count and every waiter is released. It
// returns ErrInterrupted if Cancel is called while waiting, or immediately
// if the barrier was already cancelled.
func (b *CyclicBarrier) Await() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancelled {
		return ErrInterrupted
	}
	startCycle := b.cycle
	for b.remaining > 0 && !b.cancelled && b.cycle == startCycle {
		b.cond.Wait()
	}
	if b.cancelled && b.cycle == startCycle {
		return ErrInterrupted
	}
	return nil
}

// CountDown decrements remaining if it is > 0. When it reaches zero, every
// current Await waiter is woken and remaining is reset to count as part of
// the same critical section, so no subsequent CountDown can be lost between
// the release and the reset. Calls beyond zero are no-ops until the next
// reset.
func (b *CyclicBarrier) CountDown() {
	b.mu.Lock()
	if b.remaining > 0 {
		b.remaining--
		if b.remaining == 0 {
			b.remaining = b.count
			b.cycle++
			b.cond.Broadcast()
		}
	}
	b.mu.Unlock()
}

// Reset force-sets remaining back to count without going through a release:
// current waiters stay blocked on the same cycle, now needing a full fresh
// count of countDown calls before they're released. Used to recover from a
// desync without waking anyone early.
func (b *CyclicBarrier) Reset() {
	b.mu.Lock()
	b.remaining = b.count
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Cancel marks the barrier cancelled, waking every current and future
// Await call with ErrInterrupted until the session object that owns this
// barrier is discarded. There is no Uncancel; a cancelled barrier belongs to
// a session that is shutting down.
func (b *CyclicBarrier) Cancel() {
	b.mu.Lock()
	b.cancelled = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// GetCount returns the current remaining countdown. Advisory only: it can
// change the instant after this returns.
func (b *CyclicBarrier) GetCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
