package lockstep

import (
	"sync"
	"sync/atomic"
)

// ReceivingQueue is the per-sender reorder buffer: one is created for every
// remote peer a session tracks. It turns an arbitrary-order, duplicate- and
// gap-tolerant stream of FrameInputs from that one peer into the strictly
// in-order stream the simulation thread consumes via pop(), and it builds
// the cumulative+selective FrameACK to send back.
//
// Concurrency: push is called only by the receiver worker (one writer per
// peer, since all of that peer's datagrams demux through the same path);
// pop/head are called only by the simulation thread. In steady state the two
// sides touch disjoint keys of pending (the producer inserts at or ahead of
// bufferHead, the consumer removes exactly at bufferHead), which is why
// bufferHead is a plain atomic and pending a sync.Map rather than both being
// behind one mutex. lastInOrder and selectiveAcks are written only by push.
type ReceivingQueue struct {
	initialFrame int64
	bufferHead   atomic.Int64

	pushMu        sync.Mutex // serializes concurrent push calls against each other
	lastInOrder   int64
	selectiveAcks map[int64]struct{}

	pending sync.Map // frameNumber(int64) -> FrameInput

	barrier *CyclicBarrier

	// countdownIssuedFor resolves the §9 double-count question: exactly one
	// CountDown per peer per tick must fire the moment the frame at the
	// current bufferHead first becomes available, whether that happens
	// because push() landed exactly on bufferHead or because pop() advanced
	// bufferHead onto an already-pending frame. This flag records whether
	// the countdown for the *current* bufferHead has already been issued,
	// and is cleared whenever bufferHead advances.
	countdownIssuedFor atomic.Bool

	// maxPendingAheadOfHead is the optional cap mentioned in §9 as an
	// enhancement; 0 (the default) means unbounded, matching the spec's
	// statement that bufferSizeHint is advisory only.
	maxPendingAheadOfHead int64

	peerID PeerID
	logger Logger
}

// NewReceivingQueue constructs a ReceivingQueue for one remote peer.
// maxPendingAheadOfHead <= 0 disables the cap (the default, per §9).
func NewReceivingQueue(peerID PeerID, initialFrame int64, barrier *CyclicBarrier, maxPendingAheadOfHead int64, logger Logger) *ReceivingQueue {
	q := &ReceivingQueue{
		initialFrame:          initialFrame,
		lastInOrder:           initialFrame - 1,
		selectiveAcks:         make(map[int64]struct{}),
		barrier:               barrier,
		maxPendingAheadOfHead: maxPendingAheadOfHead,
		peerID:                peerID,
		logger:                logger,
	}
	q.bufferHead.Store(initialFrame)
	return q
}

// Push ingests one or more frames from this peer, in arbitrary order,
// possibly with duplicates, and returns the FrameACK to send back to that
// peer. Safe to call concurrently with Pop/Head; concurrent Push calls on
// the same queue are serialized by pushMu.
func (q *ReceivingQueue) Push(frames []FrameInput) FrameACK {
	q.pushMu.Lock()
	defer q.pushMu.Unlock()

	for _, f := range frames {
		q.pushOne(f)
	}
	return q.buildACK()
}

func (q *ReceivingQueue) pushOne(frame FrameInput) {
	head := q.bufferHead.Load()

	// 1. Out-of-window: already delivered.
	if frame.FrameNumber < head {
		if q.logger != nil {
			q.logger.Debug("dropping out-of-window frame", Field{"peer", q.peerID}, Field{"frame", frame.FrameNumber}, Field{"bufferHead", head})
		}
		return
	}

	// 2. Duplicate check + insertion.
	if _, loaded := q.pending.LoadOrStore(frame.FrameNumber, frame); loaded {
		if q.logger != nil {
			q.logger.Debug("dropping duplicate frame", Field{"peer", q.peerID}, Field{"frame", frame.FrameNumber})
		}
		return
	}

	if q.maxPendingAheadOfHead > 0 && frame.FrameNumber > head+q.maxPendingAheadOfHead {
		// Optional enhancement cap: reject rather than grow unboundedly.
		q.pending.Delete(frame.FrameNumber)
		if q.logger != nil {
			q.logger.Warn("rejecting frame beyond reorder cap", Field{"peer", q.peerID}, Field{"frame", frame.FrameNumber}, Field{"cap", q.maxPendingAheadOfHead})
		}
		return
	}

	// 3. Contiguous arrival: extend lastInOrder, possibly collapsing a run
	// that was parked in selectiveAcks.
	if frame.FrameNumber == q.lastInOrder+1 {
		q.lastInOrder++
		for {
			next := q.lastInOrder + 1
			if _, ok := q.selectiveAcks[next]; !ok {
				break
			}
			delete(q.selectiveAcks, next)
			q.lastInOrder++
		}

		if frame.FrameNumber == head {
			q.maybeCountDown(head)
		}
		return
	}

	// 4. Gap ahead of lastInOrder.
	q.selectiveAcks[frame.FrameNumber] = struct{}{}

	// A frame can also land exactly on bufferHead without being the next
	// in-order frame after lastInOrder, if bufferHead has already advanced
	// past lastInOrder via earlier pops of a contiguous prefix that hadn't
	// yet been accounted for by lastInOrder bookkeeping at push time. This
	// cannot happen under invariant 1 (lastInOrder >= bufferHead - 1) except
	// when frame.FrameNumber == bufferHead == lastInOrder+1, which is
	// already handled above; no further action needed here.
}

// maybeCountDown fires exactly one CountDown for the given bufferHead value,
// the first time it is discovered to hold an available frame, per the §9
// single-countdown-per-tick rule.
func (q *ReceivingQueue) maybeCountDown(head int64) {
	if q.countdownIssuedFor.CompareAndSwap(false, true) {
		q.barrier.CountDown()
	}
	_ = head
}

// buildACK snapshots the current cumulative+selective ack state. Must be
// called with pushMu held.
func (q *ReceivingQueue) buildACK() FrameACK {
	sel := make([]int64, 0, len(q.selectiveAcks))
	for k := range q.selectiveAcks {
		sel = append(sel, k)
	}
	return newFrameACK(q.peerID, q.lastInOrder, sel)
}

// Pop is called only by the simulation thread. It returns the frame at
// bufferHead and advances bufferHead by one, or returns false if that slot
// is empty.
func (q *ReceivingQueue) Pop() (FrameInput, bool) {
	head := q.bufferHead.Load()
	v, ok := q.pending.LoadAndDelete(head)
	if !ok {
		return FrameInput{}, false
	}
	q.bufferHead.Store(head + 1)
	q.countdownIssuedFor.Store(false)

	if _, ok := q.pending.Load(head + 1); ok {
		q.maybeCountDown(head + 1)
	}
	return v.(FrameInput), true
}

// Head is a non-mutating peek at the frame the simulation will next consume.
func (q *ReceivingQueue) Head() (FrameInput, bool) {
	head := q.bufferHead.Load()
	v, ok := q.pending.Load(head)
	if !ok {
		return FrameInput{}, false
	}
	return v.(FrameInput), true
}

// BufferHead returns the frame number the simulation will next consume.
func (q *ReceivingQueue) BufferHead() int64 { return q.bufferHead.Load() }

// LastInOrder returns the highest frame number such that every frame from
// initialFrame through it has been received. Exposed for tests/diagnostics.
func (q *ReceivingQueue) LastInOrder() int64 {
	q.pushMu.Lock()
	defer q.pushMu.Unlock()
	return q.lastInOrder
}
