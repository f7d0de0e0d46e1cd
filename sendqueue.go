package lockstep

import (
	"sort"
	"sync"
	"time"
)

// unackedEntry pairs a FrameInput awaiting acknowledgment with the last time
// it was handed to the sender worker.
type unackedEntry struct {
	input        FrameInput
	lastSendTime time.Time
}

// TransmissionQueue is the per-receiver retransmission store: one is created
// for every remote peer a session sends to. It retains every locally
// produced frame until the remote's ACKs say it has been delivered, and
// tells the sender worker which unacknowledged frames are due for another
// send attempt.
//
// Unlike ReceivingQueue, TransmissionQueue is touched by three different
// goroutines (the simulation thread via enqueueLocal, the receiver worker
// via processACK, and the sender worker via dueForSend) so it serializes
// all operations behind one mutex rather than splitting state the way
// ReceivingQueue does.
type TransmissionQueue struct {
	mu sync.Mutex

	peerID            PeerID
	nextFrameToSend   int64
	unacked           map[int64]*unackedEntry
	highestCumAckSeen int64
}

// NewTransmissionQueue constructs a TransmissionQueue for one remote peer.
// initialFrame is the frame number the first locally produced input will
// carry.
func NewTransmissionQueue(peerID PeerID, initialFrame int64) *TransmissionQueue {
	return &TransmissionQueue{
		peerID:            peerID,
		nextFrameToSend:   initialFrame,
		unacked:           make(map[int64]*unackedEntry),
		highestCumAckSeen: initialFrame - 1,
	}
}

// EnqueueLocal appends a newly produced local input. It returns an
// ErrInvariant-wrapped error if input.FrameNumber does not equal the
// expected next frame number, since that indicates the simulation thread
// itself is calling out of order -- an invariant violation rather than a
// recoverable condition -- and leaves the queue untouched.
func (q *TransmissionQueue) EnqueueLocal(input FrameInput) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if input.FrameNumber != q.nextFrameToSend {
		return errInvariantMsg("EnqueueLocal frame out of order: got %d, expected %d", input.FrameNumber, q.nextFrameToSend)
	}
	q.nextFrameToSend++
	// Zero send time forces an immediate first send on the next dueForSend.
	q.unacked[input.FrameNumber] = &unackedEntry{input: input}
	return nil
}

// ProcessACK applies an acknowledgment from this peer. The cumulative field
// is applied monotonically (stale reordered ACKs cannot move
// highestCumAckSeen backwards); the selective list is applied
// unconditionally, since removing an already-removed key is a no-op.
func (q *TransmissionQueue) ProcessACK(ack FrameACK) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ack.CumulativeAck > q.highestCumAckSeen {
		q.highestCumAckSeen = ack.CumulativeAck
	}
	for k := range q.unacked {
		if k <= q.highestCumAckSeen {
			delete(q.unacked, k)
		}
	}
	for _, k := range ack.SelectiveAcks {
		delete(q.unacked, k)
	}
}

// RTOFunc computes the retransmission timeout for a frame still unacked in
// a given queue. Session's sender worker always passes a fixed
// Config.RetransmissionTimeout and offers no hook to replace it; a caller
// driving DueForSend directly can pass an adaptive strategy (e.g.
// SRTT/RTTVAR-based, as in classic ARQ transports) without touching
// TransmissionQueue itself.
type RTOFunc func(peerID PeerID) time.Duration

// DueForSend returns every unacked entry whose lastSendTime + rto(peerID)
// <= now, in ascending frame order, and stamps each returned entry's
// lastSendTime = now so it is not returned again until the next timeout.
func (q *TransmissionQueue) DueForSend(now time.Time, rto RTOFunc) []FrameInput {
	q.mu.Lock()
	defer q.mu.Unlock()

	rtoDur := rto(q.peerID)

	due := make([]int64, 0, len(q.unacked))
	for k, e := range q.unacked {
		if !e.lastSendTime.IsZero() && now.Sub(e.lastSendTime) < rtoDur {
			continue
		}
		due = append(due, k)
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	out := make([]FrameInput, 0, len(due))
	for _, k := range due {
		e := q.unacked[k]
		e.lastSendTime = now
		out = append(out, e.input)
	}
	return out
}

// PendingCount reports how many frames remain unacknowledged. Exposed for
// tests/diagnostics.
func (q *TransmissionQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.unacked)
}

// HighestCumulativeAckSeen is exposed for tests/diagnostics.
func (q *TransmissionQueue) HighestCumulativeAckSeen() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highestCumAckSeen
}
