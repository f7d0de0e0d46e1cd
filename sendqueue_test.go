package lockstep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRTO(d time.Duration) RTOFunc {
	return func(PeerID) time.Duration { return d }
}

func TestTransmissionQueueEnqueueLocalRejectsOutOfOrder(t *testing.T) {
	q := NewTransmissionQueue(1, 0)
	require.NoError(t, q.EnqueueLocal(input(0)))
	err := q.EnqueueLocal(input(5))
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, 1, q.PendingCount())
}

func TestTransmissionQueueACKCollapsesUnacked(t *testing.T) {
	// Scenario 4: unacked {3,4,5,7,8}; ACK(cum=5, sel=[8]) -> {7}.
	// EnqueueLocal only accepts frames in order, so frame 6 is enqueued and
	// then selectively acked to leave exactly {3,4,5,7,8} outstanding.
	q := NewTransmissionQueue(1, 3)
	for f := int64(3); f <= 8; f++ {
		require.NoError(t, q.EnqueueLocal(input(f)))
	}
	q.ProcessACK(newFrameACK(1, 2, []int64{6}))
	assert.Equal(t, 5, q.PendingCount())

	q.ProcessACK(newFrameACK(1, 5, []int64{8}))
	assert.Equal(t, 1, q.PendingCount())

	due := q.DueForSend(time.Now(), fixedRTO(0))
	require.Len(t, due, 1)
	assert.EqualValues(t, 7, due[0].FrameNumber)
}

func TestTransmissionQueueStaleReorderedACKCannotResurrect(t *testing.T) {
	q := NewTransmissionQueue(1, 0)
	for f := int64(0); f <= 3; f++ {
		require.NoError(t, q.EnqueueLocal(input(f)))
	}

	q.ProcessACK(newFrameACK(1, 3, nil))
	assert.Equal(t, 0, q.PendingCount())
	assert.EqualValues(t, 3, q.HighestCumulativeAckSeen())

	// A stale, reordered ACK with a lower cumulative ack must not regress
	// highestCumulativeAckSeen or resurrect anything.
	q.ProcessACK(newFrameACK(1, 1, nil))
	assert.EqualValues(t, 3, q.HighestCumulativeAckSeen())
	assert.Equal(t, 0, q.PendingCount())
}

func TestTransmissionQueueRetransmission(t *testing.T) {
	// Scenario 6.
	q := NewTransmissionQueue(1, 4)
	require.NoError(t, q.EnqueueLocal(input(4)))

	rto := 50 * time.Millisecond
	t0 := time.Now()

	// First call: zero lastSendTime forces an immediate send regardless of
	// rto.
	due := q.DueForSend(t0, fixedRTO(rto))
	require.Len(t, due, 1)

	// Immediately after: nothing due yet.
	due = q.DueForSend(t0.Add(time.Millisecond), fixedRTO(rto))
	assert.Empty(t, due)

	// At t0+rto: due again.
	due = q.DueForSend(t0.Add(rto), fixedRTO(rto))
	require.Len(t, due, 1)

	// Just after that: not due.
	due = q.DueForSend(t0.Add(rto+time.Millisecond), fixedRTO(rto))
	assert.Empty(t, due)

	// At t0+2*rto: due once more.
	due = q.DueForSend(t0.Add(2*rto), fixedRTO(rto))
	require.Len(t, due, 1)
}

func TestTransmissionQueueDueForSendOrdering(t *testing.T) {
	q := NewTransmissionQueue(1, 0)
	for _, f := range []int64{0, 1, 2} {
		require.NoError(t, q.EnqueueLocal(input(f)))
	}
	due := q.DueForSend(time.Now(), fixedRTO(0))
	require.Len(t, due, 3)
	assert.EqualValues(t, 0, due[0].FrameNumber)
	assert.EqualValues(t, 1, due[1].FrameNumber)
	assert.EqualValues(t, 2, due[2].FrameNumber)
}
