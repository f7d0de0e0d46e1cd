package lockstep

import "sort"

// PeerID identifies one of the fixed set of session participants.
type PeerID int64

// FrameACK is the acknowledgment a ReceivingQueue hands back to the
// transmitter it is receiving from: a cumulative "last in-order frame" plus
// an optional selective list of frames received out of order.
//
// SelectiveAcks MUST be sorted ascending and MUST NOT contain any value
// <= CumulativeAck; newFrameACK enforces both.
type FrameACK struct {
	SenderID      PeerID
	CumulativeAck int64
	SelectiveAcks []int64
}

// newFrameACK builds a FrameACK from a cumulative ack and an unsorted,
// possibly-overlapping set of selectively-acked frame numbers, normalizing
// it per the invariants documented on FrameACK.
func newFrameACK(senderID PeerID, cumulativeAck int64, selective []int64) FrameACK {
	out := make([]int64, 0, len(selective))
	for _, s := range selective {
		if s > cumulativeAck {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return FrameACK{SenderID: senderID, CumulativeAck: cumulativeAck, SelectiveAcks: out}
}
