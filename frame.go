package lockstep

import "fmt"

// FrameInput is one peer's opaque input payload for a single simulation
// frame. It is immutable once constructed.
type FrameInput struct {
	FrameNumber int64
	Payload     []byte
}

// NewFrameInput constructs a FrameInput. frameNumber must be non-negative;
// callers that read frameNumber off the wire should validate before calling
// this, since the type itself does not re-check on every access.
func NewFrameInput(frameNumber int64, payload []byte) FrameInput {
	return FrameInput{FrameNumber: frameNumber, Payload: payload}
}

func (f FrameInput) String() string {
	return fmt.Sprintf("frame(%d, %d bytes)", f.FrameNumber, len(f.Payload))
}

// Equal reports whether f and other carry the same frame number and an
// identical payload.
func (f FrameInput) Equal(other FrameInput) bool {
	if f.FrameNumber != other.FrameNumber || len(f.Payload) != len(other.Payload) {
		return false
	}
	for i := range f.Payload {
		if f.Payload[i] != other.Payload[i] {
			return false
		}
	}
	return true
}
