package lockstep

// messageKind is the wire discriminant for the tagged-variant message
// envelope. Per the §9 REDESIGN FLAG, dispatch on receive is a switch over
// this explicit, statically-known byte rather than a runtime type branch,
// so every value is handled and an unknown one is caught at one place
// (codec.decode) instead of silently falling through a type switch's
// default case deep in the receiver worker.
type messageKind uint8

const (
	kindInput      messageKind = 1
	kindInputBatch messageKind = 2
	kindAck        messageKind = 3
	kindKeepAlive  messageKind = 4
)

// wireFrame is the CBOR-serializable shape of a single FrameInput.
type wireFrame struct {
	FrameNumber int64  `cbor:"1,keyasint"`
	Payload     []byte `cbor:"2,keyasint"`
}

func (w wireFrame) toFrameInput() FrameInput { return FrameInput{FrameNumber: w.FrameNumber, Payload: w.Payload} }
func wireFrameOf(f FrameInput) wireFrame     { return wireFrame{FrameNumber: f.FrameNumber, Payload: f.Payload} }

// InputMessage carries one frame from one peer (§6).
type InputMessage struct {
	SenderID PeerID
	Frame    FrameInput
}

type wireInputMessage struct {
	SenderID PeerID    `cbor:"1,keyasint"`
	Frame    wireFrame `cbor:"2,keyasint"`
}

// InputMessageArray carries a batch of frames from one peer (§6). Order
// within the batch carries no semantic meaning.
type InputMessageArray struct {
	SenderID PeerID
	Frames   []FrameInput
}

type wireInputMessageArray struct {
	SenderID PeerID      `cbor:"1,keyasint"`
	Frames   []wireFrame `cbor:"2,keyasint"`
}

// ackMessage is the wire shape of a FrameACK datagram (§6): SenderID here
// names the peer being acknowledged from the receiver's perspective; the
// receiver worker labels it with the remote's id when it buffers the ACK
// for emission (see routeInput in worker_recv.go).
type ackMessage struct {
	SenderID      PeerID  `cbor:"1,keyasint"`
	CumulativeAck int64   `cbor:"2,keyasint"`
	SelectiveAcks []int64 `cbor:"3,keyasint,omitempty"`
}

// KeepAlive resets the remote's idle timer only; it carries no payload.
type KeepAlive struct{}

// decodedMessage is the result of decoding one datagram: exactly one of the
// typed fields is populated, selected by Kind.
type decodedMessage struct {
	Kind      messageKind
	Input     InputMessage
	Batch     InputMessageArray
	Ack       FrameACK
	KeepAlive KeepAlive
}
