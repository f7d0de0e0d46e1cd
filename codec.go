package lockstep

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"
)

// datagram header: [kind byte][flags byte][cbor payload, possibly snappy-compressed]
const (
	headerSize          = 2
	flagCompressed byte = 1 << 0
)

// codec encodes/decodes the tagged-variant wire messages described in §4.6.
// Compression is applied opportunistically: encode() only pays the snappy
// pass when the raw encoding is at least the configured threshold, and
// only keeps the compressed form if it actually came out smaller.
type codec struct {
	compressionThreshold int
	maxDatagramSize      int
}

func newCodec(compressionThreshold, maxDatagramSize int) *codec {
	return &codec{compressionThreshold: compressionThreshold, maxDatagramSize: maxDatagramSize}
}

func (c *codec) encodeInput(msg InputMessage) ([]byte, error) {
	payload, err := cbor.Marshal(wireInputMessage{SenderID: msg.SenderID, Frame: wireFrameOf(msg.Frame)})
	if err != nil {
		return nil, fmt.Errorf("lockstep: encode InputMessage: %w", err)
	}
	return c.frame(kindInput, payload), nil
}

// encodeInputBatch splits frames across as many datagrams as needed to stay
// within maxDatagramSize, rather than silently truncating a batch that
// would otherwise overflow one datagram. A frame that overflows the budget
// on its own is emitted alone in a datagram larger than maxDatagramSize.
func (c *codec) encodeInputBatch(senderID PeerID, frames []FrameInput) ([][]byte, error) {
	var out [][]byte
	batch := make([]wireFrame, 0, len(frames))
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		payload, err := cbor.Marshal(wireInputMessageArray{SenderID: senderID, Frames: batch})
		if err != nil {
			return fmt.Errorf("lockstep: encode InputMessageArray: %w", err)
		}
		out = append(out, c.frame(kindInputBatch, payload))
		batch = batch[:0]
		return nil
	}

	for _, f := range frames {
		batch = append(batch, wireFrameOf(f))
		payload, err := cbor.Marshal(wireInputMessageArray{SenderID: senderID, Frames: batch})
		if err != nil {
			return nil, fmt.Errorf("lockstep: encode InputMessageArray: %w", err)
		}
		if len(payload)+headerSize > c.maxDatagramSize && len(batch) > 1 {
			// This frame pushed us over budget; flush everything before it
			// and start a fresh batch with just this frame.
			batch = batch[:len(batch)-1]
			if err := flush(); err != nil {
				return nil, err
			}
			batch = append(batch, wireFrameOf(f))
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *codec) encodeAck(ack FrameACK) ([]byte, error) {
	payload, err := cbor.Marshal(ackMessage{SenderID: ack.SenderID, CumulativeAck: ack.CumulativeAck, SelectiveAcks: ack.SelectiveAcks})
	if err != nil {
		return nil, fmt.Errorf("lockstep: encode FrameACK: %w", err)
	}
	return c.frame(kindAck, payload), nil
}

func (c *codec) encodeKeepAlive() ([]byte, error) {
	payload, err := cbor.Marshal(KeepAlive{})
	if err != nil {
		return nil, fmt.Errorf("lockstep: encode KeepAlive: %w", err)
	}
	return c.frame(kindKeepAlive, payload), nil
}

// frame prepends the kind/flags header, compressing the payload first if it
// is large enough to be worth it.
func (c *codec) frame(kind messageKind, payload []byte) []byte {
	flags := byte(0)
	if c.compressionThreshold > 0 && len(payload) >= c.compressionThreshold {
		compressed := snappy.Encode(nil, payload)
		if len(compressed) < len(payload) {
			payload = compressed
			flags |= flagCompressed
		}
	}
	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, byte(kind), flags)
	out = append(out, payload...)
	return out
}

// decode parses one datagram into a decodedMessage, or returns an
// ErrMalformed-wrapped error for an unknown kind or a codec failure, per §7
// (the caller logs and drops rather than propagating further).
func (c *codec) decode(datagram []byte) (decodedMessage, error) {
	if len(datagram) < headerSize {
		return decodedMessage{}, fmt.Errorf("%w: datagram shorter than header", ErrMalformed)
	}
	kind := messageKind(datagram[0])
	flags := datagram[1]
	payload := datagram[headerSize:]

	if flags&flagCompressed != 0 {
		decompressed, err := snappy.Decode(nil, payload)
		if err != nil {
			return decodedMessage{}, fmt.Errorf("%w: snappy decode: %v", ErrMalformed, err)
		}
		payload = decompressed
	}

	switch kind {
	case kindInput:
		var w wireInputMessage
		if err := cbor.Unmarshal(payload, &w); err != nil {
			return decodedMessage{}, fmt.Errorf("%w: decode InputMessage: %v", ErrMalformed, err)
		}
		return decodedMessage{Kind: kindInput, Input: InputMessage{SenderID: w.SenderID, Frame: w.Frame.toFrameInput()}}, nil

	case kindInputBatch:
		var w wireInputMessageArray
		if err := cbor.Unmarshal(payload, &w); err != nil {
			return decodedMessage{}, fmt.Errorf("%w: decode InputMessageArray: %v", ErrMalformed, err)
		}
		frames := make([]FrameInput, len(w.Frames))
		for i, wf := range w.Frames {
			frames[i] = wf.toFrameInput()
		}
		return decodedMessage{Kind: kindInputBatch, Batch: InputMessageArray{SenderID: w.SenderID, Frames: frames}}, nil

	case kindAck:
		var w ackMessage
		if err := cbor.Unmarshal(payload, &w); err != nil {
			return decodedMessage{}, fmt.Errorf("%w: decode FrameACK: %v", ErrMalformed, err)
		}
		return decodedMessage{Kind: kindAck, Ack: newFrameACK(w.SenderID, w.CumulativeAck, w.SelectiveAcks)}, nil

	case kindKeepAlive:
		return decodedMessage{Kind: kindKeepAlive, KeepAlive: KeepAlive{}}, nil

	default:
		return decodedMessage{}, fmt.Errorf("%w: unknown message kind %d", ErrMalformed, kind)
	}
}
