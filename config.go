package lockstep

import (
	"net"
	"sort"
	"time"
)

// Config enumerates the session-wide configuration (§6). PeerAddrs and
// LocalID are supplemented here since the hard core's peerIds set must be
// reachable over the transport somehow; how peers discover each other's
// addresses is explicitly out of scope (§1 non-goals).
type Config struct {
	// LocalID is this process's own peer id; it does not get a
	// ReceivingQueue (there is nothing to reorder from yourself) but does
	// get a TransmissionQueue per remote peer's perspective of it.
	LocalID PeerID

	// PeerAddrs lists every remote peer and the address datagrams destined
	// for it should be sent to. LocalID must not appear here.
	PeerAddrs map[PeerID]net.Addr

	// InitialFrame is the frame number all peers start counting from.
	InitialFrame int64

	// BufferSizeHint is advisory only (§9): if MaxPendingAheadOfHead is left
	// unset, withDefaults seeds it from BufferSizeHint, so setting this
	// alone is enough to cap the reorder buffer without naming
	// MaxPendingAheadOfHead explicitly. <= 0 leaves the reorder buffer
	// unbounded, as the spec recommends.
	BufferSizeHint int

	// MaxPendingAheadOfHead optionally caps how far ahead of bufferHead a
	// ReceivingQueue will buffer a frame before rejecting it outright. <= 0
	// (the default) means unbounded, matching the spec's stated preference
	// for unbounded correctness over a NACK scheme, unless BufferSizeHint
	// supplies a default (see withDefaults).
	MaxPendingAheadOfHead int64

	TickRateHz            int
	RetransmissionTimeout time.Duration
	SocketReadTimeout     time.Duration

	// MaxDatagramSize bounds the serialized size of outgoing input batches:
	// a batch that would overflow it is split across datagrams (§6). A
	// single frame whose encoding alone exceeds it is still sent as one
	// datagram over the limit.
	MaxDatagramSize int

	// CompressionThreshold is the minimum encoded payload size, in bytes,
	// before the codec attempts snappy compression. <= 0 selects the
	// default, MaxDatagramSize (see withDefaults); a session always has
	// compression enabled at some threshold.
	CompressionThreshold int

	// UnreachableThreshold is how many SocketReadTimeout windows' worth of
	// silence from a peer (measured against its monotonic last-seen
	// timestamp) must elapse before OnPeerUnreachable fires for it. <= 0
	// disables the idle check.
	UnreachableThreshold int

	// OnPeerUnreachable, if set, is invoked when a peer is judged
	// unreachable (§7 Unreachable kind). Marking the peer disconnected is
	// left to the host; the library itself keeps the queues around.
	OnPeerUnreachable func(PeerID)

	Logger Logger
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// sensible defaults.
func (cfg Config) withDefaults() Config {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 60
	}
	if cfg.RetransmissionTimeout <= 0 {
		cfg.RetransmissionTimeout = 100 * time.Millisecond
	}
	if cfg.SocketReadTimeout <= 0 {
		cfg.SocketReadTimeout = 200 * time.Millisecond
	}
	if cfg.MaxDatagramSize <= 0 {
		cfg.MaxDatagramSize = 300
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = cfg.MaxDatagramSize
	}
	if cfg.MaxPendingAheadOfHead <= 0 && cfg.BufferSizeHint > 0 {
		cfg.MaxPendingAheadOfHead = int64(cfg.BufferSizeHint)
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return cfg
}

// peerOrder returns the configured remote peer ids in a fixed, stable
// order (sorted ascending), used wherever the spec requires the simulation
// thread to visit peers "in a fixed peer order".
func (cfg Config) peerOrder() []PeerID {
	ids := make([]PeerID, 0, len(cfg.PeerAddrs))
	for id := range cfg.PeerAddrs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
