package lockstep

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aristanetworks/goarista/monotime"

	"github.com/MeloniZippoProjects/LockstepProject/internal/ops"
)

// ackSlot holds the most recently produced FrameACK destined for one peer,
// coalesced per §4.5: a later push overwrites an earlier one outright,
// keeping only the highest cumulativeAck (selective list taken from the
// latest write, which is always at least as fresh).
type ackSlot struct {
	mu      sync.Mutex
	pending bool
	ack     FrameACK
}

func (s *ackSlot) set(ack FrameACK) {
	s.mu.Lock()
	s.ack = ack
	s.pending = true
	s.mu.Unlock()
}

// takeIfPending returns the buffered ACK and clears the slot, or ok=false
// if nothing is pending.
func (s *ackSlot) takeIfPending() (FrameACK, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return FrameACK{}, false
	}
	s.pending = false
	return s.ack, true
}

// Session owns one ReceivingQueue and one TransmissionQueue per remote
// peer, the shared CyclicBarrier gating the simulation thread, the
// coalescing ACK outbox, and the receiver/sender worker goroutines.
type Session struct {
	cfg    Config
	conn   PacketConn
	codec  *codec
	logger Logger

	barrier *CyclicBarrier
	pool    *BufferPool

	recvQueues map[PeerID]*ReceivingQueue
	sendQueues map[PeerID]*TransmissionQueue
	ackOutbox  map[PeerID]*ackSlot
	peerOrder  []PeerID

	// lastSeenNanos holds, per peer, the monotime.Now() reading at the last
	// datagram received from it. monotime reads the VDSO clock directly
	// rather than going through the runtime's time.Now() allocation, which
	// matters here since every single inbound datagram touches this on the
	// hot receive path. checkIdlePeers reads it back to drive the §7
	// Unreachable determination.
	lastSeenNanos map[PeerID]*atomic.Uint64

	// unreachableFired marks whether OnPeerUnreachable has already been
	// called for the peer's current silence streak, so checkIdlePeers fires
	// it once per streak rather than on every poll past the threshold.
	unreachableFired map[PeerID]*atomic.Bool

	addrToPeer map[string]PeerID

	stopped atomic.Bool
	tracker *ops.Tracker

	closeOnce sync.Once
}

// NewSession constructs a session for the configured peer set, wires every
// ReceivingQueue to one shared barrier sized to the number of remote peers,
// and starts the receiver and sender worker goroutines.
func NewSession(cfg Config, conn PacketConn) (*Session, error) {
	cfg = cfg.withDefaults()
	if len(cfg.PeerAddrs) == 0 {
		return nil, fmt.Errorf("lockstep: Config.PeerAddrs must name at least one remote peer")
	}
	if _, ok := cfg.PeerAddrs[cfg.LocalID]; ok {
		return nil, fmt.Errorf("lockstep: Config.PeerAddrs must not contain LocalID")
	}

	order := cfg.peerOrder()
	barrier := NewCyclicBarrier(len(order))

	s := &Session{
		cfg:              cfg,
		conn:             conn,
		codec:            newCodec(cfg.CompressionThreshold, cfg.MaxDatagramSize),
		logger:           cfg.Logger,
		barrier:          barrier,
		pool:             NewBufferPool(4),
		recvQueues:       make(map[PeerID]*ReceivingQueue, len(order)),
		sendQueues:       make(map[PeerID]*TransmissionQueue, len(order)),
		ackOutbox:        make(map[PeerID]*ackSlot, len(order)),
		peerOrder:        order,
		lastSeenNanos:    make(map[PeerID]*atomic.Uint64, len(order)),
		unreachableFired: make(map[PeerID]*atomic.Bool, len(order)),
		addrToPeer:       make(map[string]PeerID, len(order)),
		tracker:          ops.NewTracker(),
	}

	now := monotime.Now()
	for _, id := range order {
		s.recvQueues[id] = NewReceivingQueue(id, cfg.InitialFrame, barrier, cfg.MaxPendingAheadOfHead, cfg.Logger)
		s.sendQueues[id] = NewTransmissionQueue(id, cfg.InitialFrame)
		s.ackOutbox[id] = &ackSlot{}
		s.lastSeenNanos[id] = &atomic.Uint64{}
		s.lastSeenNanos[id].Store(now)
		s.unreachableFired[id] = &atomic.Bool{}
		s.addrToPeer[cfg.PeerAddrs[id].String()] = id
	}

	s.tracker.Go("lockstep-receiver", s.receiveLoop)
	s.tracker.Go("lockstep-sender", s.sendLoop)

	return s, nil
}

// Tick is the simulation-thread entry point: it blocks on the barrier,
// then pops exactly one frame from every remote peer's ReceivingQueue in
// the fixed configured peer order, returning the per-peer frame map. It
// returns ErrInterrupted if ctx is cancelled or the session is closed while
// waiting.
func (s *Session) Tick(ctx context.Context) (map[PeerID]FrameInput, error) {
	if s.stopped.Load() {
		return nil, ErrInterrupted
	}

	done := make(chan error, 1)
	go func() { done <- s.barrier.Await() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ErrInterrupted
	}

	out := make(map[PeerID]FrameInput, len(s.peerOrder))
	for _, id := range s.peerOrder {
		frame, ok := s.recvQueues[id].Pop()
		if !ok {
			// Invariant P3/§5 ordering guarantee: the barrier only releases
			// once every peer has contributed the frame at its bufferHead,
			// so an empty pop here means that guarantee was violated, which
			// terminates the session.
			err := errInvariantMsg("barrier released but peer %v has no frame at its buffer head", id)
			s.fatal(err)
			return nil, err
		}
		out[id] = frame
	}
	return out, nil
}

// SubmitLocalInput forwards a locally produced input to every remote
// peer's TransmissionQueue, since the local peer's input must reach each
// remote the same way any other peer's input reaches this process.
func (s *Session) SubmitLocalInput(input FrameInput) error {
	for _, id := range s.peerOrder {
		if err := s.sendQueues[id].EnqueueLocal(input); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until both worker goroutines have exited and returns the
// first failure either reported, or nil after a clean Close().
func (s *Session) Wait() error {
	return s.tracker.Wait()
}

// Close requests a cooperative shutdown: the stop flag is set, the barrier
// is cancelled (unblocking the simulation thread with ErrInterrupted), and
// the transport is closed (unblocking a pending socket read). No in-flight
// frame is guaranteed to reach a peer once Close is called.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopped.Store(true)
		s.barrier.Cancel()
		err = s.conn.Close()
	})
	return err
}

func (s *Session) fatal(err error) {
	s.logger.Error("fatal session error", Field{"error", err})
	s.stopped.Store(true)
	s.barrier.Cancel()
	_ = s.conn.Close()
}
