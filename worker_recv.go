package lockstep

import (
	"errors"
	"net"
	"time"

	"github.com/aristanetworks/goarista/monotime"
)

// receiveLoop drains the socket, demultiplexes by sender address, and
// routes InputMessage/InputMessageArray to the matching ReceivingQueue and
// FrameACK to the matching TransmissionQueue. It is the sole owner of the
// "receiver worker" role described in §2/§5: the only suspension point is
// the socket read itself, bounded by SocketReadTimeout so the stop flag is
// checked regularly.
func (s *Session) receiveLoop() error {
	bufSize := s.cfg.MaxDatagramSize + headerSize + 32

	for {
		if s.stopped.Load() {
			return nil
		}

		buf := s.pool.Get(bufSize)

		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.SocketReadTimeout)); err != nil {
			s.pool.Put(buf)
			return err
		}
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			s.pool.Put(buf)
			if isTimeout(err) {
				s.checkIdlePeers()
				continue
			}
			if s.stopped.Load() {
				return nil
			}
			return err
		}

		senderID, ok := s.addrToPeer[addr.String()]
		if !ok {
			s.logger.Warn("datagram from unknown peer address", Field{"addr", addr.String()})
			s.pool.Put(buf)
			continue
		}

		msg, err := s.codec.decode(buf[:n])
		s.pool.Put(buf)
		if err != nil {
			s.logger.Warn("dropping malformed datagram", Field{"peer", senderID}, Field{"error", err})
			continue
		}

		s.lastSeenNanos[senderID].Store(monotime.Now())
		s.unreachableFired[senderID].Store(false)
		s.handleDecoded(senderID, msg)
	}
}

func (s *Session) handleDecoded(senderID PeerID, msg decodedMessage) {
	switch msg.Kind {
	case kindInput:
		s.routeInput(senderID, []FrameInput{msg.Input.Frame})
	case kindInputBatch:
		s.routeInput(senderID, msg.Batch.Frames)
	case kindAck:
		if q, ok := s.sendQueues[senderID]; ok {
			q.ProcessACK(msg.Ack)
		}
	case kindKeepAlive:
		// lastSeen was already refreshed above; nothing else to do.
	}
}

func (s *Session) routeInput(senderID PeerID, frames []FrameInput) {
	q, ok := s.recvQueues[senderID]
	if !ok {
		return
	}
	ack := q.Push(frames)
	// Label the outgoing ACK with the remote's id, per §6: the wire
	// SenderID on an ACK names the peer being acknowledged from the
	// receiver's perspective, which from our sending side is senderID.
	ack.SenderID = senderID
	s.ackOutbox[senderID].set(ack)
}

// checkIdlePeers judges §7 Unreachable from the monotonic "last seen"
// timestamp rather than a counted streak: a peer is unreachable once
// monotime.Now() has drifted past its last datagram by at least
// UnreachableThreshold read-timeout windows. unreachableFired debounces the
// callback to once per silence streak.
func (s *Session) checkIdlePeers() {
	if s.cfg.UnreachableThreshold <= 0 || s.cfg.OnPeerUnreachable == nil {
		return
	}
	threshold := uint64(s.cfg.UnreachableThreshold) * uint64(s.cfg.SocketReadTimeout)
	now := monotime.Now()
	for _, id := range s.peerOrder {
		elapsed := now - s.lastSeenNanos[id].Load()
		if elapsed < threshold {
			continue
		}
		if s.unreachableFired[id].CompareAndSwap(false, true) {
			s.logger.Warn("peer unreachable", Field{"peer", id})
			s.cfg.OnPeerUnreachable(id)
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
