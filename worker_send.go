package lockstep

import "time"

// sendLoop periodically drains every TransmissionQueue for frames due for
// (re)send and flushes the coalesced ACK outbox (§4.9). The retransmission
// timeout governs both the RTO passed to dueForSend and the loop's own
// polling interval (a quarter of the RTO), capped at one tick period so
// retransmission checks run at least once per simulation tick.
func (s *Session) sendLoop() error {
	interval := s.cfg.RetransmissionTimeout / 4
	if tickPeriod := time.Second / time.Duration(s.cfg.TickRateHz); tickPeriod < interval {
		interval = tickPeriod
	}
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rto := func(PeerID) time.Duration { return s.cfg.RetransmissionTimeout }

	for {
		if s.stopped.Load() {
			return nil
		}
		<-ticker.C
		if s.stopped.Load() {
			return nil
		}

		now := time.Now()
		for _, id := range s.peerOrder {
			due := s.sendQueues[id].DueForSend(now, rto)
			if len(due) > 0 {
				if err := s.sendFrames(id, due); err != nil {
					s.logger.Warn("send failed", Field{"peer", id}, Field{"error", err})
				}
			}

			if ack, ok := s.ackOutbox[id].takeIfPending(); ok {
				if err := s.sendAck(id, ack); err != nil {
					s.logger.Warn("ack send failed", Field{"peer", id}, Field{"error", err})
				}
			}
		}
	}
}

func (s *Session) sendFrames(peerID PeerID, frames []FrameInput) error {
	addr := s.cfg.PeerAddrs[peerID]
	if len(frames) == 1 {
		datagram, err := s.codec.encodeInput(InputMessage{SenderID: s.cfg.LocalID, Frame: frames[0]})
		if err != nil {
			return err
		}
		_, err = s.conn.WriteTo(datagram, addr)
		return err
	}

	datagrams, err := s.codec.encodeInputBatch(s.cfg.LocalID, frames)
	if err != nil {
		return err
	}
	for _, d := range datagrams {
		if _, err := s.conn.WriteTo(d, addr); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) sendAck(peerID PeerID, ack FrameACK) error {
	datagram, err := s.codec.encodeAck(ack)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteTo(datagram, s.cfg.PeerAddrs[peerID])
	return err
}
