package lockstep

import (
	"net"
	"time"
)

// PacketConn is the transport abstraction the session sends and receives
// datagrams over. net.PacketConn (e.g. *net.UDPConn) satisfies it directly.
// Socket construction -- dialing, listening, NAT traversal, discovery -- is
// explicit non-goal per §1 and is entirely the host application's concern;
// the host hands the session an already-set-up PacketConn.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}
