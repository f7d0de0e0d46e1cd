package lockstep

import (
	"errors"
	"fmt"
)

// Error taxonomy per the error handling design: transient per-datagram
// errors are absorbed by the receiver worker, state-corruption errors are
// fatal, and there is no user-level retry API.
var (
	// ErrDuplicate marks a push of a frame already seen; silently ignored by
	// the caller, exposed here only so tests and logging can recognize it.
	ErrDuplicate = errors.New("lockstep: duplicate frame")

	// ErrOutOfWindow marks a frame whose number is below bufferHead.
	ErrOutOfWindow = errors.New("lockstep: frame below buffer head")

	// ErrMalformed marks a deserialization/codec failure. The datagram is
	// dropped and the receiver worker continues.
	ErrMalformed = errors.New("lockstep: malformed datagram")

	// ErrUnreachable marks a socket-level unreachable/timeout condition.
	// Whether to mark the peer disconnected is left to the host via
	// Config.OnPeerUnreachable.
	ErrUnreachable = errors.New("lockstep: peer unreachable")

	// ErrInterrupted marks cancellation of a blocking wait: a barrier Await
	// after Cancel, or Session.Tick when its context is cancelled or the
	// session is closed. It propagates up to the caller.
	ErrInterrupted = errors.New("lockstep: interrupted")

	// ErrInvariant marks an impossible state. It is fatal: the session
	// terminates.
	ErrInvariant = errors.New("lockstep: invariant violated")

	// ErrClosed names the closed-session condition. No Session method
	// returns it: Tick reports ErrInterrupted after Close, and
	// SubmitLocalInput does not check whether the session is closed.
	ErrClosed = errors.New("lockstep: session closed")
)

// invariantError wraps ErrInvariant with a formatted message so callers can
// still errors.Is(err, ErrInvariant) while getting a specific diagnostic.
type invariantError struct {
	msg string
}

func (e *invariantError) Error() string { return e.msg }
func (e *invariantError) Unwrap() error { return ErrInvariant }

func errInvariantMsg(format string, args ...interface{}) error {
	return &invariantError{msg: fmt.Sprintf("lockstep: invariant violated: "+format, args...)}
}
