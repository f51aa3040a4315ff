// Package call owns one bridged telephony call: the turn/interruption state
// machine, the duplex relay between the media stream and the speech-model
// backend, booking extraction, and at-most-once persistence.
package call

// State tracks where a call session is in its lifecycle. Transitions are
// driven solely by relay events, never by a clock, and Closed is terminal.
type State int

const (
	StateInit State = iota
	StateAwaitingStream
	StateActive
	StateInterrupted
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingStream:
		return "awaiting_stream"
	case StateActive:
		return "active"
	case StateInterrupted:
		return "interrupted"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further audio or text may be processed.
func (s State) Terminal() bool {
	return s == StateClosed
}

// forwarding reports whether inbound caller audio may be relayed. The stream
// identifier is guaranteed set once the session reaches Active, so gating on
// this also resolves the read-after-write hazard on the SID.
func (s State) forwarding() bool {
	return s == StateActive || s == StateInterrupted
}
