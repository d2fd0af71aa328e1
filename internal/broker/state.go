package broker

// State is the connection lifecycle position. A connection is in exactly
// one state at any instant.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshakeSent
	StateAuthenticated
	StateReady
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshakeSent:
		return "handshake_sent"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	default:
		return "unknown"
	}
}
