package chat

// Mode is the credential mode of a connection.
type Mode string

const (
	// ModeAuthenticated means the connection presented a bearer token.
	ModeAuthenticated Mode = "authenticated"
	// ModeAnonymous means the connection fell back to the widget-style
	// anonymous path.
	ModeAnonymous Mode = "anonymous"
)

// State is the session's connection state. Exactly one state is active at a
// time; transitions go through Session.to so illegal moves are caught in
// debug logs rather than silently corrupting the machine.
type State int

const (
	// StateIdle is the zero state before the first connect cycle starts.
	StateIdle State = iota
	// StateConnectingAuth is an in-flight authenticated connect attempt.
	StateConnectingAuth
	// StateConnectingAnon is an in-flight anonymous connect attempt.
	StateConnectingAnon
	// StateConnected is an established connection (mode says which kind).
	StateConnected
	// StateDisconnected is a dropped or deliberately closed connection.
	StateDisconnected
	// StateFailed is a terminal connect failure after the attempt cap.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnectingAuth:
		return "connecting-auth"
	case StateConnectingAnon:
		return "connecting-anon"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnStatus is the coarse status surfaced to views.
type ConnStatus string

const (
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusDisconnected ConnStatus = "disconnected"
	StatusError        ConnStatus = "error"
)

// ConnStatus collapses the session state into the four view-facing values.
func (s State) ConnStatus() ConnStatus {
	switch s {
	case StateConnectingAuth, StateConnectingAnon, StateIdle:
		return StatusConnecting
	case StateConnected:
		return StatusConnected
	case StateFailed:
		return StatusError
	default:
		return StatusDisconnected
	}
}

// validTransition reports whether moving from one state to another is part
// of the connect algorithm. Reconnection cycles re-enter the connecting
// states from disconnected.
func validTransition(from, to State) bool {
	if from == to {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateConnectingAuth || to == StateConnectingAnon
	case StateConnectingAuth:
		return to == StateConnectingAnon || to == StateConnected ||
			to == StateDisconnected || to == StateFailed
	case StateConnectingAnon:
		return to == StateConnected || to == StateDisconnected || to == StateFailed
	case StateConnected:
		return to == StateDisconnected
	case StateDisconnected:
		return to == StateConnectingAuth || to == StateConnectingAnon || to == StateFailed
	case StateFailed:
		return to == StateConnectingAuth || to == StateConnectingAnon || to == StateDisconnected
	default:
		return false
	}
}
