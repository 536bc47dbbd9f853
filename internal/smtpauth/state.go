package smtpauth

// State represents the current state in the handshake state machine.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateHeloSent
	StateAuthLoginSent
	StateUsernameSent
	StatePasswordSent
	StateCompleted

	// StateFailed is terminal; the attempt ended on a transport error.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateHeloSent:
		return "HELO_SENT"
	case StateAuthLoginSent:
		return "AUTH_LOGIN_SENT"
	case StateUsernameSent:
		return "USERNAME_SENT"
	case StatePasswordSent:
		return "PASSWORD_SENT"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
