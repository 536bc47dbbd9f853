package mailauth

import "time"

// Outcome is the verdict of an authentication attempt.
type Outcome int

const (
	// OutcomeNotRun means no attempt has been made yet.
	OutcomeNotRun Outcome = iota

	// OutcomeAuthenticated means the server accepted the credentials.
	OutcomeAuthenticated

	// OutcomeRejected means the server was reached and did not accept the
	// credentials.
	OutcomeRejected

	// OutcomeUndetermined means the server could not be reached or stopped
	// answering; nothing is known about the credentials.
	OutcomeUndetermined
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeNotRun:
		return "not_run"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUndetermined:
		return "undetermined"
	default:
		return "unknown"
	}
}

// Result is the outcome of one attempt.
type Result struct {
	Outcome    Outcome
	ServerType ServerType

	// Detail holds the transport failure behind an undetermined outcome.
	Detail error

	// Diagnostics are messages reported by a mailbox session.
	Diagnostics []string

	Elapsed time.Duration
}

// Authenticated reports whether the credentials were accepted.
func (r Result) Authenticated() bool {
	return r.Outcome == OutcomeAuthenticated
}

// Known reports whether the attempt reached a verdict.
func (r Result) Known() bool {
	return r.Outcome == OutcomeAuthenticated || r.Outcome == OutcomeRejected
}
