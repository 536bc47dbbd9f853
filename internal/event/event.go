// Package event defines the diagnostic stream emitted while a credential
// check runs: configuration changes, socket operations, every protocol line
// and the final result.
package event

import (
	"context"
	"sync"
)

// Kind classifies an Event.
type Kind int

const (
	// KindConfig is a successful configuration mutation.
	KindConfig Kind = iota

	// KindState is a handshake state transition.
	KindState

	// KindConnect is a connection attempt or its outcome.
	KindConnect

	// KindSend is a protocol line written to the server.
	KindSend

	// KindReceive is a protocol line read from the server.
	KindReceive

	// KindWarning carries failed connection attempts and transport or protocol
	// diagnostics.
	KindWarning

	// KindResult is the terminal outcome of an attempt.
	KindResult
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindState:
		return "state"
	case KindConnect:
		return "connect"
	case KindSend:
		return "send"
	case KindReceive:
		return "receive"
	case KindWarning:
		return "warning"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// Event is a single diagnostic record.
type Event struct {
	Kind        Kind
	Description string
	Payload     []string

	// Sensitive marks payloads holding credential material. Producers never
	// redact; observers decide.
	Sensitive bool
}

// Observer receives events. Implementations must be safe to call from the
// goroutine running the check; they should not block for long.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f(ctx, ev).
func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// NopObserver discards all events.
type NopObserver struct{}

// Observe is a no-op.
func (NopObserver) Observe(context.Context, Event) {}

// OrNop returns o, or a NopObserver when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}

// Emit is a shorthand for building and delivering an event.
func Emit(ctx context.Context, o Observer, kind Kind, desc string, payload ...string) {
	o.Observe(ctx, Event{Kind: kind, Description: desc, Payload: payload})
}

// EmitSensitive is Emit with the Sensitive flag set.
func EmitSensitive(ctx context.Context, o Observer, kind Kind, desc string, payload ...string) {
	o.Observe(ctx, Event{Kind: kind, Description: desc, Payload: payload, Sensitive: true})
}

// Recorder keeps every event it observes. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Observe appends ev.
func (r *Recorder) Observe(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of the given kind, in order.
func (r *Recorder) OfKind(kind Kind) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
