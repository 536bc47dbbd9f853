package event

import "context"

// Redacted replaces each sensitive payload entry.
const Redacted = "[redacted]"

// Redact wraps next so that sensitive payloads are replaced before delivery.
func Redact(next Observer) Observer {
	next = OrNop(next)
	return ObserverFunc(func(ctx context.Context, ev Event) {
		next.Observe(ctx, redacted(ev))
	})
}

func redacted(ev Event) Event {
	if !ev.Sensitive || len(ev.Payload) == 0 {
		return ev
	}
	payload := make([]string, len(ev.Payload))
	for i := range payload {
		payload[i] = Redacted
	}
	ev.Payload = payload
	return ev
}
