// Package metrics provides interfaces and implementations for collecting
// credential check metrics. This package defines the Collector interface for
// recording metrics and a textfile exporter for one-shot runs.
package metrics

import "time"

// Direction labels for LineExchanged.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Collector defines the interface for recording check metrics.
type Collector interface {
	// Check metrics
	CheckStarted(serverType string)
	AuthAttempt(serverType, outcome string, elapsed time.Duration)

	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()
	TLSConnectionEstablished()

	// Protocol metrics
	LineExchanged(direction string)
}
