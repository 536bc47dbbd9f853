package metrics

import "time"

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// CheckStarted is a no-op.
func (n *NoopCollector) CheckStarted(serverType string) {}

// AuthAttempt is a no-op.
func (n *NoopCollector) AuthAttempt(serverType, outcome string, elapsed time.Duration) {}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// TLSConnectionEstablished is a no-op.
func (n *NoopCollector) TLSConnectionEstablished() {}

// LineExchanged is a no-op.
func (n *NoopCollector) LineExchanged(direction string) {}

// OrNoop returns c, or a NoopCollector when c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return &NoopCollector{}
	}
	return c
}
