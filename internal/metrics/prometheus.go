package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	// Check metrics
	checksTotal       *prometheus.CounterVec
	authAttemptsTotal *prometheus.CounterVec
	checkDuration     *prometheus.HistogramVec

	// Connection metrics
	connectionsTotal   prometheus.Counter
	connectionsActive  prometheus.Gauge
	tlsConnectionTotal prometheus.Counter

	// Protocol metrics
	linesTotal *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailauth_checks_total",
			Help: "Total number of credential checks started.",
		}, []string{"server_type"}),
		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailauth_auth_attempts_total",
			Help: "Total number of completed authentication attempts by outcome.",
		}, []string{"server_type", "outcome"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailauth_check_duration_seconds",
			Help:    "Wall-clock duration of authentication attempts.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"server_type"}),

		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailauth_connections_total",
			Help: "Total number of connections opened to mail servers.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailauth_connections_active",
			Help: "Number of currently open connections to mail servers.",
		}),
		tlsConnectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailauth_tls_connections_total",
			Help: "Total number of TLS sessions established.",
		}),

		linesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailauth_protocol_lines_total",
			Help: "Total number of protocol lines exchanged.",
		}, []string{"direction"}),
	}

	// Register all metrics
	reg.MustRegister(
		c.checksTotal,
		c.authAttemptsTotal,
		c.checkDuration,
		c.connectionsTotal,
		c.connectionsActive,
		c.tlsConnectionTotal,
		c.linesTotal,
	)

	return c
}

// CheckStarted increments the check counter.
func (c *PrometheusCollector) CheckStarted(serverType string) {
	c.checksTotal.WithLabelValues(serverType).Inc()
}

// AuthAttempt increments the attempts counter and observes the attempt duration.
func (c *PrometheusCollector) AuthAttempt(serverType, outcome string, elapsed time.Duration) {
	c.authAttemptsTotal.WithLabelValues(serverType, outcome).Inc()
	c.checkDuration.WithLabelValues(serverType).Observe(elapsed.Seconds())
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// TLSConnectionEstablished increments the TLS connection counter.
func (c *PrometheusCollector) TLSConnectionEstablished() {
	c.tlsConnectionTotal.Inc()
}

// LineExchanged increments the protocol line counter.
func (c *PrometheusCollector) LineExchanged(direction string) {
	c.linesTotal.WithLabelValues(direction).Inc()
}
