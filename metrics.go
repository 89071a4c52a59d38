package dbus

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional Prometheus instrumentation for a [Conn]
// (SPEC_FULL.md DOMAIN STACK: observability is not named by spec §4.6,
// but a connection library this central to a production stack would be
// expected to expose it). Metrics are registered only when
// [ConnConfig.Registerer] is non-nil; a Conn with no registerer simply
// never touches these fields.
type Metrics struct {
	state            prometheus.Gauge
	reconnectAttempt prometheus.Counter
	healthCheckMs    prometheus.Histogram
	pendingReplies   prometheus.GaugeFunc
}

func newMetrics(reg prometheus.Registerer, pendingLen func() float64) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dbusconn",
			Name:      "conn_state",
			Help:      "Current Conn state, as the ConnState enum's integer value.",
		}),
		reconnectAttempt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dbusconn",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of reconnect attempts made.",
		}),
		healthCheckMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dbusconn",
			Name:      "health_check_latency_ms",
			Help:      "Observed latency of Peer.Ping health checks, in milliseconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.pendingReplies = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dbusconn",
		Name:      "pending_replies",
		Help:      "Number of method calls currently awaiting a reply.",
	}, pendingLen)

	reg.MustRegister(m.state, m.reconnectAttempt, m.healthCheckMs, m.pendingReplies)
	return m
}

func (m *Metrics) setState(s ConnState) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) incReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempt.Inc()
}

func (m *Metrics) observeHealthCheckMs(ms float64) {
	if m == nil {
		return
	}
	m.healthCheckMs.Observe(ms)
}
