package dbus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsNilRegistererReturnsNil(t *testing.T) {
	m := newMetrics(nil, func() float64 { return 0 })
	if m != nil {
		t.Fatal("newMetrics(nil, ...) should return a nil *Metrics")
	}
	// Methods on a nil *Metrics must be no-ops, not panics.
	m.setState(StateReady)
	m.incReconnectAttempt()
	m.observeHealthCheckMs(1.5)
}

func TestNewMetricsRegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg, func() float64 { return 3 })
	if m == nil {
		t.Fatal("newMetrics with a registerer returned nil")
	}

	m.setState(StateReady)
	if got := testutil.ToFloat64(m.state); got != float64(StateReady) {
		t.Errorf("conn_state = %v, want %v", got, float64(StateReady))
	}

	m.incReconnectAttempt()
	m.incReconnectAttempt()
	if got := testutil.ToFloat64(m.reconnectAttempt); got != 2 {
		t.Errorf("reconnect_attempts_total = %v, want 2", got)
	}

	if got := testutil.ToFloat64(m.pendingReplies); got != 3 {
		t.Errorf("pending_replies = %v, want 3", got)
	}

	m.observeHealthCheckMs(10)
}
