// Package metrics provides Prometheus instrumentation for the rpc package,
// grounded on the Rust original's tacho::Counter-based Metrics struct and
// styled after this module's dependency pack's nil-safe, registerOrReuse
// collector pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EndpointMetrics tracks per-remote-endpoint Connection activity. All
// methods are nil-safe: calls on a nil *EndpointMetrics are no-ops, so
// callers never need to branch on whether metrics were configured.
type EndpointMetrics struct {
	// ProxyErrors counts errors observed by a Connection, labeled by the
	// remote address and the state the Connection was in when the error
	// occurred (connecting, negotiating, connected).
	ProxyErrors *prometheus.CounterVec

	// Dispatched counts RPCs handed off to a Connection for
	// transmission, labeled by remote address.
	Dispatched *prometheus.CounterVec

	// Completed counts completed RPCs, labeled by remote address and
	// outcome. The rpc package records only successful responses, under
	// outcome "ok"; RPCs that end in an error, a timeout, a cancellation
	// or a reset are not counted.
	Completed *prometheus.CounterVec

	// ThrottleLimit reports the adaptive throttle ceiling for a
	// connection, labeled by remote address. The rpc package sets it only
	// when the throttle is halved; the growth after successful responses
	// and the return to the full queue length on connect are not reported.
	ThrottleLimit *prometheus.GaugeVec
}

// NewEndpointMetrics creates and registers endpoint metrics with reg. If reg
// is nil, the collectors are created but never registered, which is useful
// in tests that construct a Connection without a Prometheus registry.
func NewEndpointMetrics(reg prometheus.Registerer) *EndpointMetrics {
	m := &EndpointMetrics{
		ProxyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kudugo",
			Subsystem: "proxy",
			Name:      "errors_total",
			Help:      "Total number of errors observed by a connection, by remote address and state",
		}, []string{"addr", "state"}),
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kudugo",
			Subsystem: "proxy",
			Name:      "rpcs_dispatched_total",
			Help:      "Total number of RPCs handed to a connection for transmission",
		}, []string{"addr"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kudugo",
			Subsystem: "proxy",
			Name:      "rpcs_completed_total",
			Help:      "Total number of RPCs completed, by remote address and outcome",
		}, []string{"addr", "outcome"}),
		ThrottleLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kudugo",
			Subsystem: "proxy",
			Name:      "throttle_limit",
			Help:      "Current adaptive in-flight RPC ceiling for a connection",
		}, []string{"addr"}),
	}

	if reg != nil {
		m.ProxyErrors = registerOrReuse(reg, m.ProxyErrors).(*prometheus.CounterVec)
		m.Dispatched = registerOrReuse(reg, m.Dispatched).(*prometheus.CounterVec)
		m.Completed = registerOrReuse(reg, m.Completed).(*prometheus.CounterVec)
		m.ThrottleLimit = registerOrReuse(reg, m.ThrottleLimit).(*prometheus.GaugeVec)
	}

	return m
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// RecordError increments the error counter for addr in the given state.
func (m *EndpointMetrics) RecordError(addr, state string) {
	if m == nil {
		return
	}
	m.ProxyErrors.WithLabelValues(addr, state).Inc()
}

// RecordDispatched increments the dispatched counter for addr.
func (m *EndpointMetrics) RecordDispatched(addr string) {
	if m == nil {
		return
	}
	m.Dispatched.WithLabelValues(addr).Inc()
}

// RecordCompleted increments the completed counter for addr with outcome.
func (m *EndpointMetrics) RecordCompleted(addr, outcome string) {
	if m == nil {
		return
	}
	m.Completed.WithLabelValues(addr, outcome).Inc()
}

// SetThrottleLimit sets the current throttle ceiling gauge for addr.
func (m *EndpointMetrics) SetThrottleLimit(addr string, limit float64) {
	if m == nil {
		return
	}
	m.ThrottleLimit.WithLabelValues(addr).Set(limit)
}
