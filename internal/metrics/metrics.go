// Package metrics holds the Prometheus collectors exported by the proxy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "socks5d"

// Failure reasons used as the "reason" label of SessionFailures.
const (
	ReasonProtocol  = "protocol"
	ReasonTransport = "transport"
	ReasonResolve   = "resolve"
	ReasonConnect   = "connect"
	ReasonRejected  = "rejected"
)

// Relay directions used as the "direction" label of RelayBytes.
const (
	DirectionUpstream   = "upstream"
	DirectionDownstream = "downstream"
)

var (
	// SessionsActive is the number of sessions currently being served.
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Current number of SOCKS5 sessions",
	})

	// SessionsTotal is the number of accepted sessions.
	SessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total number of accepted SOCKS5 sessions",
	})

	// Replies counts replies sent to clients by reply code name.
	Replies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replies_total",
		Help:      "SOCKS5 replies sent, by reply code",
	}, []string{"code"})

	// SessionFailures counts sessions that ended without relaying.
	SessionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_failures_total",
		Help:      "SOCKS5 sessions that failed before or during setup, by reason",
	}, []string{"reason"})

	// RelayBytes counts relayed payload bytes. upstream is client to target.
	RelayBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_bytes_total",
		Help:      "Bytes relayed between clients and targets, by direction",
	}, []string{"direction"})
)

func init() {
	prometheus.MustRegister(SessionsActive, SessionsTotal, Replies, SessionFailures, RelayBytes)
}

// Register adds the /metrics endpoint to mux.
func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
