package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exsim"

// Logon rejection reasons used as the "reason" label.
const (
	ReasonNoMatch     = "no_match"
	ReasonDuplicate   = "duplicate"
	ReasonRateLimited = "rate_limited"
	ReasonTimeout     = "timeout"
	ReasonProtocol    = "protocol"
	ReasonStore       = "store"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// Connection metrics
	ConnectionsAccepted *prometheus.CounterVec
	LogonsAccepted      *prometheus.CounterVec
	LogonsRejected      *prometheus.CounterVec
	SessionsActive      prometheus.Gauge

	// Message metrics
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
}

// NewRegistry creates a registry with the exsim metrics and the standard
// Go and process collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		ConnectionsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acceptor",
			Name:      "connections_accepted_total",
			Help:      "Inbound TCP connections accepted, by listening address.",
		}, []string{"address"}),
		LogonsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acceptor",
			Name:      "logons_accepted_total",
			Help:      "Logons accepted, by session kind (static or dynamic).",
		}, []string{"kind"}),
		LogonsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acceptor",
			Name:      "logons_rejected_total",
			Help:      "Logons rejected, by reason.",
		}, []string{"reason"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "acceptor",
			Name:      "sessions_active",
			Help:      "Sessions currently logged on.",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "FIX messages received, by MsgType.",
		}, []string{"msg_type"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_sent_total",
			Help:      "FIX messages sent, by MsgType.",
		}, []string{"msg_type"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ConnectionsAccepted,
		r.LogonsAccepted,
		r.LogonsRejected,
		r.SessionsActive,
		r.MessagesReceived,
		r.MessagesSent,
	)
	return r
}

// Prometheus returns the underlying registry for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
