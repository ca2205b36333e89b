// Package metric provides Prometheus metrics for exsim.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: registry, acceptor and session metrics, HTTP handler
//   - collector.go: snapshot-based collectors for managed objects
//
// Metrics are exposed at /metrics in Prometheus format by the management
// HTTP server.
package metric
