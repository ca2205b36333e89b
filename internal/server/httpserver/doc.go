// Package httpserver provides the management HTTP server.
//
// Routes:
//
//	GET /metrics            Prometheus exposition
//	GET /healthz            liveness
//	GET /v1/status          management socket status
//	GET /v1/objects         managed objects
//	GET /v1/objects/:name   one managed object
//
// Every request passes through Recover, RequestID and AccessLog, and
// through Instrument when a Prometheus registerer is configured.
package httpserver
