// Package tlsroots loads the certificates of TLS acceptor listeners.
//
//   - roots.go: CA pools for verifying client certificates
//   - watcher.go: server certificate hot reload via fsnotify
//
// A renewed certificate is picked up by new handshakes without restarting
// the listener.
package tlsroots
