// Package fixserver provides the FIX acceptor engine.
//
// The engine binds every acceptor address named in the session settings,
// reads the Logon of each inbound connection and admits it to a statically
// configured session or to the session provider installed for the address.
// A peer nobody admits is disconnected without a reply; the engine keeps
// serving everyone else.
//
// Files:
//   - wire.go: tag=value framing, BodyLength and CheckSum
//   - server.go: listeners, logon resolution, duplicate detection
//   - session.go: session-level protocol (heartbeats, sequence numbers, logout)
//   - application.go: callbacks into the embedding program
//
// Message persistence and resend are not supported: a ResendRequest is
// answered with a SequenceReset-GapFill.
package fixserver
