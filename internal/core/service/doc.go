// Package service provides the acceptor core of exsim.
//
// The package turns session settings into a running, managed acceptor:
//
//   - ResolveTemplates: groups AcceptorTemplate sections by listening address
//   - DynamicSessionMatcher: admits inbound peers on one address by template
//   - AcceptorService: engine construction, registration, start and stop
//
// The protocol engine and the management registry are reached only through
// the Engine and Registry interfaces, so the core can be exercised with
// in-memory fakes.
package service
