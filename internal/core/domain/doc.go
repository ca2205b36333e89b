// Package domain defines the core domain models for exsim.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - SessionID: FIX session identity, usable as a wildcard pattern
//   - ListeningAddress: the (host, port) pair an acceptor binds to
//   - TemplateMapping / TemplateTable: templates grouped by address
//   - SessionSpec / SessionProvider: the contract between matchers and the engine
//   - Errors: categorized error definitions
package domain
