// Package config defines the exsim process configuration.
//
// The acceptor's sessions are described by a session settings file (see
// internal/settings). This package covers everything around it: logging,
// the management endpoints, engine timeouts and the message store.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: validation before startup
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// EXSIM_* environment variables and command line flags.
package config
