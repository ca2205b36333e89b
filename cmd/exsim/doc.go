// Package main provides the entry point for exsim.
//
// exsim is a FIX acceptor that admits statically configured sessions and,
// through session templates, counterparties it has never seen before.
//
// Usage:
//
//	exsim [flags] [settings-file]
//
// Without a settings file the bundled executor.cfg is used. Process level
// options (logging, management endpoints, storage) come from --config,
// EXSIM_* environment variables and flags, in increasing priority.
//
// The process runs until Enter is pressed or SIGINT/SIGTERM is received.
package main
