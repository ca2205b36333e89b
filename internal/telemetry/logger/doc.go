// Package logger builds the process *slog.Logger.
//
// Text and JSON output are supported. The level is held in a shared
// slog.LevelVar so it can be changed at runtime with SetLevel. Every
// attribute passes through redaction before it is written: values under
// credential-like keys are masked, and raw FIX messages keep their
// structure with only the password fields masked (see RedactFIX).
package logger
