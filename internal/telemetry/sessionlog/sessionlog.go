// Package sessionlog provides per-session FIX message and event logs.
//
// Each session gets its own named hclog logger, so screen output reads
// like the classic FIX engine screen log:
//
//	2026-01-02T15:04:05.000Z [INFO]  FIX.4.4:EXEC->CLIENT1: incoming: msg="8=FIX.4.4|9=..."
package sessionlog

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
	"github.com/sudheendrakatikar/exsim/internal/telemetry/logger"
)

// Log records the traffic and lifecycle events of one session.
type Log interface {
	OnIncoming(msg []byte)
	OnOutgoing(msg []byte)
	OnEvent(text string)
	OnErrorEvent(text string)
}

// Factory creates the log of a session.
type Factory interface {
	Create(id domain.SessionID) Log
}

// ScreenOptions selects what a screen log prints.
type ScreenOptions struct {
	Incoming bool
	Outgoing bool
	Events   bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// JSON switches hclog to JSON lines.
	JSON bool
}

// DefaultScreenOptions logs everything to stdout.
func DefaultScreenOptions() ScreenOptions {
	return ScreenOptions{Incoming: true, Outgoing: true, Events: true, Output: os.Stdout}
}

// ScreenLogFactory writes session logs through hclog.
type ScreenLogFactory struct {
	opts ScreenOptions
	root hclog.Logger
}

// NewScreenLogFactory creates a factory with the given options.
func NewScreenLogFactory(opts ScreenOptions) *ScreenLogFactory {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	root := hclog.New(&hclog.LoggerOptions{
		Name:       "fix",
		Level:      hclog.Info,
		Output:     opts.Output,
		JSONFormat: opts.JSON,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return &ScreenLogFactory{opts: opts, root: root}
}

// Create returns a logger named after the session.
func (f *ScreenLogFactory) Create(id domain.SessionID) Log {
	return &screenLog{
		opts:   f.opts,
		logger: f.root.Named(id.String()),
	}
}

type screenLog struct {
	opts   ScreenOptions
	logger hclog.Logger
}

func (l *screenLog) OnIncoming(msg []byte) {
	if l.opts.Incoming {
		l.logger.Info("incoming", "msg", printable(msg))
	}
}

func (l *screenLog) OnOutgoing(msg []byte) {
	if l.opts.Outgoing {
		l.logger.Info("outgoing", "msg", printable(msg))
	}
}

func (l *screenLog) OnEvent(text string) {
	if l.opts.Events {
		l.logger.Info("event", "text", text)
	}
}

func (l *screenLog) OnErrorEvent(text string) {
	l.logger.Error("event", "text", text)
}

// printable replaces the SOH field delimiter with '|' and masks password
// fields.
func printable(msg []byte) string {
	return logger.RedactFIX(strings.ReplaceAll(string(msg), "\x01", "|"))
}

// NullLogFactory discards everything.
type NullLogFactory struct{}

// Create returns a log that discards everything.
func (NullLogFactory) Create(domain.SessionID) Log { return nullLog{} }

type nullLog struct{}

func (nullLog) OnIncoming([]byte)   {}
func (nullLog) OnOutgoing([]byte)   {}
func (nullLog) OnEvent(string)      {}
func (nullLog) OnErrorEvent(string) {}
