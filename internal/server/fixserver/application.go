package fixserver

import (
	"log/slog"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
)

// Application receives session lifecycle callbacks and messages.
//
// Callbacks run on the session's reader goroutine; an implementation must
// not block for long.
type Application interface {
	// OnCreate is called when a session is created for an admitted logon.
	OnCreate(id domain.SessionID)

	// OnLogon is called after the logon response has been queued.
	OnLogon(id domain.SessionID)

	// OnLogout is called once when a logged-on session ends.
	OnLogout(id domain.SessionID)

	// FromAdmin is called for every inbound session-level message.
	FromAdmin(msg *Message, id domain.SessionID)

	// FromApp is called for every inbound application message. A non-nil
	// error is reported to the peer with a session-level Reject.
	FromApp(msg *Message, id domain.SessionID) error
}

// LogApplication logs lifecycle events and accepts every application
// message without replying.
type LogApplication struct {
	logger *slog.Logger
}

// NewLogApplication creates a LogApplication.
func NewLogApplication(logger *slog.Logger) *LogApplication {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogApplication{logger: logger}
}

func (a *LogApplication) OnCreate(id domain.SessionID) {
	a.logger.Info("session created", "session", id.String())
}

func (a *LogApplication) OnLogon(id domain.SessionID) {
	a.logger.Info("session logged on", "session", id.String())
}

func (a *LogApplication) OnLogout(id domain.SessionID) {
	a.logger.Info("session logged out", "session", id.String())
}

func (a *LogApplication) FromAdmin(msg *Message, id domain.SessionID) {}

func (a *LogApplication) FromApp(msg *Message, id domain.SessionID) error {
	a.logger.Debug("application message", "session", id.String(), "msg_type", msg.MsgType())
	return nil
}
