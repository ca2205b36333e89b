package domain

// SessionSpec describes a session the engine should create or attach for an
// inbound connection.
type SessionSpec struct {
	// ID is the concrete, acceptor-relative identity used by the session.
	ID SessionID `json:"id"`
	// TemplateID names the template section the session was admitted
	// through. It equals ID for statically configured sessions.
	TemplateID SessionID `json:"template_id"`
	// Dynamic is true when the session was synthesized from a template.
	Dynamic bool `json:"dynamic"`
	// Settings holds the effective session settings. The map is a private
	// copy and may be modified by the receiver.
	Settings map[string]string `json:"settings"`
}

// SessionProvider resolves an inbound peer identity to a session.
//
// Implementations return ErrNoMatch when the peer is not admitted; the
// engine rejects that one connection and keeps running.
type SessionProvider interface {
	SessionSpec(peer SessionID) (*SessionSpec, error)
}
