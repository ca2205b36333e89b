package service

import (
	"github.com/sudheendrakatikar/exsim/internal/core/domain"
	"github.com/sudheendrakatikar/exsim/internal/settings"
)

// SettingsReader is the read contract the acceptor core needs from the
// session settings repository. *settings.Settings implements it.
type SettingsReader interface {
	// Sections returns the configured session IDs in declaration order.
	Sections() []domain.SessionID

	// IsSetting reports whether key is set for id, directly or by default.
	IsSetting(id domain.SessionID, key string) bool

	// GetString returns the raw value of key for id.
	GetString(id domain.SessionID, key string) (string, error)

	// GetLong returns key parsed as an integer.
	GetLong(id domain.SessionID, key string) (int64, error)

	// GetBool returns key parsed as a boolean.
	GetBool(id domain.SessionID, key string) (bool, error)

	// SessionSettings returns a merged copy of id's effective settings.
	SessionSettings(id domain.SessionID) (settings.Dictionary, error)
}

// ResolveTemplates scans the settings sections in declaration order and
// groups every section flagged AcceptorTemplate=Y by its listening address.
//
// Sections without the flag, or with it set false, are static sessions the
// engine handles itself and are skipped. On error no table is returned.
func ResolveTemplates(s SettingsReader) (*domain.TemplateTable, error) {
	b := domain.NewTableBuilder()

	for _, id := range s.Sections() {
		isTemplate, err := isAcceptorTemplate(s, id)
		if err != nil {
			return nil, err
		}
		if !isTemplate {
			continue
		}

		if id.SenderCompID == domain.Wildcard && id.TargetCompID == domain.Wildcard {
			return nil, domain.ErrConfig.WithDetailsf(
				"template %s: SenderCompID and TargetCompID cannot both be %q", id, domain.Wildcard)
		}

		addr, err := AcceptorAddress(s, id)
		if err != nil {
			return nil, err
		}

		b.Add(addr, domain.TemplateMapping{Pattern: id, TemplateID: id})
	}

	return b.Build(), nil
}

func isAcceptorTemplate(s SettingsReader, id domain.SessionID) (bool, error) {
	if !s.IsSetting(id, settings.AcceptorTemplate) {
		return false, nil
	}
	return s.GetBool(id, settings.AcceptorTemplate)
}

// AcceptorAddress extracts the listening address of a session section.
//
// SocketAcceptAddress is optional and defaults to the wildcard host;
// SocketAcceptPort is required. Calling it twice for the same section yields
// equal addresses.
func AcceptorAddress(s SettingsReader, id domain.SessionID) (domain.ListeningAddress, error) {
	host := ""
	if s.IsSetting(id, settings.SocketAcceptAddress) {
		h, err := s.GetString(id, settings.SocketAcceptAddress)
		if err != nil {
			return domain.ListeningAddress{}, err
		}
		host = h
	}

	if !s.IsSetting(id, settings.SocketAcceptPort) {
		return domain.ListeningAddress{}, domain.ErrConfig.WithDetailsf(
			"%s is required for session %s", settings.SocketAcceptPort, id)
	}
	port, err := s.GetLong(id, settings.SocketAcceptPort)
	if err != nil {
		return domain.ListeningAddress{}, err
	}
	if port < 0 || port > domain.MaxPort {
		return domain.ListeningAddress{}, domain.ErrFieldConversion.WithDetailsf(
			"%s=%d out of range for session %s", settings.SocketAcceptPort, port, id)
	}

	return domain.NewListeningAddress(host, int(port))
}
