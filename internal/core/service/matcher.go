package service

import (
	"log/slog"
	"slices"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
	"github.com/sudheendrakatikar/exsim/internal/settings"
)

// DynamicSessionMatcher admits inbound peers on one listening address by
// matching their identity against that address's templates.
//
// The matcher holds a private copy of its mappings and never writes to the
// settings repository, so it is safe for concurrent use without locks.
type DynamicSessionMatcher struct {
	addr     domain.ListeningAddress
	mappings []domain.TemplateMapping
	settings SettingsReader
	logger   *slog.Logger
}

// NewDynamicSessionMatcher creates a matcher for addr. The mappings slice is
// copied; later changes by the caller are not observed.
func NewDynamicSessionMatcher(addr domain.ListeningAddress, mappings []domain.TemplateMapping, s SettingsReader, logger *slog.Logger) *DynamicSessionMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamicSessionMatcher{
		addr:     addr,
		mappings: slices.Clone(mappings),
		settings: s,
		logger:   logger.With("address", addr.String()),
	}
}

// Address returns the listening address this matcher serves.
func (m *DynamicSessionMatcher) Address() domain.ListeningAddress {
	return m.addr
}

// Mappings returns a copy of the templates in match order.
func (m *DynamicSessionMatcher) Mappings() []domain.TemplateMapping {
	return slices.Clone(m.mappings)
}

// Lookup returns the first mapping whose pattern matches peer.
func (m *DynamicSessionMatcher) Lookup(peer domain.SessionID) (domain.TemplateMapping, bool) {
	for _, mapping := range m.mappings {
		if mapping.Pattern.Matches(peer) {
			return mapping, true
		}
	}
	return domain.TemplateMapping{}, false
}

// Match returns the concrete session identity for peer, or ErrNoMatch when
// no template admits it. Earlier templates win over later ones.
func (m *DynamicSessionMatcher) Match(peer domain.SessionID) (domain.SessionID, error) {
	if _, ok := m.Lookup(peer); !ok {
		return domain.SessionID{}, domain.ErrNoMatch.WithDetailsf("peer %s on %s", peer, m.addr)
	}
	return peer, nil
}

// SessionSpec implements domain.SessionProvider.
//
// The returned settings are the template's effective settings with the
// identity keys replaced by the peer's concrete values.
func (m *DynamicSessionMatcher) SessionSpec(peer domain.SessionID) (*domain.SessionSpec, error) {
	mapping, ok := m.Lookup(peer)
	if !ok {
		m.logger.Debug("no template matched peer", "peer", peer.String())
		return nil, domain.ErrNoMatch.WithDetailsf("peer %s on %s", peer, m.addr)
	}

	dict, err := m.settings.SessionSettings(mapping.TemplateID)
	if err != nil {
		return nil, err
	}
	applyIdentity(dict, peer)

	m.logger.Debug("peer matched template",
		"peer", peer.String(),
		"template", mapping.TemplateID.String(),
	)

	return &domain.SessionSpec{
		ID:         peer,
		TemplateID: mapping.TemplateID,
		Dynamic:    true,
		Settings:   dict,
	}, nil
}

func applyIdentity(d settings.Dictionary, id domain.SessionID) {
	set := func(key, value string) {
		if value == "" {
			delete(d, key)
			return
		}
		d[key] = value
	}
	set(settings.BeginString, id.BeginString)
	set(settings.SenderCompID, id.SenderCompID)
	set(settings.SenderSubID, id.SenderSubID)
	set(settings.SenderLocationID, id.SenderLocationID)
	set(settings.TargetCompID, id.TargetCompID)
	set(settings.TargetSubID, id.TargetSubID)
	set(settings.TargetLocationID, id.TargetLocationID)
	set(settings.SessionQualifier, id.Qualifier)
}
