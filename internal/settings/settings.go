// Package settings provides the session settings repository.
//
// Settings are organized as one optional default section plus an ordered
// list of session sections. Each session section is identified by the
// SessionID built from its identity keys; lookups fall back to the default
// section when a key is not set on the session itself.
package settings

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
)

// Setting keys understood by exsim. Every other key is passed through to the
// engine untouched.
const (
	BeginString      = "BeginString"
	SenderCompID     = "SenderCompID"
	SenderSubID      = "SenderSubID"
	SenderLocationID = "SenderLocationID"
	TargetCompID     = "TargetCompID"
	TargetSubID      = "TargetSubID"
	TargetLocationID = "TargetLocationID"
	SessionQualifier = "SessionQualifier"

	ConnectionType        = "ConnectionType"
	AcceptorTemplate      = "AcceptorTemplate"
	SocketAcceptAddress   = "SocketAcceptAddress"
	SocketAcceptPort      = "SocketAcceptPort"
	SocketUseSSL          = "SocketUseSSL"
	SocketCertificateFile = "SocketCertificateFile"
	SocketKeyFile         = "SocketKeyFile"
	SocketTrustStore      = "SocketTrustStore"
	NeedClientAuth        = "NeedClientAuth"
	HeartBtInt            = "HeartBtInt"
	ResetOnLogon          = "ResetOnLogon"
	FileStorePath         = "FileStorePath"
)

// ConnectionTypeAcceptor is the ConnectionType value of acceptor sessions.
const ConnectionTypeAcceptor = "acceptor"

// Dictionary is a flat set of key/value settings.
type Dictionary map[string]string

// Has reports whether key is set.
func (d Dictionary) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// String returns the value for key, or a config error if it is missing.
func (d Dictionary) String(key string) (string, error) {
	v, ok := d[key]
	if !ok {
		return "", domain.ErrConfig.WithDetailsf("setting %s not found", key)
	}
	return v, nil
}

// Int returns the value for key parsed as an integer.
func (d Dictionary) Int(key string) (int, error) {
	v, err := d.String(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, domain.ErrFieldConversion.WithDetailsf("%s=%q is not an integer", key, v)
	}
	return n, nil
}

// Bool returns the value for key parsed with ParseBool.
func (d Dictionary) Bool(key string) (bool, error) {
	v, err := d.String(key)
	if err != nil {
		return false, err
	}
	b, err := ParseBool(v)
	if err != nil {
		return false, domain.ErrFieldConversion.WithDetailsf("%s=%q is not a boolean", key, v)
	}
	return b, nil
}

// Clone returns a copy of the dictionary.
func (d Dictionary) Clone() Dictionary {
	if d == nil {
		return Dictionary{}
	}
	return maps.Clone(d)
}

// ParseBool accepts the FIX convention Y/N as well as the forms accepted by
// strconv.ParseBool.
func ParseBool(v string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "Y", "YES":
		return true, nil
	case "N", "NO":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(v))
}

type section struct {
	id   domain.SessionID
	dict Dictionary
}

// Settings is the session settings repository.
//
// A Settings value is populated by a parser and then only read; it is safe
// for concurrent readers once loading has returned.
type Settings struct {
	defaults Dictionary
	sections []section
	index    map[domain.SessionID]int
}

// New creates an empty repository with the given defaults.
func New(defaults Dictionary) *Settings {
	return &Settings{
		defaults: defaults.Clone(),
		index:    make(map[domain.SessionID]int),
	}
}

// AddSession appends a session section. The SessionID is derived from the
// identity keys of the section merged over the defaults.
func (s *Settings) AddSession(d Dictionary) (domain.SessionID, error) {
	merged := s.defaults.Clone()
	maps.Copy(merged, d)

	id, err := SessionIDFrom(merged)
	if err != nil {
		return domain.SessionID{}, err
	}
	if _, dup := s.index[id]; dup {
		return domain.SessionID{}, domain.ErrConfig.WithDetailsf("duplicate session %s", id)
	}

	s.index[id] = len(s.sections)
	s.sections = append(s.sections, section{id: id, dict: d.Clone()})
	return id, nil
}

// SessionIDFrom builds a SessionID from the identity keys in d.
// BeginString, SenderCompID and TargetCompID are required.
func SessionIDFrom(d Dictionary) (domain.SessionID, error) {
	var id domain.SessionID
	var err error
	if id.BeginString, err = d.String(BeginString); err != nil {
		return domain.SessionID{}, err
	}
	if id.SenderCompID, err = d.String(SenderCompID); err != nil {
		return domain.SessionID{}, err
	}
	if id.TargetCompID, err = d.String(TargetCompID); err != nil {
		return domain.SessionID{}, err
	}
	id.SenderSubID = d[SenderSubID]
	id.SenderLocationID = d[SenderLocationID]
	id.TargetSubID = d[TargetSubID]
	id.TargetLocationID = d[TargetLocationID]
	id.Qualifier = d[SessionQualifier]
	return id, nil
}

// Sections returns the configured session IDs in declaration order.
func (s *Settings) Sections() []domain.SessionID {
	ids := make([]domain.SessionID, len(s.sections))
	for i, sec := range s.sections {
		ids[i] = sec.id
	}
	return ids
}

// Len returns the number of session sections.
func (s *Settings) Len() int {
	return len(s.sections)
}

// Defaults returns a copy of the default section.
func (s *Settings) Defaults() Dictionary {
	return s.defaults.Clone()
}

// Has reports whether id names a configured section.
func (s *Settings) Has(id domain.SessionID) bool {
	_, ok := s.index[id]
	return ok
}

// SessionSettings returns the effective settings of id: the defaults
// overlaid with the section's own keys. The result is a fresh copy.
func (s *Settings) SessionSettings(id domain.SessionID) (Dictionary, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, domain.ErrConfig.WithDetailsf("session %s not found in settings", id)
	}
	merged := s.defaults.Clone()
	maps.Copy(merged, s.sections[i].dict)
	return merged, nil
}

// IsSetting reports whether key is set for id, directly or via defaults.
func (s *Settings) IsSetting(id domain.SessionID, key string) bool {
	_, ok := s.lookup(id, key)
	return ok
}

// GetString returns the value of key for id.
func (s *Settings) GetString(id domain.SessionID, key string) (string, error) {
	v, ok := s.lookup(id, key)
	if !ok {
		return "", domain.ErrConfig.WithDetailsf("setting %s not found for session %s", key, id)
	}
	return v, nil
}

// GetLong returns the value of key for id parsed as a 64-bit integer.
func (s *Settings) GetLong(id domain.SessionID, key string) (int64, error) {
	v, err := s.GetString(id, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, domain.ErrFieldConversion.WithDetailsf("%s=%q is not an integer (session %s)", key, v, id)
	}
	return n, nil
}

// GetBool returns the value of key for id parsed with ParseBool.
func (s *Settings) GetBool(id domain.SessionID, key string) (bool, error) {
	v, err := s.GetString(id, key)
	if err != nil {
		return false, err
	}
	b, err := ParseBool(v)
	if err != nil {
		return false, domain.ErrFieldConversion.WithDetailsf("%s=%q is not a boolean (session %s)", key, v, id)
	}
	return b, nil
}

func (s *Settings) lookup(id domain.SessionID, key string) (string, bool) {
	if i, ok := s.index[id]; ok {
		if v, ok := s.sections[i].dict[key]; ok {
			return v, true
		}
	} else {
		return "", false
	}
	v, ok := s.defaults[key]
	return v, ok
}

// String summarizes the repository for logging.
func (s *Settings) String() string {
	return fmt.Sprintf("settings(%d sessions)", len(s.sections))
}
