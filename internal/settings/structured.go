package settings

import (
	"fmt"
	"io"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
)

// tomlDocument mirrors the TOML layout:
//
//	[default]
//	ConnectionType = "acceptor"
//
//	[[session]]
//	BeginString = "FIX.4.4"
//	SocketAcceptPort = 9876
type tomlDocument struct {
	Default map[string]any   `toml:"default"`
	Session []map[string]any `toml:"session"`
}

// ParseTOML reads settings from a TOML document with a [default] table and
// an array of [[session]] tables.
func ParseTOML(r io.Reader) (*Settings, error) {
	var doc tomlDocument
	md, err := toml.NewDecoder(r).Decode(&doc)
	if err != nil {
		return nil, domain.ErrConfig.WithDetails("parse toml").WithCause(err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, domain.ErrConfig.WithDetailsf("unknown toml key %s", undecoded[0])
	}

	defaults, err := flatten("default", doc.Default)
	if err != nil {
		return nil, err
	}
	sessions := make([]Dictionary, 0, len(doc.Session))
	for i, raw := range doc.Session {
		d, err := flatten(fmt.Sprintf("session[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, d)
	}
	return build(defaults, sessions)
}

// ParseYAML reads settings from a YAML document with a "default" mapping and
// a "sessions" sequence of mappings.
func ParseYAML(b []byte) (*Settings, error) {
	doc, err := yaml.Parser().Unmarshal(b)
	if err != nil {
		return nil, domain.ErrConfig.WithDetails("parse yaml").WithCause(err)
	}

	var defaults Dictionary
	if raw, ok := doc["default"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, domain.ErrConfig.WithDetails("default must be a mapping")
		}
		if defaults, err = flatten("default", m); err != nil {
			return nil, err
		}
	}

	var sessions []Dictionary
	if raw, ok := doc["sessions"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, domain.ErrConfig.WithDetails("sessions must be a sequence")
		}
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, domain.ErrConfig.WithDetailsf("sessions[%d] must be a mapping", i)
			}
			d, err := flatten(fmt.Sprintf("sessions[%d]", i), m)
			if err != nil {
				return nil, err
			}
			sessions = append(sessions, d)
		}
	}
	return build(defaults, sessions)
}

// flatten converts decoded scalar values to their settings string form.
// Booleans become Y/N so every format reads the same way downstream.
func flatten(where string, m map[string]any) (Dictionary, error) {
	d := make(Dictionary, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			d[k] = val
		case bool:
			if val {
				d[k] = "Y"
			} else {
				d[k] = "N"
			}
		case int:
			d[k] = strconv.Itoa(val)
		case int64:
			d[k] = strconv.FormatInt(val, 10)
		case uint64:
			d[k] = strconv.FormatUint(val, 10)
		case float64:
			d[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			return nil, domain.ErrConfig.WithDetailsf("%s.%s: unsupported value of type %T", where, k, v)
		}
	}
	return d, nil
}
