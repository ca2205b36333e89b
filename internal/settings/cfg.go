package settings

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
)

// Section headers of the QuickFIX-style settings format.
const (
	headerDefault = "DEFAULT"
	headerSession = "SESSION"
)

// ParseCFG reads settings in the QuickFIX text format:
//
//	[DEFAULT]
//	ConnectionType=acceptor
//
//	[SESSION]
//	BeginString=FIX.4.4
//	SenderCompID=EXEC
//	TargetCompID=*
//	AcceptorTemplate=Y
//
// Lines starting with '#' or ';' are comments. The DEFAULT section may
// appear anywhere and applies to every SESSION.
func ParseCFG(r io.Reader) (*Settings, error) {
	var (
		defaults = Dictionary{}
		sessions []Dictionary
		current  Dictionary
		lineNo   int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}

		if line[0] == '[' {
			if !strings.HasSuffix(line, "]") {
				return nil, domain.ErrConfig.WithDetailsf("line %d: malformed section header %q", lineNo, line)
			}
			switch name := strings.ToUpper(strings.TrimSpace(line[1 : len(line)-1])); name {
			case headerDefault:
				current = defaults
			case headerSession:
				current = Dictionary{}
				sessions = append(sessions, current)
			default:
				return nil, domain.ErrConfig.WithDetailsf("line %d: unknown section [%s]", lineNo, name)
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, domain.ErrConfig.WithDetailsf("line %d: expected key=value, got %q", lineNo, line)
		}
		if current == nil {
			return nil, domain.ErrConfig.WithDetailsf("line %d: setting outside of a section", lineNo)
		}
		current[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	return build(defaults, sessions)
}

// build assembles a repository from parsed sections, preserving order.
func build(defaults Dictionary, sessions []Dictionary) (*Settings, error) {
	s := New(defaults)
	for i, d := range sessions {
		if _, err := s.AddSession(d); err != nil {
			return nil, fmt.Errorf("session section %d: %w", i+1, err)
		}
	}
	return s, nil
}
