// Package domain defines the core domain models for exsim.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError is an error carrying a stable code of the form
// EX-<CATEGORY>-<NUMBER>. Two DomainErrors match under errors.Is when
// their codes are equal, so the sentinels below can be decorated with
// details or a cause and still be recognised by callers.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

// NewDomainError creates a DomainError.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(e.Code)
	b.WriteString("] ")
	b.WriteString(e.Message)
	for _, part := range []string{e.Details, causeText(e.Cause)} {
		if part != "" {
			b.WriteString(": ")
			b.WriteString(part)
		}
	}
	return b.String()
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (e *DomainError) Unwrap() error { return e.Cause }

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// Category returns the middle segment of the code, e.g. "CFG".
func (e *DomainError) Category() string {
	parts := strings.SplitN(e.Code, "-", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

// WithDetails returns a copy with Details set. The receiver is unchanged.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// Wrap is WithCause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError reports whether err wraps a DomainError. A non-empty code
// additionally requires that code.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return code == "" || de.Code == code
}

// GetErrorCode returns the code of the first DomainError in err's chain,
// or "".
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Configuration.
var (
	// ErrConfig: a required setting is missing or the settings are
	// structurally invalid.
	ErrConfig = NewDomainError("EX-CFG-1001", "configuration error")

	// ErrFieldConversion: a setting is present but has the wrong type.
	ErrFieldConversion = NewDomainError("EX-CFG-1002", "field conversion error")
)

// Management.
var ErrRegistration = NewDomainError("EX-MGMT-5001", "management registration error")

// Sessions. ErrNoMatch is scoped to one connection attempt.
var (
	ErrNoMatch       = NewDomainError("EX-SESS-4040", "no matching session template")
	ErrSessionActive = NewDomainError("EX-SESS-4090", "session already logged on")
)

// Runtime, e.g. a listening socket could not be bound.
var ErrRuntime = NewDomainError("EX-SYS-5000", "runtime error")

func IsConfigError(err error) bool { return errors.Is(err, ErrConfig) }

func IsFieldConversionError(err error) bool { return errors.Is(err, ErrFieldConversion) }

func IsNoMatch(err error) bool { return errors.Is(err, ErrNoMatch) }
