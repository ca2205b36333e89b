package logger

import (
	"log/slog"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "***REDACTED***"

// FIX tags whose values must never reach a log: Password, NewPassword,
// EncryptedPassword and EncryptedNewPassword.
var sensitiveTags = map[string]bool{"554": true, "925": true, "1402": true, "1404": true}

var sensitiveKeys = []string{"password", "secret", "token", "credential", "auth", "key_file"}

func redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if v == "" {
			return a
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, Redacted)
		}
		if HasSensitiveField(v) {
			return slog.String(a.Key, RedactFIX(v))
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactAttr(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// IsSensitiveKey reports whether an attribute key names a credential.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// HasSensitiveField reports whether msg looks like a FIX message carrying
// a password field. Both SOH and '|' delimiters are recognized.
func HasSensitiveField(msg string) bool {
	found := false
	eachField(msg, func(field string, _ byte) {
		if tag, _, ok := strings.Cut(field, "="); ok && sensitiveTags[tag] {
			found = true
		}
	})
	return found
}

// RedactFIX masks the values of password fields in a tag=value message
// and leaves every other field untouched.
func RedactFIX(msg string) string {
	var b strings.Builder
	b.Grow(len(msg))
	eachField(msg, func(field string, delim byte) {
		if tag, _, ok := strings.Cut(field, "="); ok && sensitiveTags[tag] {
			field = tag + "=" + Redacted
		}
		b.WriteString(field)
		if delim != 0 {
			b.WriteByte(delim)
		}
	})
	return b.String()
}

// eachField calls fn for every delimited field of msg with the delimiter
// that ended it, or 0 for a trailing field.
func eachField(msg string, fn func(field string, delim byte)) {
	start := 0
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\x01' || msg[i] == '|' {
			fn(msg[start:i], msg[i])
			start = i + 1
		}
	}
	if start < len(msg) {
		fn(msg[start:], 0)
	}
}
