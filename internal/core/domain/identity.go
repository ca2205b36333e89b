package domain

import "strings"

// Wildcard is the pattern sentinel that matches any value in a SessionID field.
const Wildcard = "*"

// SessionID names one logical FIX session endpoint pair.
//
// Sender fields describe the acceptor side and target fields the
// counterparty, so a SessionID derived from an inbound Logon has the
// message's TargetCompID as SenderCompID and vice versa.
//
// SessionID is a comparable value and may be used as a map key.
type SessionID struct {
	BeginString      string `json:"begin_string"`
	SenderCompID     string `json:"sender_comp_id"`
	SenderSubID      string `json:"sender_sub_id,omitempty"`
	SenderLocationID string `json:"sender_location_id,omitempty"`
	TargetCompID     string `json:"target_comp_id"`
	TargetSubID      string `json:"target_sub_id,omitempty"`
	TargetLocationID string `json:"target_location_id,omitempty"`
	Qualifier        string `json:"qualifier,omitempty"`
}

// String renders the ID as BEGIN:SENDER[/SUB[/LOC]]->TARGET[/SUB[/LOC]][:QUALIFIER].
func (id SessionID) String() string {
	var b strings.Builder
	b.WriteString(id.BeginString)
	b.WriteByte(':')
	writeCompID(&b, id.SenderCompID, id.SenderSubID, id.SenderLocationID)
	b.WriteString("->")
	writeCompID(&b, id.TargetCompID, id.TargetSubID, id.TargetLocationID)
	if id.Qualifier != "" {
		b.WriteByte(':')
		b.WriteString(id.Qualifier)
	}
	return b.String()
}

func writeCompID(b *strings.Builder, comp, sub, loc string) {
	b.WriteString(comp)
	if sub != "" || loc != "" {
		b.WriteByte('/')
		b.WriteString(sub)
	}
	if loc != "" {
		b.WriteByte('/')
		b.WriteString(loc)
	}
}

// IsZero reports whether all fields are empty.
func (id SessionID) IsZero() bool {
	return id == SessionID{}
}

// fields returns the identity fields that take part in pattern matching.
// The qualifier is excluded: it distinguishes configured sections, never a
// peer on the wire.
func (id SessionID) fields() [7]string {
	return [7]string{
		id.BeginString,
		id.SenderCompID,
		id.SenderSubID,
		id.SenderLocationID,
		id.TargetCompID,
		id.TargetSubID,
		id.TargetLocationID,
	}
}

// HasWildcard reports whether any identity field is the wildcard sentinel.
func (id SessionID) HasWildcard() bool {
	for _, f := range id.fields() {
		if f == Wildcard {
			return true
		}
	}
	return false
}

// Matches reports whether peer satisfies id used as a pattern.
//
// A wildcard pattern field matches any peer value, including an empty one.
// Every other field must be equal.
func (id SessionID) Matches(peer SessionID) bool {
	pattern := id.fields()
	values := peer.fields()
	for i := range pattern {
		if pattern[i] == Wildcard {
			continue
		}
		if pattern[i] != values[i] {
			return false
		}
	}
	return true
}
