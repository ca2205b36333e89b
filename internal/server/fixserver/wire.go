package fixserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// SOH is the FIX field delimiter.
const SOH = '\x01'

// Protocol limits to prevent DoS attacks.
const (
	// MaxBodyLength limits the BodyLength a peer may announce (64KB).
	MaxBodyLength = 64 * 1024

	// maxHeaderField limits the BeginString and BodyLength fields.
	maxHeaderField = 32
)

// Field tags used by the session layer.
const (
	TagBeginSeqNo       = 7
	TagBeginString      = 8
	TagBodyLength       = 9
	TagCheckSum         = 10
	TagEndSeqNo         = 16
	TagMsgSeqNum        = 34
	TagMsgType          = 35
	TagNewSeqNo         = 36
	TagPossDupFlag      = 43
	TagRefSeqNum        = 45
	TagSenderCompID     = 49
	TagSenderSubID      = 50
	TagSendingTime      = 52
	TagTargetCompID     = 56
	TagTargetSubID      = 57
	TagText             = 58
	TagEncryptMethod    = 98
	TagHeartBtInt       = 108
	TagTestReqID        = 112
	TagGapFillFlag      = 123
	TagResetSeqNumFlag  = 141
	TagSenderLocationID = 142
	TagTargetLocationID = 143
	TagPassword         = 554
	TagDefaultApplVerID = 1137
)

// Session-level message types.
const (
	MsgTypeHeartbeat     = "0"
	MsgTypeTestRequest   = "1"
	MsgTypeResendRequest = "2"
	MsgTypeReject        = "3"
	MsgTypeSequenceReset = "4"
	MsgTypeLogout        = "5"
	MsgTypeLogon         = "A"
)

// sendingTimeLayout is the UTCTimestamp format with milliseconds.
const sendingTimeLayout = "20060102-15:04:05.000"

var (
	ErrProtocol      = errors.New("fix: protocol error")
	ErrLimitExceeded = errors.New("fix: limit exceeded")
	ErrChecksum      = errors.New("fix: checksum mismatch")
)

// headerOrder is the emission order of standard header fields after MsgType.
var headerOrder = []int{
	TagSenderCompID,
	TagTargetCompID,
	TagMsgSeqNum,
	TagSendingTime,
	TagSenderSubID,
	TagSenderLocationID,
	TagTargetSubID,
	TagTargetLocationID,
}

// Field is one tag=value pair.
type Field struct {
	Tag   int
	Value string
}

// Message is a flat, ordered list of fields. Repeating groups are kept in
// wire order and are not interpreted.
type Message struct {
	Fields []Field
}

// NewMessage creates a message of the given MsgType.
func NewMessage(msgType string) *Message {
	return &Message{Fields: []Field{{Tag: TagMsgType, Value: msgType}}}
}

// Get returns the first value of tag.
func (m *Message) Get(tag int) (string, bool) {
	for _, f := range m.Fields {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return "", false
}

// GetString returns the first value of tag, or "" when absent.
func (m *Message) GetString(tag int) string {
	v, _ := m.Get(tag)
	return v
}

// GetInt returns tag parsed as an integer.
func (m *Message) GetInt(tag int) (int, error) {
	v, ok := m.Get(tag)
	if !ok {
		return 0, fmt.Errorf("%w: required tag %d missing", ErrProtocol, tag)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: tag %d=%q is not an integer", ErrProtocol, tag, v)
	}
	return n, nil
}

// MsgType returns the MsgType field.
func (m *Message) MsgType() string {
	return m.GetString(TagMsgType)
}

// Set replaces the first occurrence of tag or appends it. Empty values
// remove the field.
func (m *Message) Set(tag int, value string) *Message {
	for i, f := range m.Fields {
		if f.Tag == tag {
			if value == "" {
				m.Fields = append(m.Fields[:i], m.Fields[i+1:]...)
			} else {
				m.Fields[i].Value = value
			}
			return m
		}
	}
	if value != "" {
		m.Fields = append(m.Fields, Field{Tag: tag, Value: value})
	}
	return m
}

// SetInt is Set with an integer value.
func (m *Message) SetInt(tag, value int) *Message {
	return m.Set(tag, strconv.Itoa(value))
}

// SetTime is Set with a UTCTimestamp value.
func (m *Message) SetTime(tag int, t time.Time) *Message {
	return m.Set(tag, t.UTC().Format(sendingTimeLayout))
}

// IsAdmin reports whether the message is a session-level message.
func (m *Message) IsAdmin() bool {
	switch m.MsgType() {
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest, MsgTypeReject,
		MsgTypeSequenceReset, MsgTypeLogout, MsgTypeLogon:
		return true
	}
	return false
}

// String renders the message with '|' as delimiter.
func (m *Message) String() string {
	var b strings.Builder
	for _, f := range m.Fields {
		b.WriteString(strconv.Itoa(f.Tag))
		b.WriteByte('=')
		b.WriteString(f.Value)
		b.WriteByte('|')
	}
	return b.String()
}

// Build encodes the message for beginString, computing BodyLength and
// CheckSum. MsgType is written first, then the standard header fields,
// then everything else in insertion order.
func (m *Message) Build(beginString string) []byte {
	var body bytes.Buffer
	writeField := func(tag int, value string) {
		body.WriteString(strconv.Itoa(tag))
		body.WriteByte('=')
		body.WriteString(value)
		body.WriteByte(SOH)
	}

	writeField(TagMsgType, m.MsgType())
	written := map[int]bool{TagMsgType: true, TagBeginString: true, TagBodyLength: true, TagCheckSum: true}
	for _, tag := range headerOrder {
		if v, ok := m.Get(tag); ok {
			writeField(tag, v)
			written[tag] = true
		}
	}
	for _, f := range m.Fields {
		if written[f.Tag] {
			continue
		}
		writeField(f.Tag, f.Value)
	}

	var out bytes.Buffer
	out.Grow(body.Len() + 32)
	fmt.Fprintf(&out, "8=%s\x019=%d\x01", beginString, body.Len())
	out.Write(body.Bytes())
	fmt.Fprintf(&out, "10=%03d\x01", checksum(out.Bytes()))
	return out.Bytes()
}

// ParseMessage splits a raw message into fields. It does not verify
// BodyLength or CheckSum; ReadMessage does.
func ParseMessage(raw []byte) (*Message, error) {
	m := &Message{}
	for len(raw) > 0 {
		i := bytes.IndexByte(raw, SOH)
		if i < 0 {
			return nil, fmt.Errorf("%w: unterminated field", ErrProtocol)
		}
		field := raw[:i]
		raw = raw[i+1:]

		eq := bytes.IndexByte(field, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: malformed field %q", ErrProtocol, field)
		}
		tag, err := strconv.Atoi(string(field[:eq]))
		if err != nil || tag <= 0 {
			return nil, fmt.Errorf("%w: invalid tag %q", ErrProtocol, field[:eq])
		}
		m.Fields = append(m.Fields, Field{Tag: tag, Value: string(field[eq+1:])})
	}
	if len(m.Fields) < 3 || m.Fields[0].Tag != TagBeginString || m.Fields[1].Tag != TagBodyLength || m.Fields[2].Tag != TagMsgType {
		return nil, fmt.Errorf("%w: message must start with 8, 9, 35", ErrProtocol)
	}
	return m, nil
}

// ReadMessage reads one framed message and verifies its checksum. The
// returned slice is the complete raw message including the trailer.
func ReadMessage(r *bufio.Reader, maxBody int) ([]byte, error) {
	if maxBody <= 0 {
		maxBody = MaxBodyLength
	}

	begin, err := readField(r, maxHeaderField)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(begin, []byte("8=")) {
		return nil, fmt.Errorf("%w: expected BeginString", ErrProtocol)
	}

	length, err := readField(r, maxHeaderField)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(length, []byte("9=")) {
		return nil, fmt.Errorf("%w: expected BodyLength", ErrProtocol)
	}
	n, err := strconv.Atoi(string(length[2 : len(length)-1]))
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: invalid BodyLength", ErrProtocol)
	}
	if n > maxBody {
		return nil, fmt.Errorf("%w: body length %d exceeds limit %d", ErrLimitExceeded, n, maxBody)
	}

	raw := make([]byte, 0, len(begin)+len(length)+n+7)
	raw = append(raw, begin...)
	raw = append(raw, length...)

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	if body[n-1] != SOH {
		return nil, fmt.Errorf("%w: body does not end with SOH", ErrProtocol)
	}
	raw = append(raw, body...)

	trailer := make([]byte, 7)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(trailer, []byte("10=")) || trailer[6] != SOH {
		return nil, fmt.Errorf("%w: expected CheckSum", ErrProtocol)
	}
	want, err := strconv.Atoi(string(trailer[3:6]))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid CheckSum", ErrProtocol)
	}
	if got := checksum(raw); got != want {
		return nil, fmt.Errorf("%w: got %03d, message says %03d", ErrChecksum, got, want)
	}

	return append(raw, trailer...), nil
}

// readField reads up to and including the next SOH.
func readField(r *bufio.Reader, maxLen int) ([]byte, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if b == SOH {
			return buf, nil
		}
		if len(buf) > maxLen {
			return nil, fmt.Errorf("%w: header field exceeds %d bytes", ErrLimitExceeded, maxLen)
		}
	}
}

func checksum(b []byte) int {
	var sum int
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}
