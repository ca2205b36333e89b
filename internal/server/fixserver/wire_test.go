package fixserver

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func buildTestMessage() []byte {
	msg := NewMessage(MsgTypeLogon).
		Set(TagSenderCompID, "CLIENT1").
		Set(TagTargetCompID, "EXSIM").
		SetInt(TagMsgSeqNum, 1).
		SetTime(TagSendingTime, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)).
		Set(TagEncryptMethod, "0").
		SetInt(TagHeartBtInt, 30)
	return msg.Build("FIX.4.4")
}

func TestBuild_Layout(t *testing.T) {
	raw := buildTestMessage()
	s := strings.ReplaceAll(string(raw), "\x01", "|")

	if !strings.HasPrefix(s, "8=FIX.4.4|9=") {
		t.Errorf("message should start with BeginString and BodyLength, got %q", s)
	}
	if !strings.Contains(s, "|35=A|49=CLIENT1|56=EXSIM|34=1|52=20260102-03:04:05.000|98=0|108=30|") {
		t.Errorf("unexpected field order: %q", s)
	}
	if !strings.HasSuffix(s, "|") || s[len(s)-8:len(s)-4] != "|10=" {
		t.Errorf("message should end with CheckSum, got %q", s)
	}
}

func TestReadMessage_RoundTrip(t *testing.T) {
	raw := buildTestMessage()
	// Two messages back to back must be framed independently.
	r := bufio.NewReader(bytes.NewReader(append(append([]byte{}, raw...), raw...)))

	for i := 0; i < 2; i++ {
		got, err := ReadMessage(r, 0)
		if err != nil {
			t.Fatalf("ReadMessage() #%d error = %v", i, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("ReadMessage() #%d = %q, want %q", i, got, raw)
		}
	}

	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.MsgType() != MsgTypeLogon {
		t.Errorf("MsgType() = %q, want A", msg.MsgType())
	}
	if hb, err := msg.GetInt(TagHeartBtInt); err != nil || hb != 30 {
		t.Errorf("GetInt(108) = %d, %v", hb, err)
	}
	if !msg.IsAdmin() {
		t.Error("Logon should be an admin message")
	}
}

func TestReadMessage_Errors(t *testing.T) {
	good := buildTestMessage()

	badChecksum := append([]byte{}, good...)
	badChecksum[len(badChecksum)-2] = '0' + (badChecksum[len(badChecksum)-2]-'0'+1)%10

	tests := []struct {
		name    string
		input   []byte
		maxBody int
		wantErr error
	}{
		{"checksum mismatch", badChecksum, 0, ErrChecksum},
		{"no BeginString", []byte("9=5\x0135=0\x0110=000\x01"), 0, ErrProtocol},
		{"BodyLength not a number", []byte("8=FIX.4.4\x019=abc\x01"), 0, ErrProtocol},
		{"body too large", good, 10, ErrLimitExceeded},
		{"BeginString too long", []byte("8=" + strings.Repeat("X", 64) + "\x01"), 0, ErrLimitExceeded},
		{"missing trailer", []byte("8=FIX.4.4\x019=5\x0135=0\x01XXXXXXX"), 0, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMessage(bufio.NewReader(bytes.NewReader(tt.input)), tt.maxBody)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseMessage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated", "8=FIX.4.4\x019=5\x0135=0"},
		{"no equals", "8=FIX.4.4\x01junk\x01"},
		{"bad tag", "8=FIX.4.4\x01x=1\x01"},
		{"wrong order", "9=5\x018=FIX.4.4\x0135=0\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.input)); !errors.Is(err, ErrProtocol) {
				t.Errorf("ParseMessage() error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestMessage_Set(t *testing.T) {
	msg := NewMessage(MsgTypeHeartbeat).Set(TagTestReqID, "a")
	msg.Set(TagTestReqID, "b")
	if got := msg.GetString(TagTestReqID); got != "b" {
		t.Errorf("GetString() = %q, want b", got)
	}

	msg.Set(TagTestReqID, "")
	if _, ok := msg.Get(TagTestReqID); ok {
		t.Error("empty value should remove the field")
	}
	if got := msg.String(); got != "35=0|" {
		t.Errorf("String() = %q", got)
	}

	if _, err := msg.GetInt(TagHeartBtInt); !errors.Is(err, ErrProtocol) {
		t.Errorf("GetInt() on missing tag error = %v", err)
	}
}

func BenchmarkBuild(b *testing.B) {
	msg := NewMessage(MsgTypeHeartbeat).
		Set(TagSenderCompID, "EXSIM").
		Set(TagTargetCompID, "CLIENT1").
		SetInt(TagMsgSeqNum, 42).
		SetTime(TagSendingTime, time.Now())

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = msg.Build("FIX.4.4")
	}
}

func BenchmarkReadMessage(b *testing.B) {
	raw := buildTestMessage()
	r := bytes.NewReader(raw)
	br := bufio.NewReader(r)

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	for i := 0; i < b.N; i++ {
		r.Reset(raw)
		br.Reset(r)
		if _, err := ReadMessage(br, 0); err != nil {
			b.Fatal(err)
		}
	}
}
