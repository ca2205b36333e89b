package fixserver

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
	"github.com/sudheendrakatikar/exsim/internal/settings"
	"github.com/sudheendrakatikar/exsim/internal/storage"
	"github.com/sudheendrakatikar/exsim/internal/telemetry/sessionlog"
)

// SessionInfo is a point-in-time view of a session for management.
type SessionInfo struct {
	ID            string    `json:"id"`
	Template      string    `json:"template,omitempty"`
	Dynamic       bool      `json:"dynamic"`
	Address       string    `json:"address"`
	Remote        string    `json:"remote"`
	LoggedOn      bool      `json:"logged_on"`
	HeartBtInt    int       `json:"heart_bt_int"`
	NextSenderSeq int       `json:"next_sender_seq"`
	NextTargetSeq int       `json:"next_target_seq"`
	ConnectedAt   time.Time `json:"connected_at"`
}

// Session is one logged-on FIX connection.
//
// A session owns two goroutines besides the connection reader: a writer
// draining the outbound queue and a heartbeat monitor. Outbound messages
// get their MsgSeqNum and are queued under mu, so queue order is sequence
// order.
type Session struct {
	id          domain.SessionID
	spec        *domain.SessionSpec
	addr        domain.ListeningAddress
	conn        net.Conn
	br          *bufio.Reader
	server      *Server
	store       storage.MessageStore
	log         sessionlog.Log
	connectedAt time.Time

	mu     sync.Mutex
	outbox *queue.Queue
	wmu    sync.Mutex
	notify chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup

	logoutMu   sync.Mutex
	logoutSent bool

	loggedOn       atomic.Bool
	testRequestOut atomic.Bool
	lastRecv       atomic.Int64 // Unix nanoseconds
	lastSent       atomic.Int64 // Unix nanoseconds
	heartBtInt     atomic.Int64 // nanoseconds, set once by the Logon
}

func newSession(srv *Server, spec *domain.SessionSpec, addr domain.ListeningAddress, c net.Conn, br *bufio.Reader, store storage.MessageStore) *Session {
	now := time.Now()
	s := &Session{
		id:          spec.ID,
		spec:        spec,
		addr:        addr,
		conn:        c,
		br:          br,
		server:      srv,
		store:       store,
		log:         srv.logs.Create(spec.ID),
		connectedAt: now,
		outbox:      queue.New(),
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	s.lastRecv.Store(now.UnixNano())
	s.lastSent.Store(now.UnixNano())
	return s
}

// ID returns the session identity.
func (s *Session) ID() domain.SessionID {
	return s.id
}

// Info returns a snapshot of the session state.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:            s.id.String(),
		Dynamic:       s.spec.Dynamic,
		Address:       s.addr.String(),
		Remote:        s.conn.RemoteAddr().String(),
		LoggedOn:      s.loggedOn.Load(),
		HeartBtInt:    int(s.heartbeatInterval() / time.Second),
		NextSenderSeq: s.store.NextSenderMsgSeqNum(),
		NextTargetSeq: s.store.NextTargetMsgSeqNum(),
		ConnectedAt:   s.connectedAt,
	}
	if s.spec.Dynamic {
		info.Template = s.spec.TemplateID.String()
	}
	return info
}

// Done is closed when the session has disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// run drives the session until the connection ends. logon is the already
// read Logon message that admitted the peer.
func (s *Session) run(logon *Message) {
	defer s.workers.Wait()
	defer s.disconnect("connection closed")

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		s.writeLoop()
	}()

	s.server.app.OnCreate(s.id)
	s.log.OnEvent("Session " + s.id.String() + " created")

	if err := s.handleLogon(logon); err != nil {
		s.log.OnErrorEvent(err.Error())
		s.logout(err.Error())
		return
	}

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		s.heartbeatLoop()
	}()

	s.readLoop()
}

func (s *Session) handleLogon(logon *Message) error {
	hb, err := logon.GetInt(TagHeartBtInt)
	if err != nil || hb < 0 {
		return fmt.Errorf("invalid HeartBtInt in Logon")
	}
	seq, err := logon.GetInt(TagMsgSeqNum)
	if err != nil {
		return fmt.Errorf("invalid MsgSeqNum in Logon")
	}

	reset := logon.GetString(TagResetSeqNumFlag) == "Y"
	if v, ok := s.spec.Settings[settings.ResetOnLogon]; ok {
		if b, err := settings.ParseBool(v); err == nil && b {
			reset = true
		}
	}
	if reset {
		if err := s.store.Reset(); err != nil {
			return fmt.Errorf("reset message store: %w", err)
		}
		s.log.OnEvent("Sequence numbers reset")
	}

	expected := s.store.NextTargetMsgSeqNum()
	if seq < expected {
		return fmt.Errorf("MsgSeqNum too low, expecting %d but received %d", expected, seq)
	}
	if seq > expected {
		s.log.OnEvent(fmt.Sprintf("MsgSeqNum too high, expecting %d but received %d; advancing", expected, seq))
	}
	if err := s.store.SetNextTargetMsgSeqNum(seq + 1); err != nil {
		return fmt.Errorf("update message store: %w", err)
	}

	s.server.app.FromAdmin(logon, s.id)
	s.heartBtInt.Store(int64(time.Duration(hb) * time.Second))

	resp := NewMessage(MsgTypeLogon).
		Set(TagEncryptMethod, "0").
		SetInt(TagHeartBtInt, hb)
	if reset {
		resp.Set(TagResetSeqNumFlag, "Y")
	}
	if v, ok := logon.Get(TagDefaultApplVerID); ok {
		resp.Set(TagDefaultApplVerID, v)
	}
	if err := s.send(resp); err != nil {
		return err
	}

	s.loggedOn.Store(true)
	s.server.onLogon(s)
	s.log.OnEvent("Logon contents valid, responding with Logon")
	s.server.app.OnLogon(s.id)
	return nil
}

func (s *Session) readLoop() {
	maxBody := s.server.cfg.MaxMessageSize
	for {
		timeout := s.server.cfg.IdleTimeout
		if hb := s.heartbeatInterval(); hb > 0 {
			timeout = 2*hb + s.server.cfg.LogonTimeout
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return
		}

		raw, err := ReadMessage(s.br, maxBody)
		if err != nil {
			if s.isClosed() {
				return
			}
			if errors.Is(err, ErrChecksum) {
				s.log.OnErrorEvent("Garbled message ignored: " + err.Error())
				continue
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.log.OnErrorEvent("Timed out waiting for heartbeat")
				s.disconnect("heartbeat timeout")
				return
			}
			if errors.Is(err, ErrProtocol) || errors.Is(err, ErrLimitExceeded) {
				s.server.logger.Warn("protocol error", "session", s.id.String(), "error", err)
				s.logout(err.Error())
				return
			}
			s.disconnect(err.Error())
			return
		}

		s.lastRecv.Store(time.Now().UnixNano())
		s.testRequestOut.Store(false)
		s.log.OnIncoming(raw)

		msg, err := ParseMessage(raw)
		if err != nil {
			s.log.OnErrorEvent(err.Error())
			continue
		}
		if !s.handle(msg) {
			return
		}
	}
}

// handle processes one inbound message. It returns false when the session
// is over.
func (s *Session) handle(msg *Message) bool {
	msgType := msg.MsgType()
	s.server.metricMessageReceived(msgType)

	if msg.GetString(TagSenderCompID) != s.id.TargetCompID || msg.GetString(TagTargetCompID) != s.id.SenderCompID {
		s.logout("CompID problem")
		return false
	}

	seq, err := msg.GetInt(TagMsgSeqNum)
	if err != nil {
		s.sendReject(0, "Required tag missing: MsgSeqNum")
		return true
	}

	if msgType == MsgTypeSequenceReset {
		s.server.app.FromAdmin(msg, s.id)
		return s.handleSequenceReset(msg, seq)
	}

	expected := s.store.NextTargetMsgSeqNum()
	if seq < expected {
		if msg.GetString(TagPossDupFlag) == "Y" {
			return true
		}
		s.logout(fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", expected, seq))
		return false
	}
	if seq > expected {
		s.log.OnEvent(fmt.Sprintf("MsgSeqNum too high, expecting %d but received %d; advancing", expected, seq))
	}
	if err := s.store.SetNextTargetMsgSeqNum(seq + 1); err != nil {
		s.log.OnErrorEvent("update message store: " + err.Error())
		s.disconnect("message store failure")
		return false
	}

	switch msgType {
	case MsgTypeHeartbeat, MsgTypeReject:
		s.server.app.FromAdmin(msg, s.id)

	case MsgTypeTestRequest:
		s.server.app.FromAdmin(msg, s.id)
		hb := NewMessage(MsgTypeHeartbeat).Set(TagTestReqID, msg.GetString(TagTestReqID))
		_ = s.send(hb)

	case MsgTypeResendRequest:
		s.server.app.FromAdmin(msg, s.id)
		begin, err := msg.GetInt(TagBeginSeqNo)
		if err != nil {
			s.sendReject(seq, "Required tag missing: BeginSeqNo")
			return true
		}
		s.sendGapFill(begin)

	case MsgTypeLogout:
		s.server.app.FromAdmin(msg, s.id)
		s.sendLogout("")
		s.disconnect("logout received")
		return false

	case MsgTypeLogon:
		s.logout("Unexpected Logon on an established session")
		return false

	default:
		if err := s.server.app.FromApp(msg, s.id); err != nil {
			s.sendReject(seq, err.Error())
		}
	}
	return true
}

func (s *Session) handleSequenceReset(msg *Message, seq int) bool {
	newSeq, err := msg.GetInt(TagNewSeqNo)
	if err != nil {
		s.sendReject(seq, "Required tag missing: NewSeqNo")
		return true
	}
	expected := s.store.NextTargetMsgSeqNum()
	if msg.GetString(TagGapFillFlag) == "Y" && seq < expected {
		return true
	}
	if newSeq < expected {
		s.sendReject(seq, fmt.Sprintf("Value is incorrect (out of range) for this tag: NewSeqNo %d", newSeq))
		return true
	}
	if err := s.store.SetNextTargetMsgSeqNum(newSeq); err != nil {
		s.disconnect("message store failure")
		return false
	}
	return true
}

func (s *Session) heartbeatInterval() time.Duration {
	return time.Duration(s.heartBtInt.Load())
}

func (s *Session) heartbeatLoop() {
	hb := s.heartbeatInterval()
	if hb <= 0 {
		return
	}
	tick := time.Second
	if hb < tick {
		tick = hb
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			sinceSent := now.Sub(time.Unix(0, s.lastSent.Load()))
			sinceRecv := now.Sub(time.Unix(0, s.lastRecv.Load()))

			if sinceRecv >= hb*12/10 && s.testRequestOut.CompareAndSwap(false, true) {
				_ = s.send(NewMessage(MsgTypeTestRequest).Set(TagTestReqID, "TEST"))
				continue
			}
			if sinceSent >= hb {
				_ = s.send(NewMessage(MsgTypeHeartbeat))
			}
		}
	}
}

// Send queues an application message for the peer.
func (s *Session) Send(msg *Message) error {
	if !s.loggedOn.Load() {
		return domain.ErrRuntime.WithDetailsf("session %s is not logged on", s.id)
	}
	return s.send(msg)
}

func (s *Session) send(msg *Message) error {
	if s.isClosed() {
		return domain.ErrRuntime.WithDetailsf("session %s is disconnected", s.id)
	}

	s.mu.Lock()
	seq := s.store.NextSenderMsgSeqNum()
	s.stampHeader(msg, seq)
	raw := msg.Build(s.id.BeginString)
	if err := s.store.IncrNextSenderMsgSeqNum(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.outbox.Add(raw)
	s.mu.Unlock()

	s.server.metricMessageSent(msg.MsgType())
	s.wake()
	return nil
}

// sendGapFill answers a ResendRequest by gap-filling everything from begin
// up to the next outbound sequence number. Messages are not journaled, so
// nothing is ever resent.
func (s *Session) sendGapFill(begin int) {
	s.mu.Lock()
	next := s.store.NextSenderMsgSeqNum()
	if begin <= 0 || begin >= next {
		begin = next
	}
	msg := NewMessage(MsgTypeSequenceReset).
		Set(TagGapFillFlag, "Y").
		SetInt(TagNewSeqNo, next).
		Set(TagPossDupFlag, "Y")
	s.stampHeader(msg, begin)
	s.outbox.Add(msg.Build(s.id.BeginString))
	s.mu.Unlock()

	s.log.OnEvent(fmt.Sprintf("Sent SequenceReset-GapFill from %d to %d", begin, next))
	s.server.metricMessageSent(MsgTypeSequenceReset)
	s.wake()
}

func (s *Session) sendReject(refSeq int, text string) {
	msg := NewMessage(MsgTypeReject).Set(TagText, text)
	if refSeq > 0 {
		msg.SetInt(TagRefSeqNum, refSeq)
	}
	s.log.OnErrorEvent("Message rejected: " + text)
	_ = s.send(msg)
}

func (s *Session) stampHeader(msg *Message, seq int) {
	msg.Set(TagSenderCompID, s.id.SenderCompID).
		Set(TagSenderSubID, s.id.SenderSubID).
		Set(TagSenderLocationID, s.id.SenderLocationID).
		Set(TagTargetCompID, s.id.TargetCompID).
		Set(TagTargetSubID, s.id.TargetSubID).
		Set(TagTargetLocationID, s.id.TargetLocationID).
		Set(TagMsgSeqNum, strconv.Itoa(seq)).
		SetTime(TagSendingTime, time.Now())
}

func (s *Session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
			if err := s.drain(); err != nil {
				s.disconnect("write error: " + err.Error())
				return
			}
		}
	}
}

// drain writes every queued message. Writers hold wmu for the whole pass
// so messages leave in queue order.
func (s *Session) drain() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	for {
		s.mu.Lock()
		if s.outbox.Length() == 0 {
			s.mu.Unlock()
			return nil
		}
		raw := s.outbox.Remove().([]byte)
		s.mu.Unlock()

		if err := s.conn.SetWriteDeadline(time.Now().Add(s.server.cfg.WriteTimeout)); err != nil {
			return err
		}
		if _, err := s.conn.Write(raw); err != nil {
			return err
		}
		s.lastSent.Store(time.Now().UnixNano())
		s.log.OnOutgoing(raw)
	}
}

// sendLogout sends and flushes a Logout once. Concurrent callers return
// after the Logout has been written.
func (s *Session) sendLogout(text string) {
	s.logoutMu.Lock()
	defer s.logoutMu.Unlock()
	if s.logoutSent {
		return
	}
	s.logoutSent = true
	_ = s.send(NewMessage(MsgTypeLogout).Set(TagText, text))
	_ = s.drain()
}

// logout sends a Logout with text, flushes it and disconnects.
func (s *Session) logout(text string) {
	s.sendLogout(text)
	s.disconnect(text)
}

// Logout ends the session from the acceptor side.
func (s *Session) Logout(reason string) {
	s.logout(reason)
}

func (s *Session) disconnect(reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()

		if s.loggedOn.Swap(false) {
			s.server.onLogout(s)
			s.server.app.OnLogout(s.id)
		}
		s.log.OnEvent("Disconnecting: " + reason)
		if err := s.store.Close(); err != nil {
			s.server.logger.Warn("close message store", "session", s.id.String(), "error", err)
		}
	})
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
