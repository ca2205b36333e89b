package fixserver

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
	"github.com/sudheendrakatikar/exsim/internal/core/service"
	"github.com/sudheendrakatikar/exsim/internal/infra/tlsroots"
	"github.com/sudheendrakatikar/exsim/internal/settings"
	"github.com/sudheendrakatikar/exsim/internal/storage"
	"github.com/sudheendrakatikar/exsim/internal/telemetry/metric"
	"github.com/sudheendrakatikar/exsim/internal/telemetry/sessionlog"
	"github.com/sudheendrakatikar/exsim/pkg/cmap"
)

// Config holds the acceptor engine tuning knobs. Listening addresses come
// from the session settings, not from here.
type Config struct {
	// LogonTimeout bounds the wait for the first message (default: 10s).
	LogonTimeout time.Duration
	// WriteTimeout is the timeout for writing one message (default: 10s).
	WriteTimeout time.Duration
	// IdleTimeout is the read timeout of sessions with HeartBtInt=0 (default: 5m).
	IdleTimeout time.Duration
	// MaxMessageSize limits the BodyLength of inbound messages (default: 64KB).
	MaxMessageSize int
	// LogonRateLimit is the number of connections per second accepted from
	// one IP (default: 10). Set to 0 to disable rate limiting.
	LogonRateLimit float64
	// LogonBurst is the burst size of the per-IP limiter (default: 20).
	LogonBurst int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogonTimeout:   10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    5 * time.Minute,
		MaxMessageSize: MaxBodyLength,
		LogonRateLimit: 10,
		LogonBurst:     20,
	}
}

// listener groups everything bound to one ListeningAddress.
type listener struct {
	addr     domain.ListeningAddress
	tls      *tls.Config
	certs    *tlsroots.Watcher
	static   map[domain.SessionID]*domain.SessionSpec
	provider atomic.Pointer[providerBox]
	ln       net.Listener
}

type providerBox struct {
	p domain.SessionProvider
}

// Server is a FIX acceptor. It binds every acceptor address named in the
// settings and admits inbound logons to statically configured sessions or,
// failing that, to the session provider installed for the address.
type Server struct {
	cfg     *Config
	app     Application
	stores  storage.Factory
	logs    sessionlog.Factory
	metrics *metric.Registry
	logger  *slog.Logger

	listeners map[domain.ListeningAddress]*listener
	order     []domain.ListeningAddress

	sessions *cmap.Map[domain.SessionID, *Session]
	limiters *cmap.Map[string, *rate.Limiter]

	mu        sync.Mutex
	running   atomic.Bool
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	collector *metric.Collector
}

// New creates an acceptor for the acceptor sections of st.
//
// Sections with ConnectionType=initiator are ignored. Every other section
// must be an acceptor with a valid listening address.
func New(st *settings.Settings, app Application, stores storage.Factory, logs sessionlog.Factory, cfg *Config, metrics *metric.Registry, logger *slog.Logger) (*Server, error) {
	if st == nil {
		return nil, domain.ErrConfig.WithDetails("settings are required")
	}
	if app == nil {
		return nil, domain.ErrConfig.WithDetails("application is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if stores == nil {
		stores = storage.NewMemoryStoreFactory()
	}
	if logs == nil {
		logs = sessionlog.NullLogFactory{}
	}
	if metrics == nil {
		metrics = metric.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		app:       app,
		stores:    stores,
		logs:      logs,
		metrics:   metrics,
		logger:    logger,
		listeners: make(map[domain.ListeningAddress]*listener),
		sessions:  cmap.New[domain.SessionID, *Session](),
		limiters:  cmap.New[string, *rate.Limiter](),
	}

	for _, id := range st.Sections() {
		ct, err := st.GetString(id, settings.ConnectionType)
		if err != nil {
			return nil, domain.ErrConfig.WithDetailsf("%s is required for session %s", settings.ConnectionType, id)
		}
		if ct == "initiator" {
			logger.Warn("initiator session ignored", "session", id.String())
			continue
		}
		if ct != settings.ConnectionTypeAcceptor {
			return nil, domain.ErrConfig.WithDetailsf("invalid %s %q for session %s", settings.ConnectionType, ct, id)
		}

		addr, err := service.AcceptorAddress(st, id)
		if err != nil {
			return nil, err
		}
		l, err := s.listenerFor(st, id, addr)
		if err != nil {
			return nil, err
		}

		isTemplate := false
		if st.IsSetting(id, settings.AcceptorTemplate) {
			if isTemplate, err = st.GetBool(id, settings.AcceptorTemplate); err != nil {
				return nil, err
			}
		}
		if isTemplate {
			continue
		}

		dict, err := st.SessionSettings(id)
		if err != nil {
			return nil, err
		}
		key := id
		key.Qualifier = ""
		if _, dup := l.static[key]; dup {
			return nil, domain.ErrConfig.WithDetailsf("session %s is configured twice on %s", key, addr)
		}
		l.static[key] = &domain.SessionSpec{ID: id, TemplateID: id, Settings: dict}
	}

	if len(s.listeners) == 0 {
		return nil, domain.ErrConfig.WithDetails("no acceptor sessions configured")
	}

	s.collector = metric.NewCollector("engine", map[string]string{
		"listeners":       "Listening addresses bound by the acceptor.",
		"sessions":        "Sessions attached to the acceptor.",
		"static_sessions": "Statically configured acceptor sessions.",
	}, nil, s.snapshot)

	return s, nil
}

func (s *Server) listenerFor(st *settings.Settings, id domain.SessionID, addr domain.ListeningAddress) (*listener, error) {
	useSSL := false
	if st.IsSetting(id, settings.SocketUseSSL) {
		v, err := st.GetBool(id, settings.SocketUseSSL)
		if err != nil {
			return nil, err
		}
		useSSL = v
	}

	l, ok := s.listeners[addr]
	if !ok {
		l = &listener{addr: addr, static: make(map[domain.SessionID]*domain.SessionSpec)}
		s.listeners[addr] = l
		s.order = append(s.order, addr)
	} else if (l.tls != nil) != useSSL {
		return nil, domain.ErrConfig.WithDetailsf("%s differs between sessions on %s", settings.SocketUseSSL, addr)
	}

	if useSSL && l.tls == nil {
		if err := s.loadTLS(st, id, l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// loadTLS sets up the listener certificate and, when SocketTrustStore
// names a PEM bundle or directory, client certificate verification.
func (s *Server) loadTLS(st *settings.Settings, id domain.SessionID, l *listener) error {
	cert, err := st.GetString(id, settings.SocketCertificateFile)
	if err != nil {
		return err
	}
	key, err := st.GetString(id, settings.SocketKeyFile)
	if err != nil {
		return err
	}
	certs, err := tlsroots.NewWatcher(cert, key, tlsroots.WithLogger(s.logger))
	if err != nil {
		return domain.ErrConfig.WithDetailsf("load certificate for %s", l.addr).WithCause(err)
	}

	var clientCAs *tlsroots.Pool
	if st.IsSetting(id, settings.SocketTrustStore) {
		path, err := st.GetString(id, settings.SocketTrustStore)
		if err != nil {
			return err
		}
		if clientCAs, err = tlsroots.LoadPool(path); err != nil {
			return domain.ErrConfig.WithDetailsf("load trust store for %s", l.addr).WithCause(err)
		}
	}
	requireClient := false
	if st.IsSetting(id, settings.NeedClientAuth) {
		if requireClient, err = st.GetBool(id, settings.NeedClientAuth); err != nil {
			return err
		}
	}

	l.certs = certs
	l.tls = tlsroots.ServerConfig(certs, clientCAs, requireClient)
	return nil
}

// SetSessionProvider installs p for logons arriving on addr. A later call
// for the same address replaces the earlier provider.
func (s *Server) SetSessionProvider(addr domain.ListeningAddress, p domain.SessionProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listeners[addr]
	if !ok {
		l = &listener{addr: addr, static: make(map[domain.SessionID]*domain.SessionSpec)}
		s.listeners[addr] = l
		s.order = append(s.order, addr)
	}
	l.provider.Store(&providerBox{p: p})
}

// Start binds every listening address and starts accepting. Either all
// addresses are bound or none are.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		return domain.ErrRuntime.WithDetails("acceptor already started")
	}

	var bound []*listener
	for _, addr := range s.order {
		l := s.listeners[addr]
		ln, err := net.Listen("tcp", addr.String())
		if err != nil {
			for _, b := range bound {
				_ = b.ln.Close()
				b.ln = nil
			}
			s.running.Store(false)
			return domain.ErrRuntime.WithDetailsf("bind %s", addr).WithCause(err)
		}
		if l.tls != nil {
			ln = tls.NewListener(ln, l.tls)
		}
		l.ln = ln
		bound = append(bound, l)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	for _, l := range bound {
		if l.certs != nil {
			l.certs.StartAsync()
		}
		s.logger.Info("acceptor listening", "address", l.ln.Addr().String(), "tls", l.tls != nil)
		s.wg.Add(1)
		go func(l *listener, ln net.Listener) {
			defer s.wg.Done()
			if err := s.acceptLoop(ctx, l, ln); err != nil && s.running.Load() {
				s.logger.Error("accept loop failed", "address", l.addr.String(), "error", err)
			}
		}(l, l.ln)
	}
	if s.cfg.LogonRateLimit > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sweepLimiters(ctx, limiterSweepInterval)
		}()
	}
	return nil
}

// Stop closes the listeners, logs out every session and waits for the
// connection goroutines until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return nil
	}

	var errs []error
	for _, addr := range s.order {
		l := s.listeners[addr]
		if l.ln == nil {
			continue
		}
		if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		l.ln = nil
		if l.certs != nil {
			l.certs.Stop()
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	s.logger.Info("acceptor stopped")
	return errors.Join(errs...)
}

// Addrs returns the bound addresses in configuration order. Ports
// configured as 0 are reported as the port actually chosen.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []net.Addr
	for _, addr := range s.order {
		if l := s.listeners[addr]; l.ln != nil {
			out = append(out, l.ln.Addr())
		}
	}
	return out
}

// Session returns the active session for id.
func (s *Server) Session(id domain.SessionID) (*Session, bool) {
	return s.sessions.Get(id)
}

// Sessions returns a snapshot of all active sessions sorted by ID.
func (s *Server) Sessions() []SessionInfo {
	all := s.sessions.Values()
	out := make([]SessionInfo, 0, len(all))
	for _, sess := range all {
		out = append(out, sess.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Send queues msg on the active session id.
func (s *Server) Send(id domain.SessionID, msg *Message) error {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return domain.ErrRuntime.WithDetailsf("session %s is not active", id)
	}
	return sess.Send(msg)
}

// Attributes describes the acceptor for the management interface.
func (s *Server) Attributes() map[string]any {
	s.mu.Lock()
	addrs := make([]string, 0, len(s.order))
	static := 0
	dynamic := make([]string, 0)
	for _, addr := range s.order {
		l := s.listeners[addr]
		addrs = append(addrs, addr.String())
		static += len(l.static)
		if l.provider.Load() != nil {
			dynamic = append(dynamic, addr.String())
		}
	}
	s.mu.Unlock()

	return map[string]any{
		"running":           s.running.Load(),
		"addresses":         addrs,
		"dynamic_addresses": dynamic,
		"static_sessions":   static,
		"sessions":          s.Sessions(),
	}
}

// Describe implements prometheus.Collector.
func (s *Server) Describe(ch chan<- *prometheus.Desc) {
	s.collector.Describe(ch)
}

// Collect implements prometheus.Collector.
func (s *Server) Collect(ch chan<- prometheus.Metric) {
	s.collector.Collect(ch)
}

func (s *Server) snapshot() map[string]float64 {
	s.mu.Lock()
	listening, static := 0, 0
	for _, l := range s.listeners {
		if l.ln != nil {
			listening++
		}
		static += len(l.static)
	}
	s.mu.Unlock()

	return map[string]float64{
		"listeners":       float64(listening),
		"sessions":        float64(s.sessions.Count()),
		"static_sessions": float64(static),
	}
}

func (s *Server) acceptLoop(ctx context.Context, l *listener, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		s.metrics.ConnectionsAccepted.WithLabelValues(l.addr.String()).Inc()
		if !s.allow(c.RemoteAddr()) {
			s.metrics.LogonsRejected.WithLabelValues(metric.ReasonRateLimited).Inc()
			s.logger.Warn("connection rate limited", "remote", c.RemoteAddr().String())
			_ = c.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, l, c)
		}()
	}
}

// limiterSweepInterval is how often idle per-IP logon limiters are dropped.
const limiterSweepInterval = time.Minute

// sweepLimiters drops limiters whose bucket has refilled, so addresses
// that stopped connecting do not accumulate.
func (s *Server) sweepLimiters(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			full := float64(s.cfg.LogonBurst)
			if n := s.limiters.DeleteIf(func(_ string, lim *rate.Limiter) bool {
				return lim.Tokens() >= full
			}); n > 0 {
				s.logger.Debug("dropped idle logon limiters", "count", n)
			}
		}
	}
}

func (s *Server) allow(remote net.Addr) bool {
	if s.cfg.LogonRateLimit <= 0 {
		return true
	}
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		host = remote.String()
	}
	lim, _ := s.limiters.GetOrSet(host, rate.NewLimiter(rate.Limit(s.cfg.LogonRateLimit), s.cfg.LogonBurst))
	return lim.Allow()
}

// serveConn reads the Logon, resolves the session and hands the connection
// to it. A connection that does not resolve is closed without a reply.
func (s *Server) serveConn(ctx context.Context, l *listener, c net.Conn) {
	remote := c.RemoteAddr().String()

	if err := c.SetReadDeadline(time.Now().Add(s.cfg.LogonTimeout)); err != nil {
		_ = c.Close()
		return
	}
	closeOnCancel := context.AfterFunc(ctx, func() { _ = c.Close() })
	br := bufio.NewReader(c)
	raw, err := ReadMessage(br, s.cfg.MaxMessageSize)
	if !closeOnCancel() {
		return
	}
	if err != nil {
		reason := metric.ReasonProtocol
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			reason = metric.ReasonTimeout
		}
		s.reject(c, reason, "no valid logon received", "error", err)
		return
	}
	logon, err := ParseMessage(raw)
	if err != nil || logon.MsgType() != MsgTypeLogon {
		s.reject(c, metric.ReasonProtocol, "first message is not a logon")
		return
	}
	s.metricMessageReceived(MsgTypeLogon)

	peer := PeerIdentity(logon)
	spec, err := s.resolve(l, peer)
	if err != nil {
		if domain.IsNoMatch(err) {
			s.reject(c, metric.ReasonNoMatch, "logon rejected, no session matches", "peer", peer.String(), "remote", remote)
		} else {
			s.reject(c, metric.ReasonProtocol, "logon rejected", "peer", peer.String(), "error", err)
		}
		return
	}

	store, err := s.stores.Create(spec.ID)
	if err != nil {
		s.reject(c, metric.ReasonStore, "open message store", "session", spec.ID.String(), "error", err)
		return
	}

	sess := newSession(s, spec, l.addr, c, br, store)
	if !s.sessions.SetIfAbsent(spec.ID, sess) {
		_ = store.Close()
		s.metrics.LogonsRejected.WithLabelValues(metric.ReasonDuplicate).Inc()
		s.logger.Warn("duplicate logon rejected", "session", spec.ID.String(), "remote", remote)
		if scratch, err := storage.NewMemoryStoreFactory().Create(spec.ID); err == nil {
			newSession(s, spec, l.addr, c, br, scratch).logout("Session already logged on")
		} else {
			_ = c.Close()
		}
		return
	}
	defer s.sessions.Delete(spec.ID)
	stopOnCancel := context.AfterFunc(ctx, func() { sess.Logout("Acceptor shutting down") })
	defer stopOnCancel()

	kind := "static"
	if spec.Dynamic {
		kind = "dynamic"
	}
	s.metrics.LogonsAccepted.WithLabelValues(kind).Inc()
	s.logger.Info("logon accepted", "session", spec.ID.String(), "kind", kind, "remote", remote)

	sess.run(logon)
}

func (s *Server) resolve(l *listener, peer domain.SessionID) (*domain.SessionSpec, error) {
	if spec, ok := l.static[peer]; ok {
		out := *spec
		out.Settings = settings.Dictionary(spec.Settings).Clone()
		return &out, nil
	}
	if box := l.provider.Load(); box != nil {
		return box.p.SessionSpec(peer)
	}
	return nil, domain.ErrNoMatch.WithDetailsf("no session for %s on %s", peer, l.addr)
}

func (s *Server) reject(c net.Conn, reason, msg string, args ...any) {
	s.metrics.LogonsRejected.WithLabelValues(reason).Inc()
	s.logger.Warn(msg, append(args, "reason", reason)...)
	_ = c.Close()
}

func (s *Server) onLogon(*Session) {
	s.metrics.SessionsActive.Inc()
}

func (s *Server) onLogout(*Session) {
	s.metrics.SessionsActive.Dec()
}

func (s *Server) metricMessageReceived(msgType string) {
	s.metrics.MessagesReceived.WithLabelValues(msgType).Inc()
}

func (s *Server) metricMessageSent(msgType string) {
	s.metrics.MessagesSent.WithLabelValues(msgType).Inc()
}

// PeerIdentity derives the acceptor-relative SessionID of a Logon: the
// peer's SenderCompID becomes the TargetCompID and vice versa.
func PeerIdentity(logon *Message) domain.SessionID {
	return domain.SessionID{
		BeginString:      logon.GetString(TagBeginString),
		SenderCompID:     logon.GetString(TagTargetCompID),
		SenderSubID:      logon.GetString(TagTargetSubID),
		SenderLocationID: logon.GetString(TagTargetLocationID),
		TargetCompID:     logon.GetString(TagSenderCompID),
		TargetSubID:      logon.GetString(TagSenderSubID),
		TargetLocationID: logon.GetString(TagSenderLocationID),
	}
}
