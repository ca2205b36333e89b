package localserver

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// idleTimeout closes connections that send nothing for this long.
const idleTimeout = 5 * time.Minute

// maxLineLength bounds one request line.
const maxLineLength = 4096

// Server represents the local management server.
type Server struct {
	path    string
	handler *Handler
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a local server on socketPath.
func New(socketPath string, handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		path:    socketPath,
		handler: handler,
		logger:  logger,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Listen creates the socket. A stale socket file left by a previous run is
// removed first.
func (s *Server) Listen() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		_ = ln.Close()
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.running.Store(true)
	return nil
}

// Serve accepts connections until Shutdown. Listen must have succeeded.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("localserver: Serve called before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.mu.Lock()
		if !s.running.Load() {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// ListenAndServe calls Listen then Serve.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown closes the listener and every open connection, then waits for
// the connection goroutines until ctx expires. The socket file is removed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var closeErr error
	s.mu.Lock()
	if s.listener != nil {
		closeErr = s.listener.Close()
		s.listener = nil
	}
	for c := range s.conns {
		_ = c.Close()
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
		return ctx.Err()
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) && closeErr == nil {
		closeErr = err
	}
	if errors.Is(closeErr, net.ErrClosed) {
		closeErr = nil
	}
	return closeErr
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineLength)
	w := bufio.NewWriter(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && s.running.Load() {
				s.logger.Debug("local connection closed", "error", err)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "quit") {
			return
		}
		if err := s.handler.Execute(w, line); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}
