package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds a certificate and key pair and reloads it when either
// file changes.
type Watcher struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	mu   sync.RWMutex
	cert *tls.Certificate

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets how long the files must be quiet before a reload, so
// that a certificate and key replaced one after the other load together.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher loads the key pair. It fails if the initial load fails.
func NewWatcher(certFile, keyFile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return w, nil
}

// Start watches the certificate files until Stop is called.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer fw.Close()

	// Directories are watched so renames into place are seen.
	certDir, keyDir := filepath.Dir(w.certFile), filepath.Dir(w.keyFile)
	if err := fw.Add(certDir); err != nil {
		return fmt.Errorf("tlsroots: watch %s: %w", certDir, err)
	}
	if keyDir != certDir {
		if err := fw.Add(keyDir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", keyDir, err)
		}
	}

	certPath, _ := filepath.Abs(w.certFile)
	keyPath, _ := filepath.Abs(w.keyFile)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			changed, _ := filepath.Abs(event.Name)
			if changed != certPath && changed != keyPath {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			if err := w.reload(); err != nil {
				w.logger.Error("certificate reload failed, keeping the previous one", "cert_file", w.certFile, "error", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("certificate watcher error", "cert_file", w.certFile, "error", err)
		case <-w.done:
			return nil
		}
	}
}

// StartAsync starts watching in a goroutine.
func (w *Watcher) StartAsync() {
	go func() {
		if err := w.Start(); err != nil {
			w.logger.Error("certificate watcher stopped", "cert_file", w.certFile, "error", err)
		}
	}()
}

// Stop stops watching. Further calls are no-ops.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// GetCertificate returns the current certificate. It has the signature of
// tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cert, nil
}

func (w *Watcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}
	cert.Leaf = leaf

	w.mu.Lock()
	w.cert = &cert
	w.mu.Unlock()

	w.logger.Info("certificate loaded",
		"cert_file", w.certFile,
		"subject", leaf.Subject.String(),
		"not_after", leaf.NotAfter)
	return nil
}

// NotAfter returns the expiry of the current certificate.
func (w *Watcher) NotAfter() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cert.Leaf.NotAfter
}
