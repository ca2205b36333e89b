package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNoCertsFound is returned when no certificates are found in a PEM file.
	ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")
)

// Pool is a set of trusted CA certificates.
type Pool struct {
	certPool *x509.CertPool
	count    int
}

// NewEmptyPool creates an empty pool.
func NewEmptyPool() *Pool {
	return &Pool{certPool: x509.NewCertPool()}
}

// LoadPool reads path, a PEM bundle or a directory of .pem, .crt and .cer
// files, into a new pool.
func LoadPool(path string) (*Pool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: %w", err)
	}
	p := NewEmptyPool()
	if info.IsDir() {
		err = p.AddCertDir(path)
	} else {
		err = p.AddCertFile(path)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AddCertFile adds every certificate of a PEM file.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
	}
	if err := p.AddCertPEM(data); err != nil {
		return fmt.Errorf("%w: %s", err, path)
	}
	return nil
}

// AddCertPEM adds certificates from PEM data. Blocks other than
// CERTIFICATE are skipped.
func (p *Pool) AddCertPEM(pemData []byte) error {
	added := 0
	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		p.certPool.AddCert(cert)
		added++
	}
	if added == 0 {
		return ErrNoCertsFound
	}
	p.count += added
	return nil
}

// AddCertDir adds the certificate files of dir. The directory must yield
// at least one certificate.
func (p *Pool) AddCertDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("tlsroots: read dir %s: %w", dir, err)
	}

	before := p.count
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pem", ".crt", ".cer":
			if err := p.AddCertFile(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
		}
	}
	if p.count == before {
		return fmt.Errorf("%w: %s", ErrNoCertsFound, dir)
	}
	return nil
}

// Len returns the number of certificates added.
func (p *Pool) Len() int {
	return p.count
}

// Pool returns the underlying x509.CertPool.
func (p *Pool) Pool() *x509.CertPool {
	return p.certPool
}

// ServerConfig builds the TLS config of a listener serving the watcher's
// certificate. With a client CA pool, client certificates are verified
// against it; requireClient rejects peers that present none.
func ServerConfig(certs *Watcher, clientCAs *Pool, requireClient bool) *tls.Config {
	cfg := &tls.Config{
		GetCertificate: certs.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
	switch {
	case clientCAs != nil && requireClient:
		cfg.ClientCAs = clientCAs.Pool()
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	case clientCAs != nil:
		cfg.ClientCAs = clientCAs.Pool()
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	case requireClient:
		cfg.ClientAuth = tls.RequireAnyClientCert
	}
	return cfg
}
