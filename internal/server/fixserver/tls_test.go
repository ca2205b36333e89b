package fixserver

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
	"github.com/sudheendrakatikar/exsim/internal/settings"
)

// selfSigned writes a self-signed CA certificate usable for both ends of
// a handshake.
func selfSigned(t *testing.T, dir string) (certFile, keyFile string, pair tls.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "exsim test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	certFile = filepath.Join(dir, "exsim.pem")
	keyFile = filepath.Join(dir, "exsim.key")
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	pair, err = tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile, pair
}

func tlsCFG(cert, key string) string {
	return fmt.Sprintf(`
[DEFAULT]
ConnectionType=acceptor
BeginString=FIX.4.4
SocketAcceptAddress=127.0.0.1
SocketAcceptPort=0
HeartBtInt=30
SocketUseSSL=Y
SocketCertificateFile=%s
SocketKeyFile=%s
SocketTrustStore=%s
NeedClientAuth=Y

[SESSION]
SenderCompID=EXSIM
TargetCompID=*
AcceptorTemplate=Y
`, cert, key, cert)
}

func dialTLS(t *testing.T, addr string, cfg *tls.Config, sender, target string) *testClient {
	t.Helper()
	d := &net.Dialer{Timeout: 2 * time.Second}
	c, err := tls.DialWithDialer(d, "tcp", addr, cfg)
	if err != nil {
		t.Fatalf("tls.Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return &testClient{t: t, conn: c, br: bufio.NewReader(c), seq: 1, sender: sender, target: target}
}

func TestTLS_MutualAuth(t *testing.T) {
	cert, key, pair := selfSigned(t, t.TempDir())
	ta := startAcceptor(t, tlsCFG(cert, key))

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	roots := x509.NewCertPool()
	roots.AddCert(leaf)

	c := dialTLS(t, ta.addr, &tls.Config{
		RootCAs:      roots,
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, "CLIENT1", "EXSIM")
	c.logon()

	if _, ok := ta.srv.Session(domain.SessionID{BeginString: "FIX.4.4", SenderCompID: "EXSIM", TargetCompID: "CLIENT1"}); !ok {
		t.Error("session not active after TLS logon")
	}
}

func TestTLS_ClientCertificateRequired(t *testing.T) {
	cert, key, _ := selfSigned(t, t.TempDir())
	ta := startAcceptor(t, tlsCFG(cert, key))

	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", ta.addr, &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	})
	if err != nil {
		return
	}
	defer conn.Close()

	c := &testClient{t: t, conn: conn, br: bufio.NewReader(conn), seq: 1, sender: "CLIENT1", target: "EXSIM"}
	msg := NewMessage(MsgTypeLogon).Set(TagEncryptMethod, "0").SetInt(TagHeartBtInt, 30)
	msg.Set(TagSenderCompID, c.sender).Set(TagTargetCompID, c.target).SetInt(TagMsgSeqNum, 1).SetTime(TagSendingTime, time.Now())
	conn.Write(msg.Build("FIX.4.4"))

	if resp, err := c.readRaw(); err == nil {
		t.Fatalf("logon without client certificate answered with %s", resp)
	}
}

func TestTLS_ConfigErrors(t *testing.T) {
	dir := t.TempDir()
	cert, key, _ := selfSigned(t, dir)

	tests := []struct {
		name string
		cfg  string
	}{
		{"missing key file", strings.Replace(tlsCFG(cert, key), "SocketKeyFile="+key+"\n", "", 1)},
		{"bad certificate path", tlsCFG(filepath.Join(dir, "none.pem"), key)},
		{"bad trust store", strings.Replace(tlsCFG(cert, key), "SocketTrustStore="+cert, "SocketTrustStore="+key, 1)},
		{"bad NeedClientAuth", strings.Replace(tlsCFG(cert, key), "NeedClientAuth=Y", "NeedClientAuth=maybe", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := settings.ParseCFG(strings.NewReader(tt.cfg))
			if err != nil {
				t.Fatalf("ParseCFG() error = %v", err)
			}
			if _, err := New(st, &recordingApp{}, nil, nil, nil, nil, nil); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}
