package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sudheendrakatikar/exsim/internal/server/httpserver"
	"github.com/sudheendrakatikar/exsim/internal/server/localserver"
	"github.com/sudheendrakatikar/exsim/internal/server/management"
)

type fakeEngine struct{}

func (*fakeEngine) Attributes() map[string]any {
	return map[string]any{"running": true, "sessions": 3}
}

func newRegistry(t *testing.T) (*management.Registry, string) {
	t.Helper()
	reg := management.NewRegistry("test", nil, nil)
	name, err := reg.Register(&fakeEngine{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return reg, name
}

func startSocket(t *testing.T, reg *management.Registry) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "exsim")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "ctl.sock")

	srv := localserver.New(path, localserver.NewHandler(reg), nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	done := make(chan struct{})
	go func() {
		srv.Serve()
		close(done)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		<-done
	})
	return path
}

func startHTTP(t *testing.T, reg *management.Registry) string {
	t.Helper()
	handler := localserver.NewHandler(reg)
	ts := httptest.NewServer(httpserver.NewRouter(&httpserver.RouterConfig{
		Objects: reg,
		Status:  func() any { return handler.Status() },
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestClients(t *testing.T) {
	reg, name := newRegistry(t)
	clients := map[string]Client{
		"socket": NewSocketClient(startSocket(t, reg)),
		"http":   NewHTTPClient(startHTTP(t, reg)),
	}

	for kind, c := range clients {
		t.Run(kind, func(t *testing.T) {
			defer c.Close()
			ctx := context.Background()

			objects, err := c.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(objects) != 1 || objects[0].Name != name {
				t.Fatalf("List() = %+v", objects)
			}

			info, err := c.Get(ctx, name)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if info.Attributes["running"] != true || info.Attributes["sessions"] != 3.0 {
				t.Errorf("Attributes = %v", info.Attributes)
			}
			if info.RegisteredAt.IsZero() {
				t.Error("RegisteredAt is zero")
			}

			if _, err := c.Get(ctx, "test:type=Connector,id=missing"); err == nil || !strings.Contains(err.Error(), "not found") {
				t.Errorf("Get(missing) error = %v", err)
			}

			st, err := c.Status(ctx)
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if st.Objects != 1 || st.PID != os.Getpid() {
				t.Errorf("Status() = %+v", st)
			}
		})
	}
}

func TestSocketClient_NotRunning(t *testing.T) {
	c := NewSocketClient(filepath.Join(t.TempDir(), "missing.sock"))
	if _, err := c.List(context.Background()); err == nil {
		t.Error("List() without server should fail")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() without connection error = %v", err)
	}
}

func TestSocketClient_Reconnects(t *testing.T) {
	reg, _ := newRegistry(t)
	c := NewSocketClient(startSocket(t, reg))
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := c.List(ctx); err != nil {
		t.Errorf("List() after Close error = %v", err)
	}
	c.Close()
}

func TestNewHTTPClient(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:9090":         "http://127.0.0.1:9090",
		"http://localhost:9090/": "http://localhost:9090",
		"https://exsim.example":  "https://exsim.example",
	}
	for in, want := range tests {
		if got := NewHTTPClient(in).BaseURL(); got != want {
			t.Errorf("NewHTTPClient(%q).BaseURL() = %q, want %q", in, got, want)
		}
	}
}

func TestParseResponse_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coded":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"EX-HTTP-4041","message":"object not found: x"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL)
	var out any
	if err := c.getJSON(context.Background(), "/coded", &out); err == nil || err.Error() != "[EX-HTTP-4041] object not found: x" {
		t.Errorf("coded error = %v", err)
	}
	if err := c.getJSON(context.Background(), "/plain", &out); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("plain error = %v", err)
	}
}
