package command

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sudheendrakatikar/exsim/internal/server/httpserver"
	"github.com/sudheendrakatikar/exsim/internal/server/localserver"
	"github.com/sudheendrakatikar/exsim/internal/server/management"
)

type fakeEngine struct{}

func (*fakeEngine) Attributes() map[string]any {
	return map[string]any{
		"running":   true,
		"sessions":  2,
		"addresses": []string{"0.0.0.0:9876", "0.0.0.0:9880"},
	}
}

func startHTTP(t *testing.T) (string, string) {
	t.Helper()
	reg := management.NewRegistry("exsim", nil, nil)
	name, err := reg.Register(&fakeEngine{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	handler := localserver.NewHandler(reg)
	ts := httptest.NewServer(httpserver.NewRouter(&httpserver.RouterConfig{
		Objects: reg,
		Status:  func() any { return handler.Status() },
	}))
	t.Cleanup(ts.Close)
	return ts.URL, name
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := App()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := app.RunContext(ctx, append([]string{"exsim-ctl"}, args...))
	return out.String(), err
}

func TestCommands(t *testing.T) {
	url, name := startHTTP(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"list table", []string{"list"}, []string{"NAME", "TYPE", name}},
		{"list json", []string{"-o", "json", "list"}, []string{`"name": "` + name + `"`}},
		{"list yaml", []string{"-o", "yaml", "ls"}, []string{"- name:", name}},
		{"get table", []string{"get", name}, []string{"addresses", "0.0.0.0:9876,0.0.0.0:9880", "sessions", "running"}},
		{"get json", []string{"-o", "json", "get", name}, []string{`"sessions": 2`}},
		{"status table", []string{"status"}, []string{"uptime", "objects"}},
		{"status yaml", []string{"-o", "yaml", "status"}, []string{"objects: 1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runApp(t, append([]string{"--http", url}, tt.args...)...)
			if err != nil {
				t.Fatalf("run error = %v\n%s", err, out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestCommands_Errors(t *testing.T) {
	url, _ := startHTTP(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad format", []string{"--http", url, "-o", "xml", "list"}, "unknown output format"},
		{"get without name", []string{"--http", url, "get"}, "usage"},
		{"unknown object", []string{"--http", url, "get", "exsim:id=nope"}, "not found"},
		{"no socket", []string{"--socket", "/nonexistent/exsim.sock", "list"}, "connect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestAttributeValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{2.0, "2"},
		{0.5, "0.5"},
		{true, "true"},
		{[]any{}, "-"},
		{[]any{"a", "b"}, "a,b"},
		{"x", "x"},
	}
	for _, tt := range tests {
		if got := attributeValue(tt.in); got != tt.want {
			t.Errorf("attributeValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
