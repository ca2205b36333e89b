package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sudheendrakatikar/exsim/internal/infra/confloader"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify(Default()) error = %v", err)
	}
	if cfg.Management.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Management.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Engine.LogonTimeout != DefaultLogonTimeout {
		t.Errorf("LogonTimeout = %v, want %v", cfg.Engine.LogonTimeout, DefaultLogonTimeout)
	}
	if cfg.Storage.DataDir != "" {
		t.Errorf("DataDir = %q, want memory store by default", cfg.Storage.DataDir)
	}
	if !cfg.Storage.SyncWrites {
		t.Error("SyncWrites should default to true")
	}
	if !cfg.SessionLog.Events {
		t.Error("session events should be logged by default")
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"bad level", func(c *ServerConfig) { c.Log.Level = "trace" }, "log.level"},
		{"bad format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
		{"bad http addr", func(c *ServerConfig) { c.Management.HTTPAddr = "localhost" }, "management.http_addr"},
		{"http disabled", func(c *ServerConfig) { c.Management.HTTPAddr = "" }, ""},
		{"negative logon timeout", func(c *ServerConfig) { c.Engine.LogonTimeout = -time.Second }, "engine.logon_timeout"},
		{"negative burst", func(c *ServerConfig) { c.Engine.LogonBurst = -1 }, "engine.logon_burst"},
		{"zero stop timeout", func(c *ServerConfig) { c.Engine.StopTimeout = 0 }, "engine.stop_timeout"},
		{"rate limit disabled", func(c *ServerConfig) { c.Engine.LogonRateLimit = 0 }, ""},
		{"uppercase level", func(c *ServerConfig) { c.Log.Level = "DEBUG" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Verify() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_Nil(t *testing.T) {
	if err := Verify(nil); err == nil {
		t.Error("Verify(nil) should fail")
	}
}

func TestVerify_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "subdir", "data")

	cfg := Default()
	cfg.Storage.DataDir = dir
	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("data directory was not created: %v", err)
	}

	cfg.Storage.GCInterval = 0
	if err := Verify(cfg); err == nil {
		t.Error("Verify() with zero gc_interval should fail")
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exsim.yaml")
	content := `
log:
  level: debug
engine:
  logon_timeout: 3s
  logon_rate_limit: 2.5
sessionlog:
  incoming: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EXSIM_MANAGEMENT_HTTP_ADDR", "127.0.0.1:19090")

	cfg := Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.Engine.LogonTimeout != 3*time.Second {
		t.Errorf("LogonTimeout = %v", cfg.Engine.LogonTimeout)
	}
	if cfg.Engine.LogonRateLimit != 2.5 {
		t.Errorf("LogonRateLimit = %v", cfg.Engine.LogonRateLimit)
	}
	if cfg.SessionLog.Incoming || !cfg.SessionLog.Outgoing {
		t.Errorf("SessionLog = %+v", cfg.SessionLog)
	}
	if cfg.Management.HTTPAddr != "127.0.0.1:19090" {
		t.Errorf("HTTPAddr = %q, env should override", cfg.Management.HTTPAddr)
	}
	if cfg.Engine.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("WriteTimeout = %v, default lost", cfg.Engine.WriteTimeout)
	}
}
