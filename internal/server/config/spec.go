package config

import "time"

// ServerConfig is the root configuration for exsim.
type ServerConfig struct {
	Log        LogSection        `koanf:"log" yaml:"log"`
	Management ManagementSection `koanf:"management" yaml:"management"`
	Engine     EngineSection     `koanf:"engine" yaml:"engine"`
	Storage    StorageSection    `koanf:"storage" yaml:"storage"`
	SessionLog SessionLogSection `koanf:"sessionlog" yaml:"sessionlog"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// ManagementSection configures the management endpoints. An empty value
// disables the endpoint.
type ManagementSection struct {
	// Socket is the unix socket path used by exsim-ctl.
	Socket string `koanf:"socket" yaml:"socket"`
	// HTTPAddr serves /metrics, /healthz and /v1/objects.
	HTTPAddr string `koanf:"http_addr" yaml:"http_addr"`
}

// EngineSection configures the FIX engine.
type EngineSection struct {
	LogonTimeout   time.Duration `koanf:"logon_timeout" yaml:"logon_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout    time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`
	MaxMessageSize int           `koanf:"max_message_size" yaml:"max_message_size"`
	// LogonRateLimit is connections per second per remote IP. 0 disables it.
	LogonRateLimit float64 `koanf:"logon_rate_limit" yaml:"logon_rate_limit"`
	LogonBurst     int     `koanf:"logon_burst" yaml:"logon_burst"`
	// StopTimeout bounds the graceful shutdown of the whole process.
	StopTimeout time.Duration `koanf:"stop_timeout" yaml:"stop_timeout"`
}

// StorageSection configures the message store.
//
// Sequence numbers are kept in memory unless DataDir is set here or
// FileStorePath is set in the session settings.
type StorageSection struct {
	DataDir    string        `koanf:"data_dir" yaml:"data_dir"`
	GCInterval time.Duration `koanf:"gc_interval" yaml:"gc_interval"`
	SyncWrites bool          `koanf:"sync_writes" yaml:"sync_writes"`
}

// SessionLogSection selects what the per-session screen log prints.
type SessionLogSection struct {
	Incoming bool `koanf:"incoming" yaml:"incoming"`
	Outgoing bool `koanf:"outgoing" yaml:"outgoing"`
	Events   bool `koanf:"events" yaml:"events"`
	JSON     bool `koanf:"json" yaml:"json"`
}
