package config

import "time"

// Default configuration values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultSocket   = "/tmp/exsim.sock"
	DefaultHTTPAddr = "127.0.0.1:9090"

	DefaultLogonTimeout   = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultMaxMessageSize = 64 * 1024
	DefaultLogonRateLimit = 10
	DefaultLogonBurst     = 20
	DefaultStopTimeout    = 15 * time.Second

	DefaultGCInterval = 10 * time.Minute
)

// Default returns the default configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Management: ManagementSection{
			Socket:   DefaultSocket,
			HTTPAddr: DefaultHTTPAddr,
		},
		Engine: EngineSection{
			LogonTimeout:   DefaultLogonTimeout,
			WriteTimeout:   DefaultWriteTimeout,
			IdleTimeout:    DefaultIdleTimeout,
			MaxMessageSize: DefaultMaxMessageSize,
			LogonRateLimit: DefaultLogonRateLimit,
			LogonBurst:     DefaultLogonBurst,
			StopTimeout:    DefaultStopTimeout,
		},
		Storage: StorageSection{
			GCInterval: DefaultGCInterval,
			SyncWrites: true,
		},
		SessionLog: SessionLogSection{
			Incoming: true,
			Outgoing: true,
			Events:   true,
		},
	}
}
