package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"json", "text"}
)

// Verify validates the configuration and creates the storage directory
// when one is configured.
func Verify(cfg *ServerConfig) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	return errors.Join(
		verifyLog(&cfg.Log),
		verifyManagement(&cfg.Management),
		verifyEngine(&cfg.Engine),
		verifyStorage(&cfg.Storage),
	)
}

func verifyLog(cfg *LogSection) error {
	if !contains(validLevels, strings.ToLower(cfg.Level)) {
		return fmt.Errorf("log.level %q must be one of %s", cfg.Level, strings.Join(validLevels, ", "))
	}
	if !contains(validFormats, strings.ToLower(cfg.Format)) {
		return fmt.Errorf("log.format %q must be one of %s", cfg.Format, strings.Join(validFormats, ", "))
	}
	return nil
}

func verifyManagement(cfg *ManagementSection) error {
	if cfg.HTTPAddr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.HTTPAddr); err != nil {
		return fmt.Errorf("management.http_addr %q: %w", cfg.HTTPAddr, err)
	}
	return nil
}

func verifyEngine(cfg *EngineSection) error {
	var errs []error
	if cfg.LogonTimeout < 0 {
		errs = append(errs, errors.New("engine.logon_timeout must not be negative"))
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, errors.New("engine.write_timeout must not be negative"))
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, errors.New("engine.idle_timeout must not be negative"))
	}
	if cfg.MaxMessageSize < 0 {
		errs = append(errs, errors.New("engine.max_message_size must not be negative"))
	}
	if cfg.LogonRateLimit < 0 || cfg.LogonBurst < 0 {
		errs = append(errs, errors.New("engine.logon_rate_limit and engine.logon_burst must not be negative"))
	}
	if cfg.StopTimeout <= 0 {
		errs = append(errs, errors.New("engine.stop_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return nil
	}
	if cfg.GCInterval <= 0 {
		return errors.New("storage.gc_interval must be positive")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
