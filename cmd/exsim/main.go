package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/sudheendrakatikar/exsim/internal/core/service"
	"github.com/sudheendrakatikar/exsim/internal/infra/buildinfo"
	"github.com/sudheendrakatikar/exsim/internal/infra/confloader"
	"github.com/sudheendrakatikar/exsim/internal/infra/shutdown"
	"github.com/sudheendrakatikar/exsim/internal/server/config"
	"github.com/sudheendrakatikar/exsim/internal/server/fixserver"
	"github.com/sudheendrakatikar/exsim/internal/server/httpserver"
	"github.com/sudheendrakatikar/exsim/internal/server/localserver"
	"github.com/sudheendrakatikar/exsim/internal/server/management"
	"github.com/sudheendrakatikar/exsim/internal/settings"
	"github.com/sudheendrakatikar/exsim/internal/storage"
	"github.com/sudheendrakatikar/exsim/internal/telemetry/logger"
	"github.com/sudheendrakatikar/exsim/internal/telemetry/metric"
	"github.com/sudheendrakatikar/exsim/internal/telemetry/sessionlog"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "exsim",
		Usage:     "FIX acceptor with dynamic session templates",
		ArgsUsage: "[settings-file]",
		Version:   buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "process configuration file (YAML)",
				EnvVars: []string{"EXSIM_CONFIG"},
			},
			&cli.StringFlag{Name: "log-level", Usage: "log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "log-format", Usage: "log format (json, text)"},
			&cli.StringFlag{Name: "http-addr", Usage: "management HTTP address, empty to disable"},
			&cli.StringFlag{Name: "socket", Usage: "management unix socket path, empty to disable"},
			&cli.StringFlag{Name: "data-dir", Usage: "message store directory"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	if c.NArg() > 1 {
		cli.ShowAppHelp(c)
		return cli.Exit("", 1)
	}

	cfg, sources, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(slogger)
	slogger.Debug("configuration loaded", "file", c.String("config"), "sources", sources)

	settingsPath := c.Args().First()
	st, err := loadSettings(settingsPath)
	if err != nil {
		slogger.Error("failed to load session settings", "path", settingsPath, "error", err)
		return cli.Exit("", 1)
	}

	info := buildinfo.Get()
	slogger.Info("starting exsim",
		"version", info.Version,
		"commit", info.Commit,
		"settings", displayPath(settingsPath),
		"sessions", st.Len(),
	)

	metrics := metric.NewRegistry()
	registry := management.NewRegistry(management.DefaultDomain, metrics.Prometheus(), slogger)
	hooks := shutdown.NewHandler(cfg.Engine.StopTimeout, slogger)

	stores, closeStores, err := newStoreFactory(cfg, st, metrics, slogger)
	if err != nil {
		slogger.Error("failed to open message store", "error", err)
		return cli.Exit("", 1)
	}
	hooks.OnShutdown("message store", func(context.Context) error {
		return closeStores()
	})

	logs := sessionlog.NewScreenLogFactory(sessionlog.ScreenOptions{
		Incoming: cfg.SessionLog.Incoming,
		Outgoing: cfg.SessionLog.Outgoing,
		Events:   cfg.SessionLog.Events,
		JSON:     cfg.SessionLog.JSON,
		Output:   os.Stdout,
	})
	engineCfg := &fixserver.Config{
		LogonTimeout:   cfg.Engine.LogonTimeout,
		WriteTimeout:   cfg.Engine.WriteTimeout,
		IdleTimeout:    cfg.Engine.IdleTimeout,
		MaxMessageSize: cfg.Engine.MaxMessageSize,
		LogonRateLimit: cfg.Engine.LogonRateLimit,
		LogonBurst:     cfg.Engine.LogonBurst,
	}
	app := fixserver.NewLogApplication(slogger.With("component", "application"))

	acceptor, err := service.NewAcceptorService(service.AcceptorConfig{
		Settings: st,
		EngineFactory: func(service.SettingsReader) (service.Engine, error) {
			return fixserver.New(st, app, stores, logs, engineCfg, metrics, slogger.With("component", "engine"))
		},
		Registry: registry,
		Logger:   slogger.With("component", "acceptor"),
	})
	if err != nil {
		slogger.Error("failed to create acceptor", "error", err)
		closeStores()
		return cli.Exit("", 1)
	}

	ctx := context.Background()
	if err := acceptor.Start(ctx); err != nil {
		slogger.Error("failed to start acceptor", "error", err)
		acceptor.Close(ctx)
		closeStores()
		return cli.Exit("", 1)
	}
	hooks.OnShutdown("acceptor", acceptor.Close)

	if err := startManagement(cfg, registry, metrics, hooks, slogger); err != nil {
		slogger.Error("failed to start management endpoints", "error", err)
		hooks.Shutdown()
		return cli.Exit("", 1)
	}

	if settingsPath != "" {
		watchSettings(settingsPath, hooks, slogger)
	}

	go waitForEnter(hooks, slogger)
	fmt.Println("press <enter> to quit")

	if err := hooks.Wait(); err != nil {
		slogger.Error("shutdown error", "error", err)
		return cli.Exit("", 1)
	}
	slogger.Info("exsim stopped")
	return nil
}

// loadConfig layers defaults, the config file, the environment and flags.
// It also returns which layer set each non-default key.
func loadConfig(c *cli.Context) (*config.ServerConfig, map[string]string, error) {
	cfg := config.Default()

	loader := confloader.NewLoader(
		confloader.WithConfigFile(c.String("config")),
		confloader.WithOverrides(flagOverrides(c)),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader.Sources(), nil
}

// flagOverrides returns the flags set on the command line as a nested map.
func flagOverrides(c *cli.Context) map[string]any {
	keys := []struct {
		flag, section, key string
	}{
		{"log-level", "log", "level"},
		{"log-format", "log", "format"},
		{"http-addr", "management", "http_addr"},
		{"socket", "management", "socket"},
		{"data-dir", "storage", "data_dir"},
	}

	out := make(map[string]any)
	for _, k := range keys {
		if !c.IsSet(k.flag) {
			continue
		}
		section, _ := out[k.section].(map[string]any)
		if section == nil {
			section = make(map[string]any)
			out[k.section] = section
		}
		section[k.key] = c.String(k.flag)
	}
	return out
}

func loadSettings(path string) (*settings.Settings, error) {
	if path == "" {
		return settings.Bundled()
	}
	return settings.Load(path)
}

func displayPath(path string) string {
	if path == "" {
		return "bundled:" + settings.BundledName
	}
	return path
}

// newStoreFactory opens a Badger backed store when a directory is
// configured, either as storage.data_dir or as FileStorePath in the
// [DEFAULT] section. Otherwise sequence numbers are kept in memory.
func newStoreFactory(cfg *config.ServerConfig, st *settings.Settings, metrics *metric.Registry, logger *slog.Logger) (storage.Factory, func() error, error) {
	dir := cfg.Storage.DataDir
	if dir == "" {
		dir = st.Defaults()[settings.FileStorePath]
	}
	if dir == "" {
		logger.Info("message store in memory")
		return storage.NewMemoryStoreFactory(), func() error { return nil }, nil
	}

	kvCfg := storage.DefaultBadgerConfig(filepath.Clean(dir))
	kvCfg.GCInterval = cfg.Storage.GCInterval
	kvCfg.SyncWrites = cfg.Storage.SyncWrites

	kv, err := storage.OpenBadger(kvCfg, logger.With("component", "badger"))
	if err != nil {
		return nil, nil, err
	}
	if err := metrics.Prometheus().Register(kv); err != nil {
		_ = kv.Close()
		return nil, nil, fmt.Errorf("register store metrics: %w", err)
	}
	logger.Info("message store opened", "dir", dir)
	return storage.NewBadgerStoreFactory(kv, logger), kv.Close, nil
}

func startManagement(cfg *config.ServerConfig, registry *management.Registry, metrics *metric.Registry, hooks *shutdown.Handler, logger *slog.Logger) error {
	handler := localserver.NewHandler(registry)

	if path := cfg.Management.Socket; path != "" {
		local := localserver.New(path, handler, logger.With("component", "localserver"))
		if err := local.Listen(); err != nil {
			return fmt.Errorf("management socket: %w", err)
		}
		go func() {
			if err := local.Serve(); err != nil {
				logger.Error("management socket stopped", "error", err)
			}
		}()
		hooks.OnShutdown("management socket", local.Shutdown)
		logger.Info("management socket listening", "path", path)
	}

	if addr := cfg.Management.HTTPAddr; addr != "" {
		router := httpserver.NewRouter(&httpserver.RouterConfig{
			Objects:    registry,
			Metrics:    metrics.Handler(),
			Status:     func() any { return handler.Status() },
			Registerer: metrics.Prometheus(),
			Logger:     logger.With("component", "http"),
		})
		srv := httpserver.New(addr, router)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("management http: %w", err)
		}
		go func() {
			if err := srv.Serve(ln); err != nil {
				logger.Error("management http stopped", "error", err)
			}
		}()
		hooks.OnShutdown("management http", srv.Shutdown)
		logger.Info("management http listening", "addr", ln.Addr().String())
	}
	return nil
}

// watchSettings logs a warning when the settings file changes. Templates
// and static sessions are resolved once at startup.
func watchSettings(path string, hooks *shutdown.Handler, logger *slog.Logger) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("settings watcher unavailable", "error", err)
		return
	}
	if err := w.Watch(path); err != nil {
		logger.Warn("settings watcher unavailable", "error", err)
		w.Stop()
		return
	}
	w.OnChange(func(changed string) {
		logger.Warn("session settings changed, restart to apply", "path", changed)
	})
	w.StartAsync()
	hooks.OnShutdown("settings watcher", func(context.Context) error {
		return w.Stop()
	})
}

// waitForEnter triggers shutdown when the operator presses Enter. A closed
// stdin leaves shutdown to signals.
func waitForEnter(hooks *shutdown.Handler, logger *slog.Logger) {
	_, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		logger.Debug("stdin closed, waiting for a signal", "error", err)
		return
	}
	hooks.Trigger("enter pressed")
}
