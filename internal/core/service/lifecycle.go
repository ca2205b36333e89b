package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sudheendrakatikar/exsim/internal/core/domain"
	"github.com/sudheendrakatikar/exsim/internal/infra/shutdown"
)

// Engine is the protocol engine the acceptor supervises.
type Engine interface {
	// SetSessionProvider installs the provider consulted for Logons on addr
	// that match no statically configured session.
	SetSessionProvider(addr domain.ListeningAddress, p domain.SessionProvider)

	// Start binds every configured address and begins accepting.
	Start(ctx context.Context) error

	// Stop closes listeners and sessions. It honors ctx's deadline.
	Stop(ctx context.Context) error
}

// Registry is the management registry the acceptor is published in.
type Registry interface {
	// Register publishes obj and returns the name it was registered under.
	Register(obj any) (string, error)

	// Unregister removes the object registered under name.
	Unregister(name string) error
}

// EngineFactory builds an engine from the session settings.
type EngineFactory func(s SettingsReader) (Engine, error)

// State is the lifecycle state of an AcceptorService.
type State int32

const (
	StateConstructed State = iota
	StateStarted
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// AcceptorConfig holds the collaborators of an AcceptorService.
type AcceptorConfig struct {
	Settings      SettingsReader
	EngineFactory EngineFactory
	Registry      Registry
	Logger        *slog.Logger
}

// AcceptorService supervises the acceptor engine: it installs one dynamic
// session matcher per template address, publishes the engine in the
// management registry and tears both down on Stop.
type AcceptorService struct {
	engine    Engine
	registry  Registry
	templates *domain.TemplateTable
	logger    *slog.Logger

	// name is written once by NewAcceptorService and read once by Stop.
	name string

	state    atomic.Int32
	stopOnce sync.Once
}

// NewAcceptorService builds the engine, installs template matchers and
// registers the engine with management.
//
// Configuration errors from template resolution are returned as is. If
// resolution or registration fails the engine is stopped before the error
// is returned.
func NewAcceptorService(cfg AcceptorConfig) (*AcceptorService, error) {
	if cfg.Settings == nil || cfg.EngineFactory == nil || cfg.Registry == nil {
		return nil, domain.ErrConfig.WithDetails("acceptor requires settings, engine factory and registry")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine, err := cfg.EngineFactory(cfg.Settings)
	if err != nil {
		if domain.IsDomainError(err, "") {
			return nil, err
		}
		return nil, domain.ErrConfig.WithDetails("create engine").Wrap(err)
	}

	templates, err := ResolveTemplates(cfg.Settings)
	if err != nil {
		if stopErr := engine.Stop(context.Background()); stopErr != nil {
			logger.Warn("failed to stop engine after configuration error", "error", stopErr)
		}
		return nil, err
	}

	for _, addr := range templates.Addresses() {
		mappings := templates.Templates(addr)
		engine.SetSessionProvider(addr, NewDynamicSessionMatcher(addr, mappings, cfg.Settings, logger))
		logger.Info("dynamic session provider installed",
			"address", addr.String(),
			"templates", len(mappings),
		)
	}

	name, err := cfg.Registry.Register(engine)
	if err != nil {
		if stopErr := engine.Stop(context.Background()); stopErr != nil {
			logger.Warn("failed to stop engine after registration failure", "error", stopErr)
		}
		if errors.Is(err, domain.ErrRegistration) {
			return nil, err
		}
		return nil, domain.ErrRegistration.WithDetails("register acceptor").Wrap(err)
	}
	logger.Info("acceptor registered with management", "name", name)

	return &AcceptorService{
		engine:    engine,
		registry:  cfg.Registry,
		templates: templates,
		logger:    logger,
		name:      name,
	}, nil
}

// Start starts the engine. It may be called once, on a service that has
// not been started or stopped.
func (a *AcceptorService) Start(ctx context.Context) error {
	if !a.state.CompareAndSwap(int32(StateConstructed), int32(StateStarted)) {
		return domain.ErrRuntime.WithDetailsf("cannot start acceptor in state %s", a.State())
	}

	if err := a.engine.Start(ctx); err != nil {
		if domain.IsDomainError(err, "") {
			return err
		}
		return domain.ErrRuntime.WithDetails("start engine").Wrap(err)
	}

	a.logger.Info("acceptor started", "template_addresses", a.templates.Len())
	return nil
}

// Stop unregisters the acceptor and stops the engine. Each step runs even
// if the previous one failed; failures are logged. Stop is idempotent.
func (a *AcceptorService) Stop(ctx context.Context) {
	a.stopOnce.Do(func() {
		a.state.Store(int32(StateStopped))

		_ = shutdown.RunSteps(ctx, a.logger,
			shutdown.Step{Name: "unregister", Fn: func(context.Context) error {
				return a.registry.Unregister(a.name)
			}},
			shutdown.Step{Name: "engine stop", Fn: a.engine.Stop},
		)

		a.logger.Info("acceptor stopped", "name", a.name)
	})
}

// Close stops the acceptor. It satisfies the shutdown hook signature.
func (a *AcceptorService) Close(ctx context.Context) error {
	a.Stop(ctx)
	return nil
}

// RegistrationName returns the management name of the acceptor.
func (a *AcceptorService) RegistrationName() string {
	return a.name
}

// State returns the current lifecycle state.
func (a *AcceptorService) State() State {
	return State(a.state.Load())
}

// Templates returns the resolved template table.
func (a *AcceptorService) Templates() *domain.TemplateTable {
	return a.templates
}

// Engine returns the supervised engine.
func (a *AcceptorService) Engine() Engine {
	return a.engine
}
