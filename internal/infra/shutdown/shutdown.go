// Package shutdown provides graceful shutdown handling.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Step is one independent teardown action.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// RunSteps executes steps in order. Each step runs regardless of how the
// previous one ended: errors and panics are logged and collected, never
// allowed to skip later steps. The joined error is returned for callers
// that want it.
func RunSteps(ctx context.Context, logger *slog.Logger, steps ...Step) error {
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	for _, step := range steps {
		if err := runStep(ctx, step); err != nil {
			logger.Error("shutdown step failed", "step", step.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}

func runStep(ctx context.Context, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Fn(ctx)
}

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	hooks   []Step
	logger  *slog.Logger
	mu      sync.Mutex
	trigger chan string
	once    sync.Once
	done    chan struct{}
}

// NewHandler creates a new shutdown handler.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout: timeout,
		hooks:   make([]Step, 0),
		logger:  logger,
		trigger: make(chan string, 1),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a named shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(name string, hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, Step{Name: name, Fn: hook})
}

// Trigger requests shutdown without a signal, e.g. when the operator
// presses Enter. Only the first call has an effect.
func (h *Handler) Trigger(reason string) {
	h.once.Do(func() {
		h.trigger <- reason
	})
}

// Wait blocks until SIGINT, SIGTERM or Trigger, then runs the hooks.
func (h *Handler) Wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		h.logger.Info("shutdown requested", "signal", sig.String())
	case reason := <-h.trigger:
		h.logger.Info("shutdown requested", "reason", reason)
	}

	return h.Shutdown()
}

// Shutdown runs the hooks in reverse registration order within the
// handler timeout and closes Done.
func (h *Handler) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	steps := make([]Step, 0, len(h.hooks))
	for i := len(h.hooks) - 1; i >= 0; i-- {
		steps = append(steps, h.hooks[i])
	}
	h.mu.Unlock()

	err := RunSteps(ctx, h.logger, steps...)
	close(h.done)
	return err
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
