package shutdown

import (
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestNewHandler(t *testing.T) {
	h := NewHandler(5*time.Second, nil)
	if h == nil {
		t.Fatal("NewHandler returned nil")
	}
	if h.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", h.timeout)
	}
	if h.hooks == nil {
		t.Error("hooks should be initialized")
	}
	if h.done == nil {
		t.Error("done channel should be initialized")
	}
	if h.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
}

func TestRunSteps_ContinuesAfterFailure(t *testing.T) {
	var ran []string
	stepErr := errors.New("unregister failed")

	err := RunSteps(context.Background(), nil,
		Step{Name: "unregister", Fn: func(ctx context.Context) error {
			ran = append(ran, "unregister")
			return stepErr
		}},
		Step{Name: "stop", Fn: func(ctx context.Context) error {
			ran = append(ran, "stop")
			return nil
		}},
	)

	if len(ran) != 2 || ran[1] != "stop" {
		t.Fatalf("ran = %v, want both steps", ran)
	}
	if !errors.Is(err, stepErr) {
		t.Errorf("RunSteps() error = %v, want to wrap %v", err, stepErr)
	}
	if !strings.Contains(err.Error(), "unregister") {
		t.Errorf("error %q should name the failing step", err)
	}
}

func TestRunSteps_RecoversPanic(t *testing.T) {
	secondRan := false

	err := RunSteps(context.Background(), nil,
		Step{Name: "boom", Fn: func(ctx context.Context) error {
			panic("kaboom")
		}},
		Step{Name: "after", Fn: func(ctx context.Context) error {
			secondRan = true
			return nil
		}},
	)

	if !secondRan {
		t.Error("step after a panic should still run")
	}
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("RunSteps() error = %v, want panic reported", err)
	}
}

func TestRunSteps_NoSteps(t *testing.T) {
	if err := RunSteps(context.Background(), nil); err != nil {
		t.Errorf("RunSteps() with no steps = %v, want nil", err)
	}
}

func TestHandler_Trigger(t *testing.T) {
	h := NewHandler(5*time.Second, nil)

	callOrder := make([]int, 0)
	var mu sync.Mutex
	for i := 1; i <= 3; i++ {
		i := i
		h.OnShutdown("hook", func(ctx context.Context) error {
			mu.Lock()
			callOrder = append(callOrder, i)
			mu.Unlock()
			return nil
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Wait()
	}()

	h.Trigger("enter")
	h.Trigger("enter again") // must not block

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not complete in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(callOrder) != 3 || callOrder[0] != 3 || callOrder[1] != 2 || callOrder[2] != 1 {
		t.Errorf("hooks called in wrong order: %v, want [3 2 1]", callOrder)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after Wait completes")
	}
}

func TestHandler_Wait_WithSignal(t *testing.T) {
	h := NewHandler(5*time.Second, nil)

	called := make(chan struct{}, 1)
	h.OnShutdown("hook", func(ctx context.Context) error {
		called <- struct{}{}
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Wait()
	}()

	// Give Wait time to set up signal handler
	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not complete in time")
	}

	select {
	case <-called:
	default:
		t.Error("hook was not called")
	}
}

func TestHandler_Shutdown_HookError(t *testing.T) {
	h := NewHandler(5*time.Second, nil)
	expectedErr := errors.New("hook error")

	lastRan := false
	h.OnShutdown("first", func(ctx context.Context) error {
		lastRan = true
		return nil
	})
	h.OnShutdown("failing", func(ctx context.Context) error {
		return expectedErr
	})

	err := h.Shutdown()
	if !errors.Is(err, expectedErr) {
		t.Errorf("Shutdown() = %v, want %v", err, expectedErr)
	}
	if !lastRan {
		t.Error("hook registered first should still run after a failure")
	}
}

func TestHandler_ConcurrentOnShutdown(t *testing.T) {
	h := NewHandler(5*time.Second, nil)

	var wg sync.WaitGroup
	numGoroutines := 10
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown("noop", func(ctx context.Context) error {
				return nil
			})
		}()
	}
	wg.Wait()

	h.mu.Lock()
	if len(h.hooks) != numGoroutines {
		t.Errorf("expected %d hooks, got %d", numGoroutines, len(h.hooks))
	}
	h.mu.Unlock()
}
