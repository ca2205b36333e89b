// Package shutdown provides graceful shutdown for exsim.
//
// This package handles process termination:
//
//   - Signal handling (SIGINT, SIGTERM) and operator triggers
//   - Timeout-bounded hook execution in reverse registration order
//   - Best-effort step runner: a failing or panicking step never skips
//     the steps after it
//
// Usage:
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	h.OnShutdown("acceptor", acceptor.Close)
//	go func() { waitForEnter(); h.Trigger("enter") }()
//	err := h.Wait()
package shutdown
