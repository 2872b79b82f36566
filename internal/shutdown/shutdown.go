// Package shutdown ties a run to SIGINT/SIGTERM: a signal cancels the run
// context, and Shutdown releases the registered resources (output lock,
// database, log file) newest first.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/glefebvre/vodharvest/internal/logger"
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// Handler manages graceful shutdown of the application
type Handler struct {
	mu             sync.Mutex
	closers        []closer
	timeout        time.Duration
	signalChan     chan os.Signal
	shutdownChan   chan struct{}
	isShuttingDown bool
	cancel         context.CancelFunc
	logger         *logger.Logger
}

// New creates a new shutdown handler
func New(timeout time.Duration) *Handler {
	return &Handler{
		timeout:      timeout,
		signalChan:   make(chan os.Signal, 1),
		shutdownChan: make(chan struct{}),
		logger:       logger.AppLogger(),
	}
}

// Register adds a named closer. Closers run one at a time in reverse order
// of registration.
func (h *Handler) Register(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closers = append(h.closers, closer{name: name, fn: fn})
}

// Context returns a child of parent that is cancelled on SIGINT, SIGTERM or
// TriggerShutdown. The returned stop function stops listening for signals.
func (h *Handler) Context(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	signal.Notify(h.signalChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-h.signalChan:
			h.logger.WithFields(map[string]interface{}{
				"signal": sig.String(),
			}).Warn("interrupted, cancelling run")
			cancel()
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(h.signalChan)
			close(done)
			cancel()
		})
	}
}

// Wait blocks until a shutdown signal is received, then shuts down
func (h *Handler) Wait() error {
	signal.Notify(h.signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(h.signalChan)

	<-h.signalChan
	return h.Shutdown()
}

// Shutdown runs every closer within the timeout. Closer errors are joined;
// hitting the timeout returns context.DeadlineExceeded.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if h.isShuttingDown {
		h.mu.Unlock()
		return nil
	}
	h.isShuttingDown = true
	closers := h.closers
	cancel := h.cancel
	h.mu.Unlock()

	close(h.shutdownChan)
	if cancel != nil {
		cancel()
	}

	ctx, stop := context.WithTimeout(context.Background(), h.timeout)
	defer stop()

	done := make(chan error, 1)
	go func() {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			if err := c.fn(ctx); err != nil {
				h.logger.WithFields(map[string]interface{}{
					"resource": c.name,
				}).Error("failed to close resource", err)
				errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (h *Handler) IsShuttingDown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isShuttingDown
}

// ShutdownChan returns a channel that is closed when shutdown is initiated
func (h *Handler) ShutdownChan() <-chan struct{} {
	return h.shutdownChan
}

// TriggerShutdown programmatically delivers SIGTERM to the handler
func (h *Handler) TriggerShutdown() {
	select {
	case h.signalChan <- syscall.SIGTERM:
	default:
	}
}
