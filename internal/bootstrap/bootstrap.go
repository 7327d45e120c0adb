// Package bootstrap provides application lifecycle helpers.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const defaultShutdownTimeout = 10 * time.Second

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// App manages application lifecycle with graceful shutdown support.
type App struct {
	timeout time.Duration
	log     *slog.Logger

	mu    sync.Mutex
	hooks []hook
}

type Option func(*App)

// WithShutdownTimeout bounds how long the shutdown hooks may take in total.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

func New(opts ...Option) *App {
	a := &App{
		timeout: defaultShutdownTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddShutdownHook registers a named function to call during shutdown.
// Hooks run in reverse order (LIFO). Thread-safe.
func (a *App) AddShutdownHook(name string, fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, hook{name: name, fn: fn})
}

// Run executes the run function under SIGINT/SIGTERM handling. The shutdown
// hooks run exactly once, whether run returns on its own or a signal cancels
// the context first; hook errors are joined with the run error.
func (a *App) Run(ctx context.Context, run func(ctx context.Context) error) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		return a.shutdown()
	case err := <-errCh:
		return errors.Join(err, a.shutdown())
	}
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for i := len(a.hooks) - 1; i >= 0; i-- {
		h := a.hooks[i]
		a.log.Debug("running shutdown hook", "name", h.name)
		if err := h.fn(ctx); err != nil {
			a.log.Error("shutdown hook failed", "name", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s > %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}
