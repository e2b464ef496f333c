// Package shutdown coordinates the teardown of long running services such
// as the status server.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/neurospin/gofreesurfer/pkg/logging"
)

// Manager runs registered teardown functions when a termination signal
// arrives. Functions run in reverse registration order.
type Manager struct {
	mu      sync.Mutex
	funcs   []func(context.Context) error
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
	logger  *logging.Logger
}

// New creates a shutdown manager with the given teardown timeout.
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Register adds a teardown function.
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, fn)
}

// Done is closed when shutdown starts.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until SIGINT or SIGTERM, then runs the teardown functions.
func (m *Manager) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	m.logger.Info("received signal, shutting down", map[string]interface{}{"signal": sig.String()})

	m.once.Do(func() { close(m.done) })
	m.Shutdown()
}

// Shutdown runs the registered teardown functions in LIFO order.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.funcs) - 1; i >= 0; i-- {
		if err := m.funcs[i](ctx); err != nil {
			m.logger.Error("shutdown step failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// StopHTTPServer returns a teardown function for an HTTP server.
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}
}

// CloseResource returns a teardown function for an io.Closer.
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}
