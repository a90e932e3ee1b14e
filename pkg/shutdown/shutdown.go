package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/godex/pkg/logger"
)

// Handler is a shutdown callback. Implementations must call wg.Done exactly
// once when finished.
type Handler func(ctx context.Context, wg *sync.WaitGroup)

// Manager runs registered shutdown callbacks concurrently on Shutdown.
type Manager struct {
	callbacks []Handler
	mu        sync.Mutex
}

// NewManager creates a shutdown manager.
func NewManager() *Manager {
	return &Manager{
		callbacks: make([]Handler, 0),
	}
}

// OnShutdown registers a callback.
func (m *Manager) OnShutdown(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, handler)
}

// Shutdown runs all callbacks and blocks until they finish or ctx expires.
// ctx should carry a deadline to bound the wait.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}

	logger.Infof("shutting down, %d callbacks registered", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go cb(ctx, &wg)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-ctx.Done():
		logger.Warn("shutdown timed out, exiting anyway")
	}
}
