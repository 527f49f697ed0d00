// Package lifecycle provides graceful shutdown for the pipeline. It tracks
// in-flight logging calls and drains the queue before the process exits.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownManager coordinates graceful shutdown of pipeline components.
type ShutdownManager struct {
	mu sync.Mutex

	drainTimeout time.Duration
	forceTimeout time.Duration

	draining   bool
	shutdownAt time.Time

	onDrainStart func()
	onShutdown   func()

	// In-flight tracking for Log calls still validating or enqueueing
	inFlight      sync.WaitGroup
	inFlightCount int64

	// Components to close in registration order
	closers []Closer

	done chan struct{}
}

// Closer interface for components that need cleanup.
type Closer interface {
	Close() error
}

// ShutdownConfig configures the shutdown manager.
type ShutdownConfig struct {
	// DrainTimeout is how long to wait for in-flight calls to complete
	DrainTimeout time.Duration
	// ForceTimeout is how long to wait before forcing shutdown
	ForceTimeout time.Duration
	// OnDrainStart is called when drain begins
	OnDrainStart func()
	// OnShutdown is called when shutdown begins
	OnShutdown func()
}

// DefaultShutdownConfig returns sensible defaults.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		DrainTimeout: 30 * time.Second,
		ForceTimeout: 60 * time.Second,
	}
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.ForceTimeout == 0 {
		cfg.ForceTimeout = 60 * time.Second
	}

	return &ShutdownManager{
		drainTimeout: cfg.DrainTimeout,
		forceTimeout: cfg.ForceTimeout,
		onDrainStart: cfg.OnDrainStart,
		onShutdown:   cfg.OnShutdown,
		done:         make(chan struct{}),
	}
}

// RegisterCloser adds a component to be closed during shutdown.
func (m *ShutdownManager) RegisterCloser(c Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, c)
}

// StartCall marks the start of an in-flight logging call.
// Returns false if we're draining and the call should be rejected.
func (m *ShutdownManager) StartCall() bool {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return false
	}
	m.inFlightCount++
	m.mu.Unlock()

	m.inFlight.Add(1)
	return true
}

// EndCall marks the end of an in-flight logging call.
func (m *ShutdownManager) EndCall() {
	m.inFlight.Done()

	m.mu.Lock()
	m.inFlightCount--
	m.mu.Unlock()
}

// InFlightCount returns the number of in-flight calls.
func (m *ShutdownManager) InFlightCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlightCount
}

// IsDraining returns whether shutdown has begun.
func (m *ShutdownManager) IsDraining() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draining
}

// Shutdown initiates graceful shutdown: new calls are rejected, in-flight
// calls get DrainTimeout to finish, then registered closers run in order.
func (m *ShutdownManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil // Already shutting down
	}
	m.draining = true
	m.shutdownAt = time.Now()
	m.mu.Unlock()

	if m.onDrainStart != nil {
		m.onDrainStart()
	}

	drainDone := make(chan struct{})
	go func() {
		m.inFlight.Wait()
		close(drainDone)
	}()

	select {
	case <-drainDone:
		// All calls completed
	case <-time.After(m.drainTimeout):
		fmt.Printf("Drain timeout reached with %d in-flight calls\n", m.InFlightCount())
	case <-ctx.Done():
	}

	if m.onShutdown != nil {
		m.onShutdown()
	}

	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	close(m.done)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// Wait blocks until shutdown is complete.
func (m *ShutdownManager) Wait() {
	<-m.done
}

// HandleSignals sets up signal handling for graceful shutdown.
func (m *ShutdownManager) HandleSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			fmt.Printf("Received signal %v, initiating graceful shutdown...\n", sig)
			m.Shutdown(ctx)
		case <-ctx.Done():
			return
		}
	}()
}

// ShutdownStatus reports the current shutdown state.
type ShutdownStatus struct {
	Draining      bool
	InFlightCount int64
	ShutdownAt    time.Time
	DrainTimeout  time.Duration
	ForceTimeout  time.Duration
}

// Status returns the current status.
func (m *ShutdownManager) Status() ShutdownStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ShutdownStatus{
		Draining:      m.draining,
		InFlightCount: m.inFlightCount,
		ShutdownAt:    m.shutdownAt,
		DrainTimeout:  m.drainTimeout,
		ForceTimeout:  m.forceTimeout,
	}
}

// RunWithSignalHandling runs a function and handles shutdown signals.
func RunWithSignalHandling(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("Received %v, shutting down...\n", sig)
		cancel()
		select {
		case err := <-errChan:
			return err
		case <-time.After(30 * time.Second):
			return fmt.Errorf("shutdown timeout")
		}
	}
}
