package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/adapter"
	"github.com/marmos91/sensord/pkg/registry"
)

// SensorServer manages the lifecycle of the protocol adapters and the
// background services (measurement loop, archiver) that share one Registry.
//
// Lifecycle:
//  1. Creation: New() with the registry
//  2. Registration: AddAdapter() and AddService()
//  3. Startup: Serve() starts everything concurrently
//  4. Shutdown: context cancellation stops adapters in reverse order, then
//     waits for services, then closes the registry resources
//
// Thread safety:
// AddAdapter and AddService may be called concurrently before Serve. Serve
// may only be called once.
type SensorServer struct {
	registry *registry.Registry

	adapters []adapter.Adapter
	services []service

	// stopTimeout bounds each adapter's Stop call
	stopTimeout time.Duration

	mu     sync.Mutex
	served bool
}

// service is a named background task. Run must return when ctx is done.
type service struct {
	name string
	run  func(ctx context.Context) error
}

// New creates a server around reg. stopTimeout 0 means 30s.
//
// Panics if reg is nil (programmer error).
func New(reg *registry.Registry, stopTimeout time.Duration) *SensorServer {
	if reg == nil {
		panic("registry cannot be nil")
	}
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	return &SensorServer{
		registry:    reg,
		adapters:    make([]adapter.Adapter, 0, 1),
		stopTimeout: stopTimeout,
	}
}

// AddAdapter registers a protocol adapter and injects the registry into it.
// Duplicate protocols and port conflicts are rejected. Port 0 (ephemeral)
// never conflicts.
func (s *SensorServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetRegistry(s.registry)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// AddService registers a background task that runs for the server lifetime.
func (s *SensorServer) AddService(name string, run func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add service after Serve() has been called")
	}
	s.services = append(s.services, service{name: name, run: run})
	return nil
}

// Serve starts all adapters and services and blocks until ctx is cancelled
// or one of them fails.
//
// Returns nil after a shutdown triggered by ctx, or the first component
// error otherwise. The registry (settings store, data file) is closed before
// returning in both cases.
func (s *SensorServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return fmt.Errorf("Serve() has already been called on this server instance")
	}
	s.served = true
	adapters := append([]adapter.Adapter(nil), s.adapters...)
	services := append([]service(nil), s.services...)
	s.mu.Unlock()

	if len(adapters) == 0 {
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting sensord with %d adapter(s) and %d service(s)", len(adapters), len(services))

	// Services get their own context so they keep running until the
	// adapters have drained.
	svcCtx, stopServices := context.WithCancel(context.Background())
	defer stopServices()

	errChan := make(chan componentError, len(adapters)+len(services))

	var adapterWG, serviceWG sync.WaitGroup

	for _, svc := range services {
		serviceWG.Add(1)
		go func(svc service) {
			defer serviceWG.Done()
			logger.Debug("Starting %s service", svc.name)
			if err := svc.run(svcCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("%s service failed: %v", svc.name, err)
				errChan <- componentError{name: svc.name, err: err}
				return
			}
			logger.Debug("%s service stopped", svc.name)
		}(svc)
	}

	for _, adp := range adapters {
		adapterWG.Add(1)
		go func(a adapter.Adapter) {
			defer adapterWG.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- componentError{name: protocol + " adapter", err: err}
				} else {
					logger.Warn("%s adapter stopped with error: %v", protocol, err)
				}
				return
			}
			logger.Info("%s adapter stopped", protocol)
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
	case failed := <-errChan:
		logger.Error("%s failed: %v - initiating shutdown", failed.name, failed.err)
		shutdownErr = fmt.Errorf("%s: %w", failed.name, failed.err)
	}

	s.stopAllAdapters(adapters)
	adapterWG.Wait()

	stopServices()
	serviceWG.Wait()

	s.closeRegistry()

	logger.Info("sensord stopped")
	return shutdownErr
}

// componentError pairs a component name with its error for reporting.
type componentError struct {
	name string
	err  error
}

// stopAllAdapters signals shutdown to every adapter in reverse registration
// order.
func (s *SensorServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", adp.Protocol(), err)
		}
	}
}

// closeRegistry releases the shared resources. Best effort.
func (s *SensorServer) closeRegistry() {
	if err := s.registry.Settings().Close(); err != nil {
		logger.Warn("Failed to close settings store: %v", err)
	}
	if err := s.registry.Data().Close(); err != nil {
		logger.Warn("Failed to close data file: %v", err)
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *SensorServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.Adapter(nil), s.adapters...)
}
