package sensor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/sensord/internal/logger"
	"github.com/marmos91/sensord/pkg/adapter"
	"github.com/marmos91/sensord/pkg/metrics"
	"github.com/marmos91/sensord/pkg/registry"
)

var _ adapter.Adapter = (*SensorAdapter)(nil)

// SensorAdapter serves the sensor configuration protocol over TCP.
//
// Architecture:
// A fixed pool of PoolSize workers share one listener. A worker takes the
// accept turn (only one worker is blocked in Accept at any time), accepts a
// connection, releases the turn and then serves that connection to completion
// before competing for the next turn. At most PoolSize clients are therefore
// connected at once; further clients wait in the kernel backlog.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (workers leave the accept loop)
//  3. shutdownCtx cancelled and blocked reads interrupted
//  4. Wait for workers to finish their connection (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use.
type SensorAdapter struct {
	config SensorConfig

	// listenerMu guards listener and listenErr. Shutdown is signalled under
	// it too, so no listener is bound after shutdown starts.
	listenerMu sync.Mutex
	listener   net.Listener
	listenErr  error
	boundPort  atomic.Int32

	// acceptMu is the accept turn
	acceptMu sync.Mutex

	registry *registry.Registry
	metrics  metrics.SensorMetrics

	// workers tracks the pool goroutines
	workers sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}

	connCount atomic.Int32

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps session id to net.Conn for forced closure
	activeConnections sync.Map
}

// New creates a SensorAdapter with the specified configuration.
//
// Zero values in config are replaced with defaults. An invalid configuration
// panics, as it indicates a programmer error: user-supplied configuration is
// validated by pkg/config before it gets here.
//
// sensorMetrics may be nil for no metrics.
func New(config SensorConfig, sensorMetrics metrics.SensorMetrics) *SensorAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid sensor adapter config: %v", err))
	}

	if sensorMetrics == nil {
		sensorMetrics = metrics.NewNoopSensorMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	a := &SensorAdapter{
		config:         config,
		metrics:        sensorMetrics,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
	a.boundPort.Store(int32(config.Port))
	return a
}

// SetRegistry injects the shared resources. Called once before Serve().
func (s *SensorAdapter) SetRegistry(reg *registry.Registry) {
	s.registry = reg
	logger.Debug("Sensor adapter registry configured (%d users)", reg.Users().Len())
}

// ErrStopped is returned by Listen once shutdown has started.
var ErrStopped = errors.New("sensor adapter stopped")

// Listen binds the TCP listener. It is called by Serve if needed; calling it
// first lets the caller learn the bound port before serving. Safe to call
// more than once: only the first call binds. After Stop it returns
// ErrStopped without binding.
func (s *SensorAdapter) Listen() error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener != nil || s.listenErr != nil {
		return s.listenErr
	}
	select {
	case <-s.shutdown:
		return ErrStopped
	default:
	}

	addr := net.JoinHostPort(s.config.ListenAddress, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.listenErr = fmt.Errorf("failed to create sensor listener on %s: %w", addr, err)
		return s.listenErr
	}
	s.listener = listener
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(tcpAddr.Port))
	}
	return nil
}

// Addr returns the listener address, or nil before Listen.
func (s *SensorAdapter) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve starts the worker pool and blocks until the context is cancelled,
// Stop is called, or the listener cannot be created.
//
// Returns nil on graceful shutdown, or an error if the listener failed or
// connections had to be force-closed.
func (s *SensorAdapter) Serve(ctx context.Context) error {
	if s.registry == nil {
		return fmt.Errorf("sensor adapter: registry not set")
	}

	if err := s.Listen(); err != nil {
		if errors.Is(err, ErrStopped) {
			logger.Debug("Sensor adapter stopped before serving")
			return nil
		}
		return err
	}

	logger.Info("Sensor server listening on %s (workers: %d)", s.Addr(), s.config.PoolSize)
	logger.Debug("Sensor config: idle_timeout=%v auth_timeout=%v auth_fail_linger=%v rate_limit=%v/%d",
		s.config.IdleTimeout, s.config.AuthTimeout, s.config.AuthFailLinger,
		s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Sensor shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(s.shutdownCtx)
	}

	for i := 0; i < s.config.PoolSize; i++ {
		s.workers.Add(1)
		go s.worker(i)
	}

	<-s.shutdown
	return s.gracefulShutdown()
}

// worker loops: take the accept turn, accept, release the turn, serve.
func (s *SensorAdapter) worker(id int) {
	defer s.workers.Done()

	for {
		tcpConn, err := s.accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Common causes: fd exhaustion, aborted handshakes
			logger.Debug("Worker %d: error accepting sensor connection: %v", id, err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.serveConn(id, tcpConn)
	}
}

func (s *SensorAdapter) accept() (net.Conn, error) {
	s.acceptMu.Lock()
	defer s.acceptMu.Unlock()
	return s.listener.Accept()
}

func (s *SensorAdapter) serveConn(worker int, tcpConn net.Conn) {
	conn := NewSensorConnection(s, tcpConn)

	s.activeConnections.Store(conn.sessionID, tcpConn)
	current := s.connCount.Add(1)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)

	defer func() {
		s.activeConnections.Delete(conn.sessionID)
		current := s.connCount.Add(-1)
		s.metrics.RecordConnectionClosed()
		s.metrics.SetActiveConnections(current)
		logger.Debug("Worker %d: connection %s closed (active: %d)", worker, conn.sessionID, current)
	}()

	logger.Debug("Worker %d: serving %s (active: %d)", worker, conn.clientAddr, current)
	conn.Serve(s.shutdownCtx)
}

// initiateShutdown closes the listener, cancels in-flight requests and
// interrupts connections blocked waiting for their next request.
// Safe to call multiple times.
func (s *SensorAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Sensor shutdown initiated")

		s.listenerMu.Lock()
		close(s.shutdown)
		listener := s.listener
		s.listenerMu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				logger.Debug("Error closing sensor listener: %v", err)
			}
		}

		s.cancelRequests()

		// Idle connections sit in a blocking read; expire it so their
		// handler notices the cancelled context.
		s.activeConnections.Range(func(key, value any) bool {
			_ = value.(net.Conn).SetReadDeadline(time.Now())
			return true
		})
	})
}

// gracefulShutdown waits for the workers or, after ShutdownTimeout,
// force-closes what is left.
func (s *SensorAdapter) gracefulShutdown() error {
	logger.Info("Sensor graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Sensor graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Sensor shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		<-done
		return fmt.Errorf("sensor shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *SensorAdapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		if err := value.(net.Conn).Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", key, err)
		} else {
			closed++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed %d connection(s)", closed)
	}
}

// Stop initiates graceful shutdown and waits for the workers to exit or ctx
// to be done. Safe to call concurrently with Serve and more than once.
func (s *SensorAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		ctx = context.Background()
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("Sensor shutdown context cancelled: %d connection(s) still active: %v",
			s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

func (s *SensorAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Sensor metrics: active_connections=%d/%d sessions=%d",
				s.connCount.Load(), s.config.PoolSize, s.registry.CountSessions())
		}
	}
}

// GetActiveConnections returns the number of connections being served.
func (s *SensorAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the bound port once listening, the configured port before.
func (s *SensorAdapter) Port() int {
	return int(s.boundPort.Load())
}

// Protocol returns "SENSOR".
func (s *SensorAdapter) Protocol() string {
	return "SENSOR"
}
