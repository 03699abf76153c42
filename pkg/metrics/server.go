package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/sensord/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the Prometheus registry over HTTP.
//
// Routes:
//   - GET /metrics: registry contents (OpenMetrics when negotiated)
//   - GET /healthz: 200 "ok", or 503 with the error of ServerConfig.Health
//   - GET /: plain-text index
type Server struct {
	config ServerConfig
	server *http.Server

	listenOnce sync.Once
	listener   net.Listener
	listenErr  error

	stopOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Address is the host to bind. Empty binds every interface.
	Address string

	// Port to listen on. Default: 9090. Use -1 for an ephemeral port.
	Port int

	// Health reports readiness for /healthz. nil always reports healthy.
	Health func() error

	// ShutdownTimeout bounds the drain of in-flight scrapes. Default: 5s.
	ShutdownTimeout time.Duration
}

func (c *ServerConfig) applyDefaults() {
	switch {
	case c.Port == 0:
		c.Port = 9090
	case c.Port < 0:
		c.Port = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// NewServer creates a stopped metrics server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	config.applyDefaults()

	s := &Server{config: config}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func metricsHandler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		logger.Debug("Metrics collection disabled, /metrics answers 503")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.config.Health != nil {
		if err := s.config.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "unhealthy: %v\n", err)
			return
		}
	}
	_, _ = fmt.Fprintln(w, "ok")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "sensord metrics server")
	_, _ = fmt.Fprintln(w, "  /metrics  Prometheus scrape endpoint")
	_, _ = fmt.Fprintln(w, "  /healthz  liveness probe")
}

// Listen binds the listener. Start calls it when needed; calling it first
// reveals an ephemeral port.
func (s *Server) Listen() error {
	s.listenOnce.Do(func() {
		addr := net.JoinHostPort(s.config.Address, strconv.Itoa(s.config.Port))
		s.listener, s.listenErr = net.Listen("tcp", addr)
		if s.listenErr != nil {
			s.listenErr = fmt.Errorf("metrics server listen on %s: %w", addr, s.listenErr)
		}
	})
	return s.listenErr
}

// Start serves until ctx is done, then shuts down within ShutdownTimeout.
// It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on %s", s.listener.Addr())
		errCh <- s.server.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		// ctx is already done; the drain needs its own deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Only the first call has an effect.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if err = s.server.Shutdown(ctx); err != nil {
			err = fmt.Errorf("metrics server shutdown: %w", err)
			logger.Error("%v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return err
}

// Port returns the bound port once listening, the configured one before.
func (s *Server) Port() int {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}
