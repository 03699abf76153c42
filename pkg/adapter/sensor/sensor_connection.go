package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/sensord/internal/logger"
	proto "github.com/marmos91/sensord/pkg/protocol/sensor"
	"github.com/marmos91/sensord/internal/ratelimiter"
	"github.com/marmos91/sensord/pkg/auth"
	"github.com/marmos91/sensord/pkg/registry"
)

// SensorConnection drives one client session: authenticate once, then serve
// requests one at a time until the client disconnects or an I/O error occurs.
type SensorConnection struct {
	server     *SensorAdapter
	conn       net.Conn
	sessionID  string
	clientAddr string
}

func NewSensorConnection(server *SensorAdapter, conn net.Conn) *SensorConnection {
	return &SensorConnection{
		server:     server,
		conn:       conn,
		sessionID:  uuid.NewString(),
		clientAddr: conn.RemoteAddr().String(),
	}
}

// Serve runs the session to completion and closes the socket. A panic in a
// handler is logged and ends only this session.
func (c *SensorConnection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[%s] Panic in connection handler from %s: %v", c.sessionID, c.clientAddr, r)
		}
		_ = c.conn.Close()
	}()

	if ctx.Err() != nil {
		return
	}

	c.configureSocket()

	user, err := c.authenticate()
	if err != nil {
		logger.Debug("[%s] Session from %s ended during authentication: %v", c.sessionID, c.clientAddr, err)
		return
	}

	reg := c.server.registry
	reg.RecordSession(registry.SessionInfo{
		ID:          c.sessionID,
		ClientAddr:  c.clientAddr,
		Username:    user.Name,
		Group:       user.Group,
		ConnectedAt: time.Now(),
	})
	defer reg.RemoveSession(c.sessionID)

	hc := &proto.HandlerContext{
		Context:    ctx,
		ClientAddr: c.clientAddr,
		SessionID:  c.sessionID,
		User:       user,
		Settings:   reg.Settings(),
		Data:       reg.Data(),
	}

	cfg := c.server.config
	limiter := ratelimiter.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	if limiter.Enabled() {
		logger.Debug("[%s] Rate limit: %.1f req/s, burst %d",
			c.sessionID, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("[%s] Session closed due to server shutdown", c.sessionID)
			return
		default:
		}

		if err := c.setIdleDeadline(); err != nil {
			logger.Warn("[%s] Failed to set deadline: %v", c.sessionID, err)
		}

		if !limiter.Allow() {
			logger.Debug("[%s] Request rate exceeded (tokens: %.2f), throttling", c.sessionID, limiter.Tokens())
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		start := time.Now()
		res, err := proto.HandleRequest(hc, c.conn)
		duration := time.Since(start)

		if res != nil {
			c.record(user, res, duration)
		}

		if err != nil {
			c.logTransportError(err)
			return
		}

		if res.Stop {
			return
		}
	}
}

// configureSocket enables keep-alive and logs the peer.
func (c *SensorConnection) configureSocket() {
	if tcp, ok := c.conn.(*net.TCPConn); ok {
		if err := tcp.SetKeepAlive(true); err != nil {
			logger.Debug("[%s] Failed to enable keep-alive: %v", c.sessionID, err)
		} else if err := tcp.SetKeepAlivePeriod(c.server.config.KeepAlivePeriod); err != nil {
			logger.Debug("[%s] Failed to set keep-alive period: %v", c.sessionID, err)
		}
	}

	if host, port, err := net.SplitHostPort(c.clientAddr); err == nil {
		logger.Info("[%s] Connection from IP %s, port %s", c.sessionID, host, port)
	} else {
		logger.Info("[%s] Connection from %s", c.sessionID, c.clientAddr)
	}
}

// authenticate reads the connect message and answers AuthSuccess or AuthFail.
// After AuthFail the client is given AuthFailLinger to close first.
func (c *SensorConnection) authenticate() (*auth.User, error) {
	cfg := c.server.config

	if cfg.AuthTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.AuthTimeout))
	}

	creds, err := proto.ReadCredentials(c.conn)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	user, err := c.server.registry.Users().Authenticate(creds.Username, creds.Password)
	if err != nil {
		logger.Warn("[%s] Authentication failed for user %q from %s", c.sessionID, creds.Username, c.clientAddr)
		c.server.metrics.RecordAuthentication(false)

		if werr := proto.WriteByte(c.conn, proto.AuthFail); werr != nil {
			return nil, fmt.Errorf("send auth fail: %w", werr)
		}
		c.linger(cfg.AuthFailLinger)
		return nil, err
	}

	c.server.metrics.RecordAuthentication(true)
	if err := proto.WriteByte(c.conn, proto.AuthSuccess); err != nil {
		return nil, fmt.Errorf("send auth success: %w", err)
	}

	_ = c.conn.SetReadDeadline(time.Time{})
	logger.Info("[%s] User %s (%s) authenticated from %s", c.sessionID, user.Name, user.Group, c.clientAddr)
	return user, nil
}

// linger drains the socket until the peer closes or d elapses.
func (c *SensorConnection) linger(d time.Duration) {
	if d <= 0 {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(d))
	_, _ = io.Copy(io.Discard, c.conn)
}

func (c *SensorConnection) setIdleDeadline() error {
	if c.server.config.IdleTimeout > 0 {
		return c.conn.SetReadDeadline(time.Now().Add(c.server.config.IdleTimeout))
	}
	return c.conn.SetReadDeadline(time.Time{})
}

func (c *SensorConnection) record(user *auth.User, res *proto.Result, duration time.Duration) {
	final := res.Envelope
	if res.Response != 0 {
		final = res.Response
	}

	m := c.server.metrics
	m.RecordRequest(res.Request.String(), final.String(), duration)
	if res.BytesSent > 0 {
		m.RecordBytesSent(res.Request.String(), res.BytesSent)
	}

	if res.Err != nil {
		logger.Info("[%s] %s: request %s -> %s (%v)", c.sessionID, user.Name, res.Request, final, res.Err)
		return
	}
	logger.Info("[%s] %s: request %s -> %s", c.sessionID, user.Name, res.Request, final)
}

func (c *SensorConnection) logTransportError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Info("[%s] Connection from %s closed by client", c.sessionID, c.clientAddr)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Info("[%s] Connection from %s timed out", c.sessionID, c.clientAddr)
	default:
		logger.Warn("[%s] Connection from %s aborted: %v", c.sessionID, c.clientAddr, err)
	}
}
