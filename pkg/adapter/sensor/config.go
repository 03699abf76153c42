package sensor

import (
	"fmt"
	"time"
)

// SensorConfig holds the adapter's network and session parameters.
//
// Default values (applied by New if zero):
//   - PoolSize: 4
//   - AuthTimeout: 30s
//   - AuthFailLinger: 5s
//   - KeepAlivePeriod: 30s
//   - ShutdownTimeout: 10s
//
// IdleTimeout, MetricsLogInterval and the rate limit stay disabled at zero.
// Port 0 binds an ephemeral port; pkg/config supplies 2233 for real
// deployments.
type SensorConfig struct {
	// Enabled controls whether the sensor adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// ListenAddress is the local address to bind. "::" or "" listens on
	// every interface, IPv4 and IPv6.
	ListenAddress string `mapstructure:"listen_address"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// PoolSize is the number of worker goroutines, which is also the maximum
	// number of concurrently connected clients.
	PoolSize int `mapstructure:"pool_size" validate:"min=0,max=1024"`

	// IdleTimeout closes a session that sends no request for this long.
	// 0 waits forever.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// AuthTimeout bounds the wait for the 64-byte connect message.
	AuthTimeout time.Duration `mapstructure:"auth_timeout" validate:"min=0"`

	// AuthFailLinger is how long the server waits for the client to close
	// after AuthFail before closing the socket itself.
	AuthFailLinger time.Duration `mapstructure:"auth_fail_linger" validate:"min=0"`

	// KeepAlivePeriod is the TCP keep-alive probe interval.
	KeepAlivePeriod time.Duration `mapstructure:"keepalive_period" validate:"min=0"`

	// RateLimit throttles requests per connection.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// ShutdownTimeout is the maximum wait for active sessions on shutdown
	// before they are force-closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval periodically logs connection counts. 0 disables.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`
}

// RateLimitConfig configures per-connection request throttling.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the number of requests allowed back to back.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

func (c *SensorConfig) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = 4
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = 30 * time.Second
	}
	if c.AuthFailLinger == 0 {
		c.AuthFailLinger = 5 * time.Second
	}
	if c.KeepAlivePeriod == 0 {
		c.KeepAlivePeriod = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *SensorConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("invalid PoolSize %d: must be >= 1", c.PoolSize)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid IdleTimeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.AuthTimeout < 0 {
		return fmt.Errorf("invalid AuthTimeout %v: must be >= 0", c.AuthTimeout)
	}
	if c.AuthFailLinger < 0 {
		return fmt.Errorf("invalid AuthFailLinger %v: must be >= 0", c.AuthFailLinger)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("invalid rate limit %v/%d: must be >= 0",
			c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	return nil
}
