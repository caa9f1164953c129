package channel

import (
	"fmt"
	"net/url"
	"time"
)

// Heartbeat bounds. PingInterval is clamped into this range.
const (
	MinPingInterval = 100 * time.Millisecond
	MaxPingInterval = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// URL is the relay endpoint. Scheme must be ws or wss.
	URL string

	// APIKey is sent as "Authorization: Bearer <APIKey>".
	APIKey string

	// InstanceID is sent as "X-Instance-Id". Identifies this runtime process.
	InstanceID string

	// PingInterval is the heartbeat period. A pong must arrive within
	// 2×PingInterval or the connection is dropped and re-established.
	// Clamped to [MinPingInterval, MaxPingInterval]. Default: 1s.
	PingInterval time.Duration

	// DrainInterval is how often queued messages are flushed. Default: 10ms.
	DrainInterval time.Duration

	// SendAttempts is how many times one message is tried per drain cycle.
	// Default: 3.
	SendAttempts int

	// SendBackoff is the wait after the first failed attempt; it doubles
	// for each further attempt. Default: 100ms.
	SendBackoff time.Duration

	// WriteTimeout bounds a single transport write. Default: 10s.
	WriteTimeout time.Duration

	// ResponseTimeout bounds EnqueueWithResponse. Default: 30s.
	ResponseTimeout time.Duration

	// DialTimeout bounds one connection attempt. Default: 10s.
	DialTimeout time.Duration

	// Reconnect backoff: ReconnectInitial doubling up to ReconnectMax, with
	// ±ReconnectJitter (fraction) randomization. After ReconnectAttempts
	// failures inside one ReconnectWindow the client gives up; if the window
	// passes first the attempt counter resets.
	// Defaults: 500ms, 30s, 0.25, 26, 1h.
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	ReconnectJitter   float64
	ReconnectAttempts int
	ReconnectWindow   time.Duration

	// ShutdownTimeout bounds the wait for an in-flight drain during Close.
	// Default: 5s.
	ShutdownTimeout time.Duration

	// MaxQueue is the outbound queue high-water mark. Enqueue fails with
	// ErrQueueFull once reached. Zero means unbounded.
	MaxQueue int
}

// DefaultConfig returns a Config with default timings and no endpoint.
func DefaultConfig() Config {
	return Config{
		PingInterval:      time.Second,
		DrainInterval:     10 * time.Millisecond,
		SendAttempts:      3,
		SendBackoff:       100 * time.Millisecond,
		WriteTimeout:      10 * time.Second,
		ResponseTimeout:   30 * time.Second,
		DialTimeout:       10 * time.Second,
		ReconnectInitial:  500 * time.Millisecond,
		ReconnectMax:      30 * time.Second,
		ReconnectJitter:   0.25,
		ReconnectAttempts: 26,
		ReconnectWindow:   time.Hour,
		ShutdownTimeout:   5 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig and clamps PingInterval.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	c.PingInterval = ClampPingInterval(c.PingInterval)
	if c.DrainInterval <= 0 {
		c.DrainInterval = def.DrainInterval
	}
	if c.SendAttempts <= 0 {
		c.SendAttempts = def.SendAttempts
	}
	if c.SendBackoff <= 0 {
		c.SendBackoff = def.SendBackoff
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = def.ResponseTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = def.ReconnectInitial
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = def.ReconnectMax
	}
	if c.ReconnectJitter < 0 || c.ReconnectJitter >= 1 {
		c.ReconnectJitter = def.ReconnectJitter
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = def.ReconnectAttempts
	}
	if c.ReconnectWindow <= 0 {
		c.ReconnectWindow = def.ReconnectWindow
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.MaxQueue < 0 {
		c.MaxQueue = 0
	}
	return c
}

// ClampPingInterval bounds d to [MinPingInterval, MaxPingInterval].
func ClampPingInterval(d time.Duration) time.Duration {
	if d < MinPingInterval {
		return MinPingInterval
	}
	if d > MaxPingInterval {
		return MaxPingInterval
	}
	return d
}

// ValidateEndpoint checks that raw is an absolute ws:// or wss:// URL.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q, want ws or wss", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return nil
}
