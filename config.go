package tuntcp

import (
	"log/slog"
	"time"
)

// Config holds the tunable parameters of an [Interface]. The zero Config is
// not meant to be used directly; call [NewConfig] to get the defaults.
type Config struct {
	logger       *slog.Logger
	tickInterval time.Duration
	recvTimeout  time.Duration
}

// Option configures a [Config] field. Functional options keep Open's
// signature stable as new knobs are added.
type Option func(*Config)

// NewConfig returns the default Config: tick every 200ms, a 100ms recv
// timeout so the reader loop can periodically observe a requested shutdown,
// and a nil logger (logging disabled).
func NewConfig(opts ...Option) Config {
	cfg := Config{
		tickInterval: 200 * time.Millisecond,
		recvTimeout:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithLogger attaches a structured logger; new connections are logged at
// debug level, per-segment tracing one level below, and device errors and
// receive data dropped on a full buffer at error level.
func WithLogger(log *slog.Logger) Option {
	return func(c *Config) { c.logger = log }
}

// WithTickInterval overrides how often [Interface.tickLoop] drives
// retransmission/fresh-send decisions across every open connection.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) { c.tickInterval = d }
}

// WithRecvTimeout overrides how often the reader loop re-checks the
// table's terminate flag between tun reads.
func WithRecvTimeout(d time.Duration) Option {
	return func(c *Config) { c.recvTimeout = d }
}
