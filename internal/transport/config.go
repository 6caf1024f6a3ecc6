package transport

import "time"

// Config defines transport timing behavior.
type Config struct {
	// BindRetryCount bounds how many times a bind attempt polls for the
	// endpoint before giving up.
	BindRetryCount int

	// BindRetryDelay is the spacing between bind attempts.
	BindRetryDelay time.Duration

	// FlowControlTimeout bounds how long a data send waits for the peer's
	// flow go before it is reported as failed.
	FlowControlTimeout time.Duration

	// KeepaliveInterval is the idle time after which a liveness probe is
	// sent, and the window the probe response must arrive within.
	KeepaliveInterval time.Duration
}

// DefaultConfig returns the transport timing defaults.
func DefaultConfig() Config {
	return Config{
		BindRetryCount:     10,
		BindRetryDelay:     100 * time.Millisecond,
		FlowControlTimeout: 10 * time.Second,
		KeepaliveInterval:  5 * time.Second,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.BindRetryCount <= 0 {
		c.BindRetryCount = def.BindRetryCount
	}
	if c.BindRetryDelay <= 0 {
		c.BindRetryDelay = def.BindRetryDelay
	}
	if c.FlowControlTimeout <= 0 {
		c.FlowControlTimeout = def.FlowControlTimeout
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
	return c
}
