package transport

import (
	"errors"
	"time"

	"github.com/dkrutz/radiolink/internal/hal"
)

// setupChannelLocked makes sure the channel to the endpoint is fully bound.
// Idempotent: returns true immediately if a handle is already held. On
// failure the handle stays nil. Caller must hold the state lock.
func (c *Client) setupChannelLocked() bool {
	if c.ch != nil {
		return true
	}

	// A fresh token per binding filters out death notifications that
	// describe an endpoint instance already torn down.
	c.deathToken = c.nextToken
	c.nextToken++
	if c.nextToken == invalidDeathToken {
		c.nextToken++
	}

	var ch hal.Channel
	for attempt := 0; ch == nil && attempt < c.cfg.BindRetryCount; attempt++ {
		if attempt > 0 {
			c.log.Info().Msg("endpoint not found, retrying in a little bit")
			time.Sleep(c.cfg.BindRetryDelay)
		}

		opened, err := c.provider.Open()
		if err != nil {
			if errors.Is(err, hal.ErrNotAvailable) {
				continue
			}
			c.log.Error().Err(err).Msg("unable to bind to endpoint")
			c.clearChannelLocked()
			return false
		}
		ch = opened
	}
	if ch == nil {
		c.log.Error().Int("attempts", c.cfg.BindRetryCount).Msg("unable to bind to endpoint")
		c.clearChannelLocked()
		return false
	}

	if err := ch.LinkDeath(c.deathToken, c.onEndpointDeath); err != nil {
		c.log.Error().Err(err).Msg("unable to register death notification")
		c.clearChannelLocked()
		return false
	}
	props, err := ch.Properties()
	if err != nil {
		c.log.Error().Err(err).Msg("unable to read endpoint properties")
		c.clearChannelLocked()
		return false
	}
	if err := ch.SetCallbacks(&halSink{c: c}); err != nil {
		c.log.Error().Err(err).Msg("unable to install receive callbacks")
		c.clearChannelLocked()
		return false
	}

	c.ch = ch
	c.props = props
	c.useFlowControl.Store(props.FlowControl())
	c.useKeepalive.Store(props.Keepalive())

	c.log.Info().
		Uint64("death_token", c.deathToken).
		Str("version", props.Version).
		Bool("flow_control", props.FlowControl()).
		Bool("keepalive", props.Keepalive()).
		Msg("bound to endpoint")

	return true
}

// teardownChannelLocked deregisters from the endpoint best-effort and clears
// the local handle unconditionally. Caller must hold the state lock.
func (c *Client) teardownChannelLocked() {
	if c.ch == nil {
		return
	}

	// Deregistration only works while the peer is still alive.
	if err := c.ch.UnlinkDeath(); err != nil {
		c.log.Warn().Err(err).Msg("error dropping death notification")
	}
	if err := c.ch.SetCallbacks(nil); err != nil {
		c.log.Warn().Err(err).Msg("error clearing endpoint callbacks")
	}

	c.clearChannelLocked()
}

// clearChannelLocked drops local channel bookkeeping after the endpoint has
// gone away. Caller must hold the state lock.
func (c *Client) clearChannelLocked() {
	c.deathToken = invalidDeathToken
	c.ch = nil
}
