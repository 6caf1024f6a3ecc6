package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkrutz/radiolink/internal/hal"
	"github.com/dkrutz/radiolink/internal/observability"
	"github.com/dkrutz/radiolink/internal/wire"
)

// invalidDeathToken marks "no live endpoint binding right now".
const invalidDeathToken uint64 = 0

// callbackRef boxes the sink so the receive path can swap and read it
// atomically. A nil box or nil sink both mean "no sink installed".
type callbackRef struct {
	sink Callback
}

type recoveryKind int

const (
	// recoverDeath: an endpoint instance died; token-checked before acting.
	recoverDeath recoveryKind = iota
	// recoverReset: unconditional recovery (transport down, missed keepalive).
	recoverReset
)

type recoveryRequest struct {
	kind    recoveryKind
	token   uint64
	trigger string
}

// Client drives the power lifecycle of the radio chip over the
// hardware-abstraction channel and multiplexes message traffic onto it.
type Client struct {
	cfg      Config
	log      zerolog.Logger
	provider hal.Provider

	// mu is the state lock. It protects ch, deathToken, nextToken and
	// props, and serializes all power transitions.
	mu         sync.Mutex
	ch         hal.Channel
	deathToken uint64
	nextToken  uint64
	props      hal.Properties

	// state is read lock-free; mutated only under mu.
	state atomic.Int32

	callback atomic.Pointer[callbackRef]

	useFlowControl atomic.Bool
	useKeepalive   atomic.Bool

	// flowMu serializes data-channel sends and spans send-then-wait so a
	// go signal cannot slip between the two.
	flowMu     sync.Mutex
	flowWaiter atomic.Pointer[flowWait]

	dispatcher *stateDispatcher
	watchdog   *watchdog

	recoveryCh chan recoveryRequest
	quit       chan struct{}
	closed     atomic.Bool
	closeOnce  sync.Once
	workerDone chan struct{}
}

// New builds a client over the given endpoint provider and starts its
// background workers. The client starts Disabled; call Enable to bring the
// chip up.
func New(provider hal.Provider, cfg Config, logger zerolog.Logger) *Client {
	c := &Client{
		cfg:        cfg.WithDefaults(),
		log:        logger.With().Str("component", "transport").Logger(),
		provider:   provider,
		nextToken:  1,
		recoveryCh: make(chan recoveryRequest, 8),
		quit:       make(chan struct{}),
		workerDone: make(chan struct{}),
	}
	c.state.Store(int32(StateDisabled))
	c.dispatcher = newStateDispatcher(c.notifyStateChanged)
	c.watchdog = newWatchdog(c.cfg.KeepaliveInterval, c.keepalivePing, c.keepaliveExpired)
	go c.recoveryWorker()
	return c
}

// SetCallback installs, replaces or clears (nil) the notification sink.
func (c *Client) SetCallback(cb Callback) {
	if cb == nil {
		c.callback.Store(nil)
		return
	}
	c.callback.Store(&callbackRef{sink: cb})
}

// State returns the current transport state. Lock-free; a read racing a
// transition may observe the transient value.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Properties returns the capability snapshot of the bound endpoint and
// whether a binding is currently held.
func (c *Client) Properties() (hal.Properties, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.props, c.ch != nil
}

// Enable brings the transport up, binding to the endpoint first if needed.
// No-op returning true if already enabled.
func (c *Client) Enable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateEnabled {
		c.log.Debug().Msg("ignoring enable, already enabled")
		return true
	}

	c.updateStateLocked(StateEnabling)

	if c.bringupLocked() {
		c.updateStateLocked(StateEnabled)
		return true
	}
	c.updateStateLocked(StateDisabled)
	return false
}

// Disable brings the transport down and releases the endpoint binding.
// Remote failures are logged, not fatal; the local side always ends up
// Disabled.
func (c *Client) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateDisabled {
		c.log.Debug().Msg("ignoring disable, already disabled")
		return
	}

	c.updateStateLocked(StateDisabling)

	if c.ch != nil {
		status, err := c.ch.Disable()
		if err != nil {
			c.log.Warn().Err(err).Msg("endpoint died in disable")
			c.clearChannelLocked()
		} else {
			if status != hal.StatusOK {
				c.log.Warn().Stringer("status", status).Msg("failed to disable chip")
			}
			c.teardownChannelLocked()
		}
	}

	c.updateStateLocked(StateDisabled)
}

// HardReset performs a full power cycle of the chip, rebinding to the
// endpoint if necessary. Used to recover from error conditions. Returns true
// if the transport came back up Enabled.
func (c *Client) HardReset() bool {
	if c.closed.Load() {
		c.log.Debug().Msg("ignoring hard reset on closed client")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hardResetLocked()
}

func (c *Client) hardResetLocked() bool {
	c.updateStateLocked(StateResetting)

	if c.recoverLocked() {
		// Reset is not a resting state; success means we are enabled.
		c.updateStateLocked(StateEnabled)
		return true
	}
	c.updateStateLocked(StateDisabled)
	return false
}

// recoverLocked power cycles the chip: disable best-effort, then enable.
func (c *Client) recoverLocked() bool {
	if !c.setupChannelLocked() {
		return false
	}

	status, err := c.ch.Disable()
	if err != nil {
		c.log.Warn().Err(err).Msg("endpoint died in reset")
		c.clearChannelLocked()
		return false
	}
	if status != hal.StatusOK {
		// Try the enable anyways and hope it clears the condition.
		c.log.Warn().Stringer("status", status).Msg("reset: failed to disable")
	}

	status, err = c.ch.Enable()
	if err != nil {
		c.log.Warn().Err(err).Msg("endpoint died in reset")
		c.clearChannelLocked()
		return false
	}
	if status != hal.StatusOK {
		c.log.Error().Stringer("status", status).Msg("reset: failed to enable")
		return false
	}
	return true
}

// bringupLocked binds to the endpoint and enables the chip.
func (c *Client) bringupLocked() bool {
	if !c.setupChannelLocked() {
		return false
	}

	status, err := c.ch.Enable()
	if err != nil {
		c.log.Error().Err(err).Msg("endpoint died in enable")
		c.clearChannelLocked()
		return false
	}
	if status != hal.StatusOK {
		c.log.Error().Stringer("status", status).Msg("failed to enable chip")

		// Try to clean things up.
		if status, err := c.ch.Disable(); err != nil {
			c.clearChannelLocked()
		} else if status != hal.StatusOK {
			c.log.Warn().Stringer("status", status).Msg("disable after failed enable also failed")
		}
		return false
	}
	return true
}

// Send transmits one message to the chip. Returns false without blocking if
// the transport is not enabled or msg is empty. Data-class messages are
// subject to protocol flow control and may block up to the configured
// timeout.
func (c *Client) Send(msg []byte) bool {
	if len(msg) == 0 {
		c.log.Warn().Msg("rejecting empty message")
		return false
	}

	// Capture the handle and token together; both can change the moment
	// the lock is released, and I/O must happen outside it.
	c.mu.Lock()
	if c.State() != StateEnabled {
		c.mu.Unlock()
		c.log.Warn().Msg("failing message tx because transport was not enabled")
		return false
	}
	ch := c.ch
	token := c.deathToken
	c.mu.Unlock()

	switch wire.Classify(msg) {
	case wire.ClassData:
		ok := c.sendData(ch, token, msg)
		observability.RecordSend("data", sendResult(ok))
		return ok
	default:
		ok := c.sendCommand(ch, token, msg)
		observability.RecordSend("command", sendResult(ok))
		return ok
	}
}

func sendResult(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func (c *Client) sendCommand(ch hal.Channel, token uint64, msg []byte) bool {
	status, err := ch.SendCommandMessage(msg)
	if err != nil {
		c.peerDiedInSend(token, err)
		return false
	}
	if status != hal.StatusOK {
		c.log.Error().Stringer("status", status).Msg("failed to send command message")
		return false
	}
	return true
}

// sendData transmits on the data channel under the flow lock. When flow
// control is active the wait cell is armed before the send so the go cannot
// be missed, and the call blocks until go or deadline.
func (c *Client) sendData(ch hal.Channel, token uint64, msg []byte) bool {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	flow := c.useFlowControl.Load()
	var w *flowWait
	if flow {
		w = newFlowWait()
		c.flowWaiter.Store(w)
		defer c.flowWaiter.CompareAndSwap(w, nil)
	}

	status, err := ch.SendDataMessage(msg)
	if err != nil {
		c.peerDiedInSend(token, err)
		return false
	}

	timeout := false
	if flow {
		start := time.Now()
		timeout = !w.wait(c.cfg.FlowControlTimeout)
		observability.RecordFlowWait(time.Since(start))
	}

	if timeout {
		c.log.Error().Msg("timeout waiting for flow control response")
		return false
	}
	if status != hal.StatusOK {
		c.log.Error().Stringer("status", status).Msg("failed to send data message")
		return false
	}
	return true
}

// peerDiedInSend treats the channel going down mid-send the same as an
// asynchronous death notification, keyed by the token captured before the
// call so a stale failure cannot reset a fresh binding. Recovery is
// scheduled, never run inline, to keep the transmit path lock-free.
func (c *Client) peerDiedInSend(token uint64, err error) {
	c.log.Error().Err(err).Msg("endpoint died while sending message")
	c.scheduleRecovery(recoveryRequest{kind: recoverDeath, token: token, trigger: "send_failure"})
}

// onEndpointDeath is the DeathFunc registered with the endpoint.
func (c *Client) onEndpointDeath(token uint64) {
	c.scheduleRecovery(recoveryRequest{kind: recoverDeath, token: token, trigger: "death_notification"})
}

func (c *Client) scheduleRecovery(req recoveryRequest) {
	if c.closed.Load() {
		return
	}
	select {
	case c.recoveryCh <- req:
	default:
		// A recovery is already queued; this trigger would collapse into
		// it behind the state lock anyway.
		c.log.Debug().Str("trigger", req.trigger).Msg("dropping recovery trigger, queue full")
	}
}

func (c *Client) recoveryWorker() {
	defer close(c.workerDone)
	for {
		select {
		case <-c.quit:
			return
		case req := <-c.recoveryCh:
			switch req.kind {
			case recoverDeath:
				c.handleDeath(req.token, req.trigger)
			case recoverReset:
				c.log.Error().Str("trigger", req.trigger).Msg("attempting automated recovery")
				observability.RecordRecovery(req.trigger, c.HardReset())
			}
		}
	}
}

// handleDeath reacts to one endpoint instance dying. Notifications carrying
// a token other than the current binding's describe an instance already torn
// down and are dropped.
func (c *Client) handleDeath(token uint64, trigger string) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if token == invalidDeathToken || token != c.deathToken {
		c.log.Debug().Uint64("token", token).Msg("ignoring stale death notification")
		return
	}

	c.log.Error().Str("trigger", trigger).Msg("detected asynchronous endpoint death")
	c.clearChannelLocked()
	observability.RecordRecovery(trigger, c.hardResetLocked())
}

func (c *Client) keepalivePing() {
	// Result ignored: a failure surfaces either on the next caller send or
	// when the keepalive window expires without a response.
	c.Send(wire.KeepalivePing)
}

func (c *Client) keepaliveExpired() {
	c.log.Error().Msg("no response to keepalive message, attempting recovery")
	c.scheduleRecovery(recoveryRequest{kind: recoverReset, trigger: "keepalive_timeout"})
}

// updateStateLocked mutates the state and queues the notification. Only
// transitions that change the value are dispatched; dispatch order matches
// update order. Caller must hold the state lock.
func (c *Client) updateStateLocked(s State) {
	if c.State() == s {
		return
	}
	c.state.Store(int32(s))
	observability.RecordStateChange(s.String())

	if c.useKeepalive.Load() {
		if s == StateEnabled {
			c.watchdog.start()
		} else {
			c.watchdog.stop()
		}
	}

	c.dispatcher.post(s)
}

// notifyStateChanged runs on the dispatcher goroutine.
func (c *Client) notifyStateChanged(s State) {
	// Cache since check and call are not atomic against SetCallback.
	if ref := c.callback.Load(); ref != nil && ref.sink != nil {
		ref.sink.OnStateChanged(s)
	}
}

// Close disables the transport, releases the binding and stops the
// background workers. Idempotent. The client cannot be reused afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.Disable()

		// Disable no-ops when already Disabled, but a failed enable can
		// leave a binding behind in that state; tear it down either way.
		c.mu.Lock()
		c.teardownChannelLocked()
		c.mu.Unlock()

		c.watchdog.stop()
		close(c.quit)
		<-c.workerDone
		c.dispatcher.close()
	})
}

// halSink receives inbound endpoint events. Keepalive and flow control get
// first crack at every message; only unfiltered messages reach the external
// sink.
type halSink struct {
	c *Client
}

func (s *halSink) OnMessageReceived(msg []byte) {
	c := s.c
	if c.filterKeepalive(msg) || c.filterFlowControl(msg) {
		return
	}
	if ref := c.callback.Load(); ref != nil && ref.sink != nil {
		ref.sink.OnMessageReceived(msg)
	}
}

func (s *halSink) OnTransportDown(reason string) {
	c := s.c
	c.log.Error().Str("reason", reason).Msg("transport is down")
	c.scheduleRecovery(recoveryRequest{kind: recoverReset, trigger: "transport_down"})
}

// filterKeepalive resets the watchdog on any traffic and reports whether msg
// is the keepalive response, which is consumed here.
func (c *Client) filterKeepalive(msg []byte) bool {
	if !c.useKeepalive.Load() {
		return false
	}
	c.watchdog.reset()
	return wire.IsKeepaliveResponse(msg)
}

// filterFlowControl consumes flow-control messages, waking the pending data
// send on a go.
func (c *Client) filterFlowControl(msg []byte) bool {
	if !c.useFlowControl.Load() {
		return false
	}
	if !wire.IsFlowControl(msg) {
		return false
	}
	if wire.IsFlowGo(msg) {
		if w := c.flowWaiter.Load(); w != nil {
			w.signal()
		}
	}
	return true
}
