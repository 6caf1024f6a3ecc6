// Package simulator provides an in-process endpoint implementing the hal
// contract. It stands in for the real chip during local development and in
// tests: it answers flow-controlled data sends with a go, echoes the
// keepalive response, and can inject the failure modes the transport client
// has to survive (withheld go, enable failure, endpoint death, slow
// discovery).
//
// Inbound deliveries happen synchronously inside the outbound call that
// provoked them, which deliberately exercises the client's tolerance for
// reentrant callbacks from the peer.
package simulator

import (
	"bytes"
	"sync"

	"github.com/dkrutz/radiolink/internal/hal"
	"github.com/dkrutz/radiolink/internal/wire"
)

// flowGoMessage is the go the chip answers each data message with.
var flowGoMessage = []byte{0x01, wire.TypeFlowControl, wire.FlowGo}

// Channel is a simulated chip endpoint.
type Channel struct {
	mu sync.Mutex

	props   hal.Properties
	alive   bool
	enabled bool

	cb         hal.Callbacks
	deathFn    hal.DeathFunc
	deathToken uint64

	withholdGo    bool
	muteKeepalive bool
	enableStatus  hal.Status

	commands [][]byte
	data     [][]byte
}

// New builds an alive, disabled simulator channel advertising the given
// option flags.
func New(options uint32) *Channel {
	return &Channel{
		props: hal.Properties{
			Version: "simulator-1",
			Options: options,
		},
		alive:        true,
		enableStatus: hal.StatusOK,
	}
}

func (s *Channel) Enable() (hal.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return hal.StatusFailed, hal.ErrChannelDead
	}
	if s.enableStatus != hal.StatusOK {
		return s.enableStatus, nil
	}
	s.enabled = true
	return hal.StatusOK, nil
}

func (s *Channel) Disable() (hal.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return hal.StatusFailed, hal.ErrChannelDead
	}
	s.enabled = false
	return hal.StatusOK, nil
}

func (s *Channel) SendCommandMessage(msg []byte) (hal.Status, error) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return hal.StatusFailed, hal.ErrChannelDead
	}
	if !s.enabled {
		s.mu.Unlock()
		return hal.StatusNotInitialized, nil
	}
	s.commands = append(s.commands, append([]byte(nil), msg...))
	respond := s.props.Keepalive() && !s.muteKeepalive && bytes.Equal(msg, wire.KeepalivePing)
	cb := s.cb
	s.mu.Unlock()

	if respond && cb != nil {
		cb.OnMessageReceived(append([]byte(nil), wire.KeepaliveResponse...))
	}
	return hal.StatusOK, nil
}

func (s *Channel) SendDataMessage(msg []byte) (hal.Status, error) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return hal.StatusFailed, hal.ErrChannelDead
	}
	if !s.enabled {
		s.mu.Unlock()
		return hal.StatusNotInitialized, nil
	}
	s.data = append(s.data, append([]byte(nil), msg...))
	respond := s.props.FlowControl() && !s.withholdGo
	cb := s.cb
	s.mu.Unlock()

	if respond && cb != nil {
		cb.OnMessageReceived(append([]byte(nil), flowGoMessage...))
	}
	return hal.StatusOK, nil
}

func (s *Channel) Properties() (hal.Properties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return hal.Properties{}, hal.ErrChannelDead
	}
	return s.props, nil
}

func (s *Channel) LinkDeath(token uint64, fn hal.DeathFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return hal.ErrChannelDead
	}
	s.deathToken = token
	s.deathFn = fn
	return nil
}

func (s *Channel) UnlinkDeath() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return hal.ErrChannelDead
	}
	s.deathFn = nil
	s.deathToken = 0
	return nil
}

func (s *Channel) SetCallbacks(cb hal.Callbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return hal.ErrChannelDead
	}
	s.cb = cb
	return nil
}

// Inject delivers an arbitrary inbound message to the installed sink.
func (s *Channel) Inject(msg []byte) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb.OnMessageReceived(append([]byte(nil), msg...))
	}
}

// TransportDown reports a link failure below the endpoint.
func (s *Channel) TransportDown(reason string) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb.OnTransportDown(reason)
	}
}

// Die simulates the endpoint process terminating: the death notification
// fires with the registered token and every later call fails with
// ErrChannelDead until the channel is revived.
func (s *Channel) Die() {
	s.mu.Lock()
	fn := s.deathFn
	token := s.deathToken
	s.alive = false
	s.enabled = false
	s.cb = nil
	s.deathFn = nil
	s.mu.Unlock()

	if fn != nil {
		fn(token)
	}
}

// FireDeath invokes the registered death notification with an arbitrary
// token, without killing the channel. Lets tests model notifications from a
// superseded endpoint instance.
func (s *Channel) FireDeath(token uint64) {
	s.mu.Lock()
	fn := s.deathFn
	s.mu.Unlock()
	if fn != nil {
		fn(token)
	}
}

// DieSilently kills the endpoint without firing the death notification,
// modelling a hung peer only detectable through keepalive.
func (s *Channel) DieSilently() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = false
	s.enabled = false
	s.cb = nil
	s.deathFn = nil
}

func (s *Channel) revive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = true
	s.enabled = false
	s.deathFn = nil
	s.deathToken = 0
	s.cb = nil
}

// SetWithholdFlowGo stops the channel from answering data sends with a go.
func (s *Channel) SetWithholdFlowGo(withhold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withholdGo = withhold
}

// SetMuteKeepalive stops the channel from answering keepalive probes.
func (s *Channel) SetMuteKeepalive(mute bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muteKeepalive = mute
}

// SetEnableStatus makes Enable report the given status instead of enabling.
func (s *Channel) SetEnableStatus(status hal.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enableStatus = status
}

// Enabled reports whether the chip is currently powered up.
func (s *Channel) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Commands returns copies of the command messages received so far.
func (s *Channel) Commands() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.commands))
	copy(out, s.commands)
	return out
}

// Data returns copies of the data messages received so far.
func (s *Channel) Data() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.data))
	copy(out, s.data)
	return out
}

// Provider hands out the simulator channel, optionally failing discovery a
// fixed number of times first. Opening a dead channel revives it, modelling
// the peer process being restarted by its supervisor.
type Provider struct {
	mu          sync.Mutex
	ch          *Channel
	unavailable int
	opens       int
}

func NewProvider(ch *Channel) *Provider {
	return &Provider{ch: ch}
}

// SetUnavailable makes the next n Open calls fail with ErrNotAvailable.
func (p *Provider) SetUnavailable(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = n
}

// Opens reports how many Open calls have been made.
func (p *Provider) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

func (p *Provider) Open() (hal.Channel, error) {
	p.mu.Lock()
	p.opens++
	if p.unavailable > 0 {
		p.unavailable--
		p.mu.Unlock()
		return nil, hal.ErrNotAvailable
	}
	ch := p.ch
	p.mu.Unlock()

	ch.mu.Lock()
	alive := ch.alive
	ch.mu.Unlock()
	if !alive {
		ch.revive()
	}
	return ch, nil
}
