// Package hal defines the contract with the remote hardware-abstraction
// endpoint that fronts the radio chip.
//
// Ownership boundary:
// - channel handle acquisition (Provider)
// - outbound control/data calls and capability snapshot (Channel)
// - inbound message and transport-down delivery (Callbacks)
// - death notification registration
//
// The contract is transport-agnostic: the peer may be another process behind
// an RPC boundary or an in-process simulator. A non-nil error from a Channel
// call means the peer is gone mid-call; a non-OK Status means the peer is
// alive and reported a failure.
package hal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAvailable means the endpoint is not discoverable yet. Callers
	// may retry after a delay.
	ErrNotAvailable = errors.New("hal: endpoint not available")

	// ErrChannelDead means the peer went away under an in-flight call.
	ErrChannelDead = errors.New("hal: channel dead")
)

// Status is a result code reported by the remote endpoint.
type Status int32

const (
	StatusOK Status = iota
	StatusFailed
	StatusNotSupported
	StatusInvalidArgument
	StatusNotInitialized
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailed:
		return "FAILED"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusNotInitialized:
		return "NOT_INITIALIZED"
	default:
		return fmt.Sprintf("STATUS(%d)", int32(s))
	}
}

// Option flags reported in Properties.
const (
	OptionFlowControl uint32 = 1 << 0
	OptionKeepalive   uint32 = 1 << 1
)

// Properties is the capability snapshot read once per successful bind.
type Properties struct {
	Version string
	Options uint32
}

// FlowControl reports whether the data channel uses protocol flow control.
func (p Properties) FlowControl() bool {
	return p.Options&OptionFlowControl != 0
}

// Keepalive reports whether the link should be monitored with probes.
func (p Properties) Keepalive() bool {
	return p.Options&OptionKeepalive != 0
}

// DeathFunc is invoked asynchronously with the registration token when the
// peer process terminates.
type DeathFunc func(token uint64)

// Callbacks is the sink the endpoint delivers inbound events to.
type Callbacks interface {
	// OnMessageReceived delivers one inbound message from the chip.
	OnMessageReceived(msg []byte)

	// OnTransportDown reports that the link below the endpoint failed.
	OnTransportDown(reason string)
}

// Channel is a live handle to the remote endpoint.
type Channel interface {
	Enable() (Status, error)
	Disable() (Status, error)

	SendCommandMessage(msg []byte) (Status, error)
	SendDataMessage(msg []byte) (Status, error)

	// Properties returns the endpoint capability snapshot.
	Properties() (Properties, error)

	// LinkDeath registers fn to be called with token if the peer dies.
	// A later LinkDeath call replaces the previous registration.
	LinkDeath(token uint64, fn DeathFunc) error

	// UnlinkDeath drops the death registration. Best effort.
	UnlinkDeath() error

	// SetCallbacks installs the inbound sink on the endpoint. A nil sink
	// clears it.
	SetCallbacks(cb Callbacks) error
}

// Provider locates the remote endpoint. Open returns ErrNotAvailable while
// the endpoint is not yet discoverable.
type Provider interface {
	Open() (Channel, error)
}
