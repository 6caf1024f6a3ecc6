package transport

// State is the externally observable power state of the transport.
type State int32

const (
	StateDisabled State = iota
	StateEnabling
	StateEnabled
	StateDisabling
	// StateResetting is only observed while a recovery is in flight; it
	// always collapses to Enabled or Disabled.
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabling:
		return "enabling"
	case StateEnabled:
		return "enabled"
	case StateDisabling:
		return "disabling"
	case StateResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// Callback is the externally supplied sink for transport notifications.
// Both methods are invoked from dedicated transport goroutines, never from
// the caller of a power operation. The sink may be replaced or cleared at
// any time via Client.SetCallback.
type Callback interface {
	// OnMessageReceived delivers an inbound message that was not consumed
	// by keepalive or flow-control filtering.
	OnMessageReceived(msg []byte)

	// OnStateChanged reports each state transition, in order.
	OnStateChanged(s State)
}
