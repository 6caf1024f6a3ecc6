// Package transport owns the client side of the radio hardware-abstraction
// channel.
//
// Ownership boundary:
// - channel bind/unbind with retry and death-notification bookkeeping
// - the power state machine (Disabled/Enabling/Enabled/Disabling/Resetting)
// - command/data message transmit with protocol flow control
// - keepalive probing and automated link recovery
//
// The synchronization model is to do pretty much everything with the state
// lock held. Exceptions:
//   - code that calls out to the external sink: dispatched on a dedicated
//     worker so a locked caller never blocks on a callback
//   - the transmit path: a data send may block on flow control but command
//     sends and power transitions must stay independent of it
//   - reading the current state: lock-free, stale reads under transition
//     are acceptable
//   - a separate lock scoped to flow control on the data channel
package transport
