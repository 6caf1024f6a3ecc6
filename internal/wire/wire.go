// Package wire holds the subset of radio message constants the transport
// client needs for routing, flow control and keepalive. Payloads are otherwise
// opaque to this module.
package wire

import "bytes"

// Offsets within the message buffer.
const (
	TypeOffset = 1
	DataOffset = 2
)

// Message type bytes.
const (
	TypeBroadcastData       byte = 0x4E
	TypeAcknowledgedData    byte = 0x4F
	TypeBurstData           byte = 0x50
	TypeExtBroadcastData    byte = 0x5D
	TypeExtAcknowledgedData byte = 0x5E
	TypeExtBurstData        byte = 0x5F
	TypeAdvBurstData        byte = 0x72

	TypeFlowControl byte = 0xC9
)

// FlowGo is the flow-control data byte that permits the next data send.
// Any other value means stop.
const FlowGo byte = 0x00

// KeepalivePing is the liveness probe, built on the invalid message id 0x00.
var KeepalivePing = []byte{0x01, 0x00, 0x00}

// KeepaliveResponse is the invalid-id response the chip answers the probe with.
var KeepaliveResponse = []byte{0x03, 0x40, 0x00, 0x00, 0x28}

// Class separates messages into the two transmit channels.
type Class int

const (
	ClassCommand Class = iota
	ClassData
)

// Classify routes a message to the data or command channel based on its
// type byte. Messages too short to carry a type byte go to the command
// channel unchanged; the remote end is responsible for rejecting them.
func Classify(msg []byte) Class {
	if len(msg) <= TypeOffset {
		return ClassCommand
	}
	switch msg[TypeOffset] {
	case TypeBroadcastData,
		TypeAcknowledgedData,
		TypeBurstData,
		TypeExtBroadcastData,
		TypeExtAcknowledgedData,
		TypeExtBurstData,
		TypeAdvBurstData:
		return ClassData
	default:
		return ClassCommand
	}
}

// IsFlowControl reports whether msg is a flow-control message.
func IsFlowControl(msg []byte) bool {
	return len(msg) > TypeOffset && msg[TypeOffset] == TypeFlowControl
}

// IsFlowGo reports whether msg is a flow-control message carrying the go byte.
func IsFlowGo(msg []byte) bool {
	return IsFlowControl(msg) && len(msg) > DataOffset && msg[DataOffset] == FlowGo
}

// IsKeepaliveResponse matches the exact keepalive response pattern.
func IsKeepaliveResponse(msg []byte) bool {
	return bytes.Equal(msg, KeepaliveResponse)
}
