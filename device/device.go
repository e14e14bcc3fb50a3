// Package device implements component C2: the packet I/O device contract
// and the concrete backends behind it. A Device is the boundary between
// the kernel-bypass world (raw AF_PACKET socket, or whatever a future
// io_uring-backed ring would plug in here) and the protocol stack above
// it, which only ever sees Burst-shaped batches of buffer.PacketBuffer.
package device

import (
	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
)

// Burst is a batch of packet buffers, used in both directions. The same
// type serves Receive and Transmit; ownership of every buffer passes with
// the burst (see Device.Receive and Device.Transmit).
type Burst struct {
	// Buffers is the batch of packets, in wire order.
	Buffers []*buffer.PacketBuffer
}

// Len reports how many packets the burst carries.
func (b Burst) Len() int { return len(b.Buffers) }

// Device is the contract every link-layer backend (channel test double,
// loopback, AF_PACKET raw socket) implements. Unlike the teacher's
// stack.LinkEndpoint, which delivers one packet at a time through a
// dispatcher callback, Receive and Transmit are burst-oriented: the
// scheduler's poll loop drains however many frames the NIC has queued in
// one Poll rather than being re-entered once per frame.
type Device interface {
	// Receive returns up to maxPackets frames that have arrived since the
	// last call. A zero-length result with a nil error means nothing is
	// pending right now — callers must not block. The caller owns the
	// returned buffers and releases them.
	Receive(maxPackets int) (Burst, error)

	// Transmit sends every packet in b and takes ownership of b.Buffers:
	// the caller neither uses nor releases them afterwards. RawDevice
	// releases each buffer once written; ChannelDevice and LoopbackDevice
	// queue them for whoever later drains or receives them.
	Transmit(b Burst) error

	// LinkAddress returns the device's own MAC address.
	LinkAddress() catnip.LinkAddress

	// MTU returns the maximum frame payload size, excluding the Ethernet
	// header.
	MTU() uint32

	// Close releases any underlying OS resources (RawDevice's socket).
	Close() error
}
