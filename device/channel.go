package device

import (
	"sync"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
)

// ChannelDevice is an in-process test double: frames Transmit'd on one end
// are Receive'd from the other, with no real NIC involved. Grounded on the
// teacher's link/channel.Endpoint, which plays the same role (injecting
// and draining packets against a buffered channel) in its dispatcher-based
// link-layer model.
type ChannelDevice struct {
	linkAddr catnip.LinkAddress
	mtu      uint32

	mu  sync.Mutex
	out []*buffer.PacketBuffer
	in  []*buffer.PacketBuffer
}

// NewChannelDevice returns a ChannelDevice advertising linkAddr and mtu.
func NewChannelDevice(linkAddr catnip.LinkAddress, mtu uint32) *ChannelDevice {
	return &ChannelDevice{linkAddr: linkAddr, mtu: mtu}
}

// Receive drains packets previously handed to it via Inject.
func (d *ChannelDevice) Receive(maxPackets int) (Burst, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.in)
	if n > maxPackets {
		n = maxPackets
	}
	b := Burst{Buffers: d.in[:n]}
	d.in = d.in[n:]
	return b, nil
}

// Transmit records the burst so a test can assert on it via Drain.
func (d *ChannelDevice) Transmit(b Burst) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = append(d.out, b.Buffers...)
	return nil
}

// Inject makes pkt available to a subsequent Receive call, simulating an
// inbound frame arriving on the wire.
func (d *ChannelDevice) Inject(pkt *buffer.PacketBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.in = append(d.in, pkt)
}

// Drain removes and returns every packet Transmit has accumulated so far.
func (d *ChannelDevice) Drain() []*buffer.PacketBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.out
	d.out = nil
	return out
}

// LinkAddress returns the device's configured MAC address.
func (d *ChannelDevice) LinkAddress() catnip.LinkAddress { return d.linkAddr }

// MTU returns the device's configured MTU.
func (d *ChannelDevice) MTU() uint32 { return d.mtu }

// Close is a no-op; there is no underlying OS resource to release.
func (d *ChannelDevice) Close() error { return nil }
