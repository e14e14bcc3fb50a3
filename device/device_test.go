package device

import (
	"testing"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDeviceTransmitThenDrain(t *testing.T) {
	d := NewChannelDevice(catnip.LinkAddress("\x02\x00\x00\x00\x00\x01"), 1500)
	pool := buffer.NewPool(4, 128)
	pkt, err := pool.Alloc()
	require.NoError(t, err)

	require.NoError(t, d.Transmit(Burst{Buffers: []*buffer.PacketBuffer{pkt}}))
	out := d.Drain()
	require.Len(t, out, 1)
	assert.Same(t, pkt, out[0])
	assert.Empty(t, d.Drain())
}

func TestChannelDeviceInjectThenReceive(t *testing.T) {
	d := NewChannelDevice(catnip.LinkAddress(""), 1500)
	pool := buffer.NewPool(4, 128)
	p1, _ := pool.Alloc()
	p2, _ := pool.Alloc()
	d.Inject(p1)
	d.Inject(p2)

	b, err := d.Receive(1)
	require.NoError(t, err)
	assert.Len(t, b.Buffers, 1)

	b, err = d.Receive(10)
	require.NoError(t, err)
	assert.Len(t, b.Buffers, 1)
}

func TestLoopbackDeviceEchoesTransmitToReceive(t *testing.T) {
	d := NewLoopbackDevice()
	pool := buffer.NewPool(4, 128)
	pkt, err := pool.Alloc()
	require.NoError(t, err)

	require.NoError(t, d.Transmit(Burst{Buffers: []*buffer.PacketBuffer{pkt}}))
	b, err := d.Receive(10)
	require.NoError(t, err)
	require.Len(t, b.Buffers, 1)
	assert.Same(t, pkt, b.Buffers[0])
}
