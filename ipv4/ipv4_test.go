package ipv4

import (
	"testing"
	"time"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/arp"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/catnip-libos/catnip/device"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/internal/metrics"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterPicksGatewayOffSubnet(t *testing.T) {
	r := Router{
		LocalAddr:   catnip.Address("\x0a\x00\x00\x01"),
		SubnetMask:  catnip.Address("\xff\xff\xff\x00"),
		GatewayAddr: catnip.Address("\x0a\x00\x00\xfe"),
	}
	assert.Equal(t, catnip.Address("\x0a\x00\x00\x02"), r.Route(catnip.Address("\x0a\x00\x00\x02")).NextHopIP)
	assert.Equal(t, r.GatewayAddr, r.Route(catnip.Address("\x08\x08\x08\x08")).NextHopIP)
}

type fakeDispatcher struct {
	delivered   []string
	unreachable []catnip.FourTuple
}

func (f *fakeDispatcher) DeliverTransportPacket(proto catnip.TransportProtocolNumber, src, dst catnip.Address, payload []byte) {
	f.delivered = append(f.delivered, string(payload))
}

func (f *fakeDispatcher) DeliverUnreachable(tuple catnip.FourTuple) {
	f.unreachable = append(f.unreachable, tuple)
}

func newTestEndpoint(t *testing.T) (*Endpoint, *device.ChannelDevice, *buffer.Pool, *fakeDispatcher) {
	dev := device.NewChannelDevice(catnip.LinkAddress("\x02\x00\x00\x00\x00\x01"), 1500)
	pool := buffer.NewPool(32, 256)
	sched := runtime.NewScheduler(runtime.NewManualClock(time.Now()))
	resolver := arp.New(arp.Config{
		StaticEntries: map[catnip.Address]catnip.LinkAddress{
			catnip.Address("\x0a\x00\x00\x02"): catnip.LinkAddress("\x02\x00\x00\x00\x00\x02"),
		},
	}, dev, catnip.Address("\x0a\x00\x00\x01"), sched, pool, nil, nil)
	disp := &fakeDispatcher{}
	router := Router{
		LocalAddr:  catnip.Address("\x0a\x00\x00\x01"),
		SubnetMask: catnip.Address("\xff\xff\xff\x00"),
	}
	ep := NewEndpoint(catnip.Address("\x0a\x00\x00\x01"), router, dev, pool, resolver, disp, &metrics.Counters{}, nil)
	return ep, dev, pool, disp
}

func TestSendEncodesEthernetAndIPv4Headers(t *testing.T) {
	ep, dev, pool, _ := newTestEndpoint(t)

	headroom := header.EthernetMinimumSize + header.IPv4MinimumSize
	pkt, err := pool.Alloc()
	require.NoError(t, err)
	require.NoError(t, pkt.AdjustHead(headroom))
	require.NoError(t, pkt.TrimTail(pkt.Size()-4))
	copy(pkt.Bytes(), []byte("ping"))

	var w runtime.Waker
	ok, err := ep.Send(catnip.Address("\x0a\x00\x00\x02"), header.UDPProtocolNumber, pkt, &w)
	require.NoError(t, err)
	require.True(t, ok)

	sent := dev.Drain()
	require.Len(t, sent, 1)
	eth := header.Ethernet(sent[0].Bytes())
	assert.Equal(t, header.IPv4ProtocolNumber, eth.Type())
	ip := header.IPv4(sent[0].Bytes()[header.EthernetMinimumSize:])
	assert.Equal(t, catnip.Address("\x0a\x00\x00\x01"), ip.SourceAddress())
	assert.Equal(t, catnip.Address("\x0a\x00\x00\x02"), ip.DestinationAddress())
	assert.Equal(t, "ping", string(ip.Payload()))
}

func TestHandleFrameDropsFragment(t *testing.T) {
	ep, _, pool, disp := newTestEndpoint(t)

	pkt, err := pool.Alloc()
	require.NoError(t, err)
	frameLen := header.EthernetMinimumSize + header.IPv4MinimumSize
	require.NoError(t, pkt.TrimTail(pkt.Size()-frameLen))

	eth := header.Ethernet(pkt.Bytes()[:header.EthernetMinimumSize])
	eth.Encode(&header.EthernetFields{Type: header.IPv4ProtocolNumber})
	ip := header.IPv4(pkt.Bytes()[header.EthernetMinimumSize:])
	ip.Encode(&header.IPv4Fields{
		IHL:            header.IPv4MinimumSize,
		TotalLength:    header.IPv4MinimumSize,
		FragmentOffset: 8,
		TTL:            64,
		Protocol:       uint8(header.UDPProtocolNumber),
		SrcAddr:        catnip.Address("\x0a\x00\x00\x02"),
		DstAddr:        catnip.Address("\x0a\x00\x00\x01"),
	})
	ip.SetChecksum(^ip.CalculateChecksum())

	ep.HandleFrame(pkt)
	assert.Empty(t, disp.delivered)
}

func TestHandleFrameDeliversUDPPayload(t *testing.T) {
	ep, _, pool, disp := newTestEndpoint(t)

	payload := []byte("hello")
	frameLen := header.EthernetMinimumSize + header.IPv4MinimumSize + len(payload)
	pkt, err := pool.Alloc()
	require.NoError(t, err)
	require.NoError(t, pkt.TrimTail(pkt.Size()-frameLen))

	eth := header.Ethernet(pkt.Bytes()[:header.EthernetMinimumSize])
	eth.Encode(&header.EthernetFields{Type: header.IPv4ProtocolNumber})
	ipHdr := pkt.Bytes()[header.EthernetMinimumSize:]
	ip := header.IPv4(ipHdr)
	ip.Encode(&header.IPv4Fields{
		IHL:         header.IPv4MinimumSize,
		TotalLength: uint16(header.IPv4MinimumSize + len(payload)),
		TTL:         64,
		Protocol:    uint8(header.UDPProtocolNumber),
		SrcAddr:     catnip.Address("\x0a\x00\x00\x02"),
		DstAddr:     catnip.Address("\x0a\x00\x00\x01"),
	})
	copy(ipHdr[header.IPv4MinimumSize:], payload)
	ip.SetChecksum(^ip.CalculateChecksum())

	ep.HandleFrame(pkt)
	require.Len(t, disp.delivered, 1)
	assert.Equal(t, "hello", disp.delivered[0])
}
