package arp

import (
	"testing"
	"time"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/catnip-libos/catnip/device"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, dev device.Device, sched *runtime.Scheduler) *Resolver {
	pool := buffer.NewPool(16, 128)
	return New(Config{
		RequestRetries:  3,
		RequestInterval: time.Millisecond,
		CacheTTL:        time.Minute,
	}, dev, catnip.Address("\x0a\x00\x00\x01"), sched, pool, nil, nil)
}

func TestResolveStaticEntryIsImmediatelyValid(t *testing.T) {
	dev := device.NewChannelDevice(catnip.LinkAddress("\x02\x00\x00\x00\x00\x01"), 1500)
	clock := runtime.NewManualClock(time.Now())
	sched := runtime.NewScheduler(clock)
	pool := buffer.NewPool(16, 128)
	targetMAC := catnip.LinkAddress("\x02\x00\x00\x00\x00\x02")
	r := New(Config{
		StaticEntries: map[catnip.Address]catnip.LinkAddress{
			catnip.Address("\x0a\x00\x00\x02"): targetMAC,
		},
	}, dev, catnip.Address("\x0a\x00\x00\x01"), sched, pool, nil, nil)

	var w runtime.Waker
	mac, ok := r.Resolve(catnip.Address("\x0a\x00\x00\x02"), &w)
	require.True(t, ok)
	assert.Equal(t, targetMAC, mac)
}

func TestResolvePendingBroadcastsRequest(t *testing.T) {
	dev := device.NewChannelDevice(catnip.LinkAddress("\x02\x00\x00\x00\x00\x01"), 1500)
	clock := runtime.NewManualClock(time.Now())
	sched := runtime.NewScheduler(clock)
	r := newTestResolver(t, dev, sched)

	var w runtime.Waker
	_, ok := r.Resolve(catnip.Address("\x0a\x00\x00\x09"), &w)
	assert.False(t, ok)

	sent := dev.Drain()
	require.Len(t, sent, 1)
	arpPkt := header.ARP(sent[0].Bytes()[header.EthernetMinimumSize:])
	assert.Equal(t, header.ARPRequest, arpPkt.Op())
}

func TestHandleReplyResolvesAndWakesWaiter(t *testing.T) {
	dev := device.NewChannelDevice(catnip.LinkAddress("\x02\x00\x00\x00\x00\x01"), 1500)
	clock := runtime.NewManualClock(time.Now())
	sched := runtime.NewScheduler(clock)
	r := newTestResolver(t, dev, sched)

	target := catnip.Address("\x0a\x00\x00\x09")
	var w runtime.Waker
	_, ok := r.Resolve(target, &w)
	require.False(t, ok)
	assert.False(t, w.Pending())

	remoteMAC := catnip.LinkAddress("\x02\x00\x00\x00\x00\x09")
	pool := buffer.NewPool(4, 128)
	pkt, _ := pool.Alloc()
	defer pkt.Release()
	arpPkt := header.ARP(pkt.Bytes()[:header.ARPSize])
	arpPkt.SetIPv4OverEthernet()
	arpPkt.SetOp(header.ARPReply)
	copy(arpPkt.HardwareAddressSender(), remoteMAC)
	copy(arpPkt.ProtocolAddressSender(), target)
	copy(arpPkt.ProtocolAddressTarget(), r.localIP)

	r.HandleReply(arpPkt)

	assert.True(t, w.Pending())
	mac, ok := r.Resolve(target, &w)
	require.True(t, ok)
	assert.Equal(t, remoteMAC, mac)
}

func TestResolutionExhaustionIsUnreachable(t *testing.T) {
	dev := device.NewChannelDevice(catnip.LinkAddress("\x02\x00\x00\x00\x00\x01"), 1500)
	clock := runtime.NewManualClock(time.Now())
	sched := runtime.NewScheduler(clock)
	r := newTestResolver(t, dev, sched)

	target := catnip.Address("\x0a\x00\x00\x09")
	var w runtime.Waker
	r.Resolve(target, &w)

	for i := 0; i < 10 && sched.NumTasks() > 0; i++ {
		clock.Advance(time.Millisecond)
		sched.RunOnce()
	}

	assert.Equal(t, catnip.ErrUnreachable, r.LastError(target))
}
