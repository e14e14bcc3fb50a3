package ipv4

import (
	"sync/atomic"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/arp"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/catnip-libos/catnip/device"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/internal/metrics"
	"github.com/catnip-libos/catnip/runtime"
	"go.uber.org/zap"
)

// DefaultTTL mirrors the teacher's endpoint.DefaultTTL, though the teacher
// hands out 255; §4.5 specifies 64.
const DefaultTTL = 64

// TransportDispatcher receives fully-stripped transport payloads (UDP/TCP)
// and destination-unreachable notifications, the way the teacher's
// stack.TransportDispatcher does via DeliverTransportPacket /
// DeliverTransportControlPacket — but addressed by catnip.FourTuple
// instead of a (proto, view) pair, since §4.5 asks for unreachable
// notifications to abort the flow matching the quoted tuple directly.
type TransportDispatcher interface {
	DeliverTransportPacket(proto catnip.TransportProtocolNumber, srcAddr, dstAddr catnip.Address, payload []byte)
	DeliverUnreachable(tuple catnip.FourTuple)
}

// Endpoint is the IPv4 network-layer actor (C6): routing, header
// encode/decode, fragment rejection on RX, and the inline ICMP echo
// responder.
type Endpoint struct {
	LocalAddr catnip.Address
	Router    Router

	dev        device.Device
	pool       *buffer.Pool
	resolver   *arp.Resolver
	dispatcher TransportDispatcher
	log        *zap.Logger
	metrics    *metrics.Counters

	id uint32
}

// NewEndpoint returns an Endpoint bound to dev, routing per router and
// resolving link addresses through resolver.
func NewEndpoint(localAddr catnip.Address, router Router, dev device.Device, pool *buffer.Pool, resolver *arp.Resolver, dispatcher TransportDispatcher, m *metrics.Counters, log *zap.Logger) *Endpoint {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = &metrics.Counters{}
	}
	return &Endpoint{LocalAddr: localAddr, Router: router, dev: dev, pool: pool, resolver: resolver, dispatcher: dispatcher, metrics: m, log: log}
}

// nextIdentification returns a monotonically increasing IPv4 identification
// value, per §4.5 ("identification field monotonically increasing per
// flow or random"); a single global counter satisfies the monotonic
// variant without per-flow bucket hashing (the teacher's ids[]/hashRoute
// scheme — dropped here as unnecessary: see DESIGN.md).
func (e *Endpoint) nextIdentification() uint16 {
	return uint16(atomic.AddUint32(&e.id, 1))
}

// Send builds an Ethernet+IPv4 frame around payload and transmits it.
// payload must have at least header.EthernetMinimumSize+header.IPv4MinimumSize
// bytes of headroom already reserved (head has been moved forward by that
// much past the pool's natural start). If the next hop isn't ARP-resolved
// yet, Send attaches w as a waiter and returns ok=false — the caller
// (UDP/TCP sender task) should retry once w fires.
func (e *Endpoint) Send(dstAddr catnip.Address, protocol catnip.TransportProtocolNumber, payload *buffer.PacketBuffer, w *runtime.Waker) (ok bool, err error) {
	route := e.Router.Route(dstAddr)
	mac, resolved := e.resolver.Resolve(route.NextHopIP, w)
	if !resolved {
		if err := e.resolver.LastError(route.NextHopIP); err != nil {
			return false, err
		}
		return false, nil
	}

	totalLen := payload.Size() + header.IPv4MinimumSize
	if err := payload.AdjustHead(-header.IPv4MinimumSize); err != nil {
		return false, catnip.ErrOutOfRoom
	}
	ip := header.IPv4(payload.Bytes()[:header.IPv4MinimumSize])
	ip.Encode(&header.IPv4Fields{
		IHL:         header.IPv4MinimumSize,
		TotalLength: uint16(totalLen),
		ID:          e.nextIdentification(),
		TTL:         DefaultTTL,
		Protocol:    uint8(protocol),
		SrcAddr:     e.LocalAddr,
		DstAddr:     dstAddr,
	})
	ip.SetChecksum(^ip.CalculateChecksum())

	if err := payload.AdjustHead(-header.EthernetMinimumSize); err != nil {
		return false, catnip.ErrOutOfRoom
	}
	eth := header.Ethernet(payload.Bytes()[:header.EthernetMinimumSize])
	eth.Encode(&header.EthernetFields{
		SrcAddr: e.dev.LinkAddress(),
		DstAddr: mac,
		Type:    header.IPv4ProtocolNumber,
	})

	return true, e.dev.Transmit(device.Burst{Buffers: []*buffer.PacketBuffer{payload}})
}

// HandleFrame processes one inbound Ethernet frame already identified as
// carrying an IPv4 payload (by EtherType, at the NIC demux). Fragments are
// dropped per §4.5; ICMP is handled inline; everything else is handed to
// the transport dispatcher.
func (e *Endpoint) HandleFrame(frame *buffer.PacketBuffer) {
	defer frame.Release()

	if frame.Size() < header.EthernetMinimumSize {
		return
	}
	if err := frame.AdjustHead(header.EthernetMinimumSize); err != nil {
		return
	}
	ipBytes := frame.Bytes()
	if !header.IPv4(ipBytes).IsValid(len(ipBytes)) {
		return
	}
	ip := header.IPv4(ipBytes)
	if !ip.IsChecksumValid() {
		e.metrics.IncChecksumErrorIPv4()
		return
	}
	if ip.IsFragment() {
		e.log.Debug("dropping ipv4 fragment", zap.String("src", ip.SourceAddress().String()))
		e.metrics.IncFragmentDropped()
		return
	}

	payload := ip.Payload()
	switch ip.TransportProtocol() {
	case header.ICMPv4ProtocolNumber:
		e.handleICMP(ip, payload)
	default:
		e.dispatcher.DeliverTransportPacket(ip.TransportProtocol(), ip.SourceAddress(), ip.DestinationAddress(), payload)
	}
}

func (e *Endpoint) handleICMP(ip header.IPv4, payload []byte) {
	if len(payload) < header.ICMPv4MinimumSize {
		return
	}
	icmp := header.ICMPv4(payload)
	switch icmp.Type() {
	case header.ICMPv4Echo:
		if len(payload) < header.ICMPv4EchoMinimumSize {
			return
		}
		e.replyToEcho(ip.SourceAddress(), icmp)
	case header.ICMPv4DstUnreachable:
		e.handleDstUnreachable(payload)
	}
}

// replyToEcho crafts and transmits an echo reply synchronously, on the
// same poll-thread call stack that received the request — §4.5 requires
// this to happen in-line, unlike the teacher's icmp.go which hands the
// request to a dedicated echoReplier goroutine via a channel.
func (e *Endpoint) replyToEcho(srcAddr catnip.Address, req header.ICMPv4) {
	dataLen := len(req) - header.ICMPv4EchoMinimumSize
	frameLen := header.EthernetMinimumSize + header.IPv4MinimumSize + header.ICMPv4EchoMinimumSize + dataLen
	pkt, err := e.pool.Alloc()
	if err != nil {
		return
	}
	if pkt.Capacity() < frameLen {
		pkt.Release()
		return
	}
	if err := pkt.TrimTail(pkt.Size() - frameLen); err != nil {
		pkt.Release()
		return
	}
	headerLen := header.EthernetMinimumSize + header.IPv4MinimumSize
	if err := pkt.AdjustHead(headerLen); err != nil {
		pkt.Release()
		return
	}

	reply := header.ICMPv4(pkt.Bytes())
	reply.SetType(header.ICMPv4EchoReply)
	reply.SetCode(0)
	reply.SetIdentifier(req.Identifier())
	reply.SetSequence(req.Sequence())
	copy(reply.Payload(), req.Payload())
	reply.SetChecksum(0)
	reply.SetChecksum(reply.CalculateChecksum())

	var w runtime.Waker
	if ok, err := e.Send(srcAddr, header.ICMPv4ProtocolNumber, pkt, &w); !ok {
		if err != nil {
			e.log.Warn("icmp echo reply unreachable", zap.Error(err))
		}
		pkt.Release()
	}
}

// handleDstUnreachable parses the quoted IP header + 8 bytes of transport
// header the ICMP message carries, reconstructs the flow's 4-tuple, and
// tells the dispatcher to abort it — grounded on the teacher's
// handleControl, which does the same quoted-header walk before calling
// DeliverTransportControlPacket.
func (e *Endpoint) handleDstUnreachable(payload []byte) {
	if len(payload) < header.ICMPv4DstUnreachableMinimumSize {
		return
	}
	quoted := payload[header.ICMPv4DstUnreachableMinimumSize:]
	if len(quoted) < header.IPv4MinimumSize {
		return
	}
	qip := header.IPv4(quoted)
	hlen := int(qip.HeaderLength())
	if len(quoted) < hlen+4 {
		return
	}
	transport := quoted[hlen:]
	tuple := catnip.FourTuple{
		LocalAddr:  qip.SourceAddress(),
		LocalPort:  catnip.Port(uint16(transport[0])<<8 | uint16(transport[1])),
		RemoteAddr: qip.DestinationAddress(),
		RemotePort: catnip.Port(uint16(transport[2])<<8 | uint16(transport[3])),
	}
	e.dispatcher.DeliverUnreachable(tuple)
}
