// Package stack assembles the per-layer actors (device, ARP, IPv4, UDP,
// TCP) into one object a caller can push frames into and pull sockets out
// of — the aggregate root libos.LibOS hands every queue operation down to.
// Grounded on the teacher's stack.Stack (the NIC/protocol registry that
// glues network.* and transport.* together), trimmed to this core's single
// NIC / single IPv4 endpoint scope (§4.2's Non-goals rule out multi-NIC
// routing).
package stack

import (
	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/arp"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/catnip-libos/catnip/config"
	"github.com/catnip-libos/catnip/device"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/internal/metrics"
	"github.com/catnip-libos/catnip/ipv4"
	"github.com/catnip-libos/catnip/ports"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/tcp"
	"github.com/catnip-libos/catnip/udp"
	"go.uber.org/zap"
)

// Stack owns every layer below the socket API: one device, its ARP cache,
// one IPv4 endpoint, and the UDP and TCP demultiplexers registered as its
// transport dispatchers.
type Stack struct {
	Sched *runtime.Scheduler
	Pool  *buffer.Pool
	Ports *ports.Manager

	Device device.Device
	ARP    *arp.Resolver
	IPv4   *ipv4.Endpoint
	UDP    *udp.Stack
	TCP    *tcp.Stack

	Metrics *metrics.Counters

	log *zap.Logger
}

// dispatcher fans DeliverTransportPacket/DeliverUnreachable out to
// whichever of UDP/TCP owns the protocol number, since ipv4.Endpoint takes
// exactly one TransportDispatcher.
type dispatcher struct {
	udp *udp.Stack
	tcp *tcp.Stack
}

func (d *dispatcher) DeliverTransportPacket(proto catnip.TransportProtocolNumber, srcAddr, dstAddr catnip.Address, payload []byte) {
	switch proto {
	case header.UDPProtocolNumber:
		d.udp.DeliverPacket(srcAddr, dstAddr, payload)
	case header.TCPProtocolNumber:
		d.tcp.DeliverTransportPacket(proto, srcAddr, dstAddr, payload)
	}
}

func (d *dispatcher) DeliverUnreachable(tuple catnip.FourTuple) {
	d.tcp.DeliverUnreachable(tuple)
}

// New wires dev into a full stack per cfg: ARP resolver, IPv4 router and
// endpoint, UDP and TCP demultiplexers, and an ephemeral-port manager
// shared by both transports.
func New(cfg config.Config, dev device.Device, sched *runtime.Scheduler, pool *buffer.Pool, log *zap.Logger) (*Stack, error) {
	if log == nil {
		log = zap.NewNop()
	}

	localAddr, err := cfg.LocalAddress()
	if err != nil {
		return nil, err
	}
	gatewayAddr, err := cfg.GatewayAddress()
	if err != nil {
		return nil, err
	}
	subnetMask, err := cfg.SubnetMaskAddress()
	if err != nil {
		return nil, err
	}
	staticARP, err := cfg.StaticARPEntries()
	if err != nil {
		return nil, err
	}

	m := &metrics.Counters{}

	resolver := arp.New(arp.Config{
		RequestRetries:  cfg.ARPRequestRetries,
		RequestInterval: cfg.ARPRequestInterval(),
		CacheTTL:        cfg.ARPCacheTTL(),
		StaticEntries:   staticARP,
	}, dev, localAddr, sched, pool, m, log)

	router := ipv4.Router{LocalAddr: localAddr, SubnetMask: subnetMask, GatewayAddr: gatewayAddr}

	portMgr := ports.NewManager(catnip.Port(cfg.UDPEphemeralRange.Low), catnip.Port(cfg.UDPEphemeralRange.High))

	udpStack := udp.NewStack(pool, portMgr, nil, m)
	tcpStack := tcp.NewStack(sched, nil, pool, portMgr, cfg, m, log)

	disp := &dispatcher{udp: udpStack, tcp: tcpStack}
	ipv4Ep := ipv4.NewEndpoint(localAddr, router, dev, pool, resolver, disp, m, log)

	udpStack.SetIPv4(ipv4Ep)
	tcpStack.SetIPv4(ipv4Ep)

	return &Stack{
		Sched:   sched,
		Pool:    pool,
		Ports:   portMgr,
		Device:  dev,
		ARP:     resolver,
		IPv4:    ipv4Ep,
		UDP:     udpStack,
		TCP:     tcpStack,
		Metrics: m,
		log:     log,
	}, nil
}

// defaultPollBurst bounds how many frames one PollOnce call drains from
// the device in a single step, mirroring §4.1's "polls the NIC for an RX
// burst" step of the poll loop.
const defaultPollBurst = 64

// PollOnce drains up to one RX burst from Device, feeding every frame
// through DeliverFrame, then runs the scheduler once. It returns the
// number of frames received, for a caller (ioqueue's Wait/WaitAny, or an
// application's own poll loop) deciding whether to keep spinning or back
// off. TX has no separate drain step here: ipv4.Endpoint.Send already
// hands completed frames to Device.Transmit inline on the same call stack
// that built them, so there is nothing queued to flush afterward.
func (s *Stack) PollOnce() int {
	burst, err := s.Device.Receive(defaultPollBurst)
	if err != nil {
		s.log.Debug("device receive error", zap.Error(err))
	}
	for _, pkt := range burst.Buffers {
		s.DeliverFrame(pkt)
	}
	s.Sched.RunOnce()
	return len(burst.Buffers)
}

// DeliverFrame feeds one raw Ethernet frame read off Device into the
// stack: ARP requests/replies update the cache, IPv4 frames get routed up
// through the transport demultiplexers.
func (s *Stack) DeliverFrame(pkt *buffer.PacketBuffer) {
	if len(pkt.Bytes()) < header.EthernetMinimumSize {
		pkt.Release()
		return
	}
	eth := header.Ethernet(pkt.Bytes())
	switch eth.Type() {
	case header.ARPProtocolNumber:
		arpPkt := header.ARP(pkt.Bytes()[header.EthernetMinimumSize:])
		s.ARP.HandleReply(arpPkt)
		pkt.Release()
	case header.IPv4ProtocolNumber:
		s.IPv4.HandleFrame(pkt)
	default:
		pkt.Release()
	}
}
