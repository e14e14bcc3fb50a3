package tcp

import (
	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/catnip-libos/catnip/config"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/internal/metrics"
	"github.com/catnip-libos/catnip/ipv4"
	"github.com/catnip-libos/catnip/ports"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/seqnum"
	"go.uber.org/zap"
)

// Stack is the TCP flow table and demultiplexer: it implements
// ipv4.TransportDispatcher, routing inbound segments to the matching
// Endpoint (by full four-tuple) or Listener (by local address/port),
// grounded on the teacher's stack.TransportEndpoints demuxer but scoped to
// one protocol and one NIC.
type Stack struct {
	sched *runtime.Scheduler
	ipv4  *ipv4.Endpoint
	pool  *buffer.Pool
	ports *ports.Manager
	log   *zap.Logger

	metrics *metrics.Counters

	cfg config.Config

	defaultMSS            uint16
	defaultMaxReassembly  int

	flows     map[catnip.FourTuple]*Endpoint
	listeners map[catnip.FullAddress]*Listener
}

// NewStack builds a TCP demultiplexer bound to a single IPv4 endpoint and
// port manager, sized per cfg.
func NewStack(sched *runtime.Scheduler, ipv4Ep *ipv4.Endpoint, pool *buffer.Pool, portMgr *ports.Manager, cfg config.Config, m *metrics.Counters, log *zap.Logger) *Stack {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = &metrics.Counters{}
	}
	return &Stack{
		sched:                sched,
		ipv4:                 ipv4Ep,
		pool:                 pool,
		ports:                portMgr,
		log:                  log,
		metrics:              m,
		cfg:                  cfg,
		defaultMSS:           cfg.TCPMSS,
		defaultMaxReassembly: cfg.TCPRxReassemblyMaxBytes,
		flows:                make(map[catnip.FourTuple]*Endpoint),
		listeners:            make(map[catnip.FullAddress]*Listener),
	}
}

// SetIPv4 wires the IPv4 endpoint this Stack sends through, resolving the
// construction cycle between ipv4.NewEndpoint (which needs a
// TransportDispatcher) and NewStack (which needs that same ipv4.Endpoint).
func (s *Stack) SetIPv4(ipv4Ep *ipv4.Endpoint) { s.ipv4 = ipv4Ep }

func (s *Stack) insert(id catnip.FourTuple, e *Endpoint) { s.flows[id] = e }

func (s *Stack) remove(id catnip.FourTuple) { delete(s.flows, id) }

func (s *Stack) removeListener(local catnip.FullAddress) { delete(s.listeners, local) }

// Connect reserves an ephemeral local port and starts an active open to
// (remoteAddr, remotePort), returning the new Endpoint immediately (it
// completes asynchronously into StateEstablished). An empty localAddr
// means the IPv4 endpoint's own address.
func (s *Stack) Connect(localAddr, remoteAddr catnip.Address, remotePort catnip.Port) (*Endpoint, error) {
	if localAddr == "" && s.ipv4 != nil {
		localAddr = s.ipv4.LocalAddr
	}
	port, err := s.ports.Reserve(header.TCPProtocolNumber, localAddr, 0)
	if err != nil {
		return nil, err
	}
	id := catnip.FourTuple{LocalAddr: localAddr, LocalPort: port, RemoteAddr: remoteAddr, RemotePort: remotePort}
	e := newEndpoint(s, id, s.defaultMaxReassembly)
	s.insert(id, e)
	e.Connect()
	return e, nil
}

// Listen reserves local, binding a Listener that admits inbound SYNs
// destined for it.
func (s *Stack) Listen(local catnip.FullAddress, backlog int) (*Listener, error) {
	if _, err := s.ports.Reserve(header.TCPProtocolNumber, local.Addr, local.Port); err != nil {
		return nil, err
	}
	l := newListener(s, local, backlog)
	s.listeners[local] = l
	return l, nil
}

// DeliverTransportPacket implements ipv4.TransportDispatcher: it parses
// the TCP header, looks up the matching flow (or listener, for a fresh
// SYN), and hands the decoded segment off.
func (s *Stack) DeliverTransportPacket(proto catnip.TransportProtocolNumber, srcAddr, dstAddr catnip.Address, payload []byte) {
	if proto != header.TCPProtocolNumber {
		return
	}
	if !header.TCP(payload).IsValid(len(payload)) {
		return
	}
	tcpHdr := header.TCP(payload)
	xsum := header.PseudoHeaderChecksum(header.TCPProtocolNumber, srcAddr, dstAddr)
	if !tcpHdr.IsChecksumValid(xsum) {
		s.metrics.IncChecksumErrorTCP()
		return
	}

	id := catnip.FourTuple{
		LocalAddr:  dstAddr,
		LocalPort:  catnip.Port(tcpHdr.DestinationPort()),
		RemoteAddr: srcAddr,
		RemotePort: catnip.Port(tcpHdr.SourcePort()),
	}
	seg := decodeSegment(id, tcpHdr)

	if e, ok := s.flows[id]; ok {
		e.handleSegment(seg)
		return
	}

	if seg.flags&header.FlagSyn != 0 && seg.flags&header.FlagAck == 0 {
		local := catnip.FullAddress{Addr: dstAddr, Port: id.LocalPort}
		if l, ok := s.listeners[local]; ok {
			l.handleSyn(seg)
			return
		}
		wildcard := catnip.FullAddress{Port: id.LocalPort}
		if l, ok := s.listeners[wildcard]; ok {
			l.handleSyn(seg)
			return
		}
	}
	// No matching flow or listener: per §7, unroutable segments are
	// dropped and counted, never surfaced.
	s.metrics.IncStraySegmentTCP()
}

// DeliverUnreachable implements ipv4.TransportDispatcher: an ICMP
// destination-unreachable naming this exact flow aborts it with
// catnip.ErrUnreachable.
func (s *Stack) DeliverUnreachable(tuple catnip.FourTuple) {
	if e, ok := s.flows[tuple]; ok {
		e.abort(catnip.ErrUnreachable)
	}
}

func decodeSegment(id catnip.FourTuple, hdr header.TCP) *segment {
	seg := &segment{
		id:     id,
		seq:    seqnum.Value(hdr.SequenceNumber()),
		ack:    seqnum.Value(hdr.AckNumber()),
		flags:  hdr.Flags(),
		window: seqnum.Size(hdr.WindowSize()),
	}
	if len(hdr.Payload()) > 0 {
		data := make([]byte, len(hdr.Payload()))
		copy(data, hdr.Payload())
		seg.data = data
	}
	if seg.flags&header.FlagSyn != 0 {
		seg.options = header.ParseSynOptions(hdr.Options(), seg.flags&header.FlagAck != 0)
		seg.hasOpts = true
	} else {
		seg.options.WindowScale = -1
	}
	return seg
}
