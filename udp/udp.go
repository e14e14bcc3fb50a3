// Package udp implements component C7: the stateless datagram layer.
// Grounded on the teacher's transport/udp/endpoint.go for the endpoint
// state names (Initial/Bound/Connected/Closed) and receive-queue shape;
// rebuilt without its waiter.Queue/sleep.Waker plumbing and without
// multicast, which §4.6 scopes out — see DESIGN.md.
package udp

import (
	"sync"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/internal/metrics"
	"github.com/catnip-libos/catnip/ipv4"
	"github.com/catnip-libos/catnip/ports"
	"github.com/catnip-libos/catnip/runtime"
)

// Datagram is one received UDP payload together with the sender's
// address, queued for a bound endpoint to read.
type Datagram struct {
	Payload []byte
	Src     catnip.Address
	SrcPort catnip.Port
}

type endpointState int

const (
	stateInitial endpointState = iota
	stateBound
	stateConnected
	stateClosed
)

// maxReceiveQueueDatagrams bounds per-endpoint RX queueing; §4.6 leaves
// the exact number open (Open Question), decided here — see DESIGN.md.
const maxReceiveQueueDatagrams = 256

// Endpoint is one UDP socket: an ephemeral or explicit local (addr, port),
// optionally connected to one remote peer, with a bounded FIFO of
// received datagrams.
type Endpoint struct {
	stack *Stack

	mu    sync.Mutex
	state endpointState

	localAddr  catnip.Address
	localPort  catnip.Port
	remoteAddr catnip.Address
	remotePort catnip.Port

	rcvQueue []Datagram
	rcvWaker runtime.Waker
}

// Bind reserves (addr, port) — port 0 picks an ephemeral one — and moves
// the endpoint to Bound.
func (e *Endpoint) Bind(addr catnip.Address, port catnip.Port) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateInitial {
		return catnip.ErrBadState
	}
	got, err := e.stack.ports.Reserve(header.UDPProtocolNumber, addr, port)
	if err != nil {
		return err
	}
	e.localAddr = addr
	e.localPort = got
	e.state = stateBound
	e.stack.register(e)
	return nil
}

// Connect fixes the endpoint's remote peer, binding to an ephemeral local
// port first if the endpoint is still Initial.
func (e *Endpoint) Connect(addr catnip.Address, port catnip.Port) error {
	e.mu.Lock()
	if e.state == stateInitial {
		e.mu.Unlock()
		if err := e.Bind(e.localAddr, 0); err != nil {
			return err
		}
		e.mu.Lock()
	}
	defer e.mu.Unlock()
	if e.state == stateClosed {
		return catnip.ErrBadState
	}
	e.remoteAddr = addr
	e.remotePort = port
	e.state = stateConnected
	return nil
}

// Send transmits payload to addr/port (or the connected peer, if addr is
// empty). w is attached as the ARP-resolution waiter if the next hop
// isn't resolved yet; the caller's own task should retry on w firing.
func (e *Endpoint) Send(payload []byte, addr catnip.Address, port catnip.Port, w *runtime.Waker) (bool, error) {
	e.mu.Lock()
	dstAddr, dstPort := addr, port
	if dstAddr == "" {
		dstAddr, dstPort = e.remoteAddr, e.remotePort
	}
	localAddr, localPort := e.localAddr, e.localPort
	e.mu.Unlock()

	if dstAddr == "" {
		return false, catnip.ErrBadArg
	}
	if localPort == 0 {
		if err := e.Bind(localAddr, 0); err != nil {
			return false, err
		}
		e.mu.Lock()
		localAddr, localPort = e.localAddr, e.localPort
		e.mu.Unlock()
	}

	headroom := header.EthernetMinimumSize + header.IPv4MinimumSize + header.UDPMinimumSize
	pkt, err := e.stack.pool.Alloc()
	if err != nil {
		return false, err
	}
	if err := pkt.AdjustHead(headroom); err != nil {
		pkt.Release()
		return false, catnip.ErrOutOfRoom
	}
	if err := pkt.TrimTail(pkt.Size() - len(payload)); err != nil {
		pkt.Release()
		return false, catnip.ErrOutOfRoom
	}
	copy(pkt.Bytes(), payload)

	if err := pkt.AdjustHead(-header.UDPMinimumSize); err != nil {
		pkt.Release()
		return false, catnip.ErrOutOfRoom
	}
	length := uint16(header.UDPMinimumSize + len(payload))
	udpHdr := header.UDP(pkt.Bytes()[:header.UDPMinimumSize])
	udpHdr.Encode(&header.UDPFields{
		SrcPort: uint16(localPort),
		DstPort: uint16(dstPort),
		Length:  length,
	})
	// The pseudo-header carries the source address ipv4.Send writes, which
	// is the IPv4 endpoint's own address when the socket is bound to "".
	srcAddr := localAddr
	if srcAddr == "" {
		srcAddr = e.stack.ipv4.LocalAddr
	}
	xsum := header.PseudoHeaderChecksum(header.UDPProtocolNumber, srcAddr, dstAddr)
	xsum = header.Checksum(pkt.Bytes()[header.UDPMinimumSize:], xsum)
	udpHdr.SetChecksum(header.EncodeChecksum(udpHdr.CalculateChecksum(xsum, length)))

	ok, err := e.stack.ipv4.Send(dstAddr, header.UDPProtocolNumber, pkt, w)
	if !ok {
		// Either an error, or the next hop isn't resolved yet and w was
		// attached as an ARP waiter: either way this pkt was never handed
		// to the device, so it's still ours to return to the pool. A
		// caller retrying on w fires re-encodes from payload rather than
		// reusing this buffer.
		pkt.Release()
	}
	return ok, err
}

// Recv dequeues the oldest pending datagram. ok is false if nothing is
// queued — the caller's task should wait on RecvWaker.
func (e *Endpoint) Recv() (Datagram, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.rcvQueue) == 0 {
		return Datagram{}, false
	}
	d := e.rcvQueue[0]
	e.rcvQueue = e.rcvQueue[1:]
	return d, true
}

// RecvWaker returns the Waker fired when a new datagram is enqueued.
func (e *Endpoint) RecvWaker() *runtime.Waker { return &e.rcvWaker }

// LocalAddr returns the endpoint's bound local address and port, for
// getsockname-style queries from the ioqueue layer.
func (e *Endpoint) LocalAddr() (catnip.Address, catnip.Port) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localAddr, e.localPort
}

// Close releases the endpoint's port reservation and demux registration.
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateClosed {
		return
	}
	if e.state == stateBound || e.state == stateConnected {
		e.stack.unregister(e)
		e.stack.ports.Release(header.UDPProtocolNumber, e.localAddr, e.localPort)
	}
	e.state = stateClosed
	e.rcvQueue = nil
}

func (e *Endpoint) enqueue(d Datagram) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateClosed {
		return
	}
	if len(e.rcvQueue) >= maxReceiveQueueDatagrams {
		e.rcvQueue = e.rcvQueue[1:]
	}
	e.rcvQueue = append(e.rcvQueue, d)
	e.rcvWaker.Wake()
}

func (e *Endpoint) key() endpointKey { return endpointKey{addr: e.localAddr, port: e.localPort} }

type endpointKey struct {
	addr catnip.Address
	port catnip.Port
}

// Stack is the UDP-layer demux: the set of bound endpoints, keyed by
// local (addr, port), plus the shared buffer pool and ports manager
// endpoints draw on to send and bind.
type Stack struct {
	mu        sync.Mutex
	endpoints map[endpointKey]*Endpoint

	pool    *buffer.Pool
	ports   *ports.Manager
	ipv4    *ipv4.Endpoint
	metrics *metrics.Counters
}

// NewStack returns a UDP demux wired to pool/ports/ipv4Ep.
func NewStack(pool *buffer.Pool, portMgr *ports.Manager, ipv4Ep *ipv4.Endpoint, m *metrics.Counters) *Stack {
	if m == nil {
		m = &metrics.Counters{}
	}
	return &Stack{
		endpoints: make(map[endpointKey]*Endpoint),
		pool:      pool,
		ports:     portMgr,
		ipv4:      ipv4Ep,
		metrics:   m,
	}
}

// SetIPv4 wires the IPv4 endpoint this Stack sends through, resolving the
// construction cycle between ipv4.NewEndpoint (which needs a
// TransportDispatcher) and NewStack (which needs that same ipv4.Endpoint).
func (s *Stack) SetIPv4(ipv4Ep *ipv4.Endpoint) { s.ipv4 = ipv4Ep }

// NewEndpoint returns an unbound Endpoint on this Stack.
func (s *Stack) NewEndpoint() *Endpoint {
	return &Endpoint{stack: s, state: stateInitial}
}

func (s *Stack) register(e *Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[e.key()] = e
}

func (s *Stack) unregister(e *Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.endpoints, e.key())
}

// DeliverPacket parses an inbound UDP datagram and routes it to the bound
// endpoint matching dstAddr:dstPort (falling back to the wildcard address),
// dropping it silently if nothing is bound — per §7, unmatched datagrams
// are not an application-visible error.
func (s *Stack) DeliverPacket(srcAddr, dstAddr catnip.Address, payload []byte) {
	if len(payload) < header.UDPMinimumSize {
		return
	}
	udpHdr := header.UDP(payload)
	dstPort := catnip.Port(udpHdr.DestinationPort())
	srcPort := catnip.Port(udpHdr.SourcePort())

	xsum := header.PseudoHeaderChecksum(header.UDPProtocolNumber, srcAddr, dstAddr)
	xsum = header.Checksum(payload[header.UDPMinimumSize:], xsum)
	if !udpHdr.IsChecksumValid(xsum, udpHdr.Length()) {
		s.metrics.IncChecksumErrorUDP()
		return
	}

	s.mu.Lock()
	e, ok := s.endpoints[endpointKey{addr: dstAddr, port: dstPort}]
	if !ok {
		e, ok = s.endpoints[endpointKey{addr: "", port: dstPort}]
	}
	s.mu.Unlock()
	if !ok {
		s.metrics.IncStrayDatagramUDP()
		return
	}

	data := make([]byte, len(udpHdr.Payload()))
	copy(data, udpHdr.Payload())
	e.enqueue(Datagram{Payload: data, Src: srcAddr, SrcPort: srcPort})
}
