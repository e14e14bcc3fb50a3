// Package ioqueue implements component C9: the queue-descriptor arena and
// qtoken runtime that sits between the LibOS facade and the UDP/TCP
// stacks. Neither the teacher nor the rest of the retrieved pack has a
// direct analog — gVisor/impact-eintr-netstack expose a blocking
// waiter.Queue-backed tcpip.Endpoint instead of a completion-token API —
// so this package is designed fresh against spec.md §3/§4.8/§9, borrowing
// the arena-of-indices idiom from the teacher's
// stack.Stack.linkEndpoints (a map keyed by a monotonic NIC id) and
// generalizing it into a generation-stamped slot table so a stale qd is
// rejected rather than silently aliasing a reused slot.
package ioqueue

import (
	"sync"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/stack"
	"github.com/catnip-libos/catnip/tcp"
	"github.com/catnip-libos/catnip/udp"
)

// Domain mirrors the (narrow) socket(2) domain argument; only IPv4 is
// supported (§1 Non-goals rules out IPv6).
type Domain int

const DomainInet Domain = 0

// SockType mirrors the socket(2) type argument.
type SockType int

const (
	SockStream SockType = iota // TCP
	SockDgram                  // UDP
)

// Kind is the tagged-variant discriminant §9 asks for ("model personality
// selection as a tagged variant of queue-kind"), generalized here to the
// queue's own lifecycle stage rather than a LibOS personality — the core
// only ever has one personality (Catnip).
type Kind int

const (
	KindUnbound Kind = iota
	KindBound
	KindListening
	KindTCPFlow
	KindUDPSocket
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindUnbound:
		return "Unbound"
	case KindBound:
		return "Bound"
	case KindListening:
		return "Listening"
	case KindTCPFlow:
		return "TCPFlow"
	case KindUDPSocket:
		return "UDPSocket"
	case KindClosed:
		return "Closed"
	default:
		return "?"
	}
}

// entry is one queue-table slot's tagged-union payload: exactly one of
// the listener/tcpFlow/udpSocket pointers is non-nil, selected by kind.
type entry struct {
	generation uint32
	kind       Kind
	domain     Domain
	sockType   SockType

	local catnip.FullAddress

	listener  *tcp.Listener
	tcpFlow   *tcp.Endpoint
	udpSocket *udp.Endpoint

	// acceptPending/popPending guard against issuing a second concurrent
	// Accept/Pop against the same qd while one is already outstanding —
	// two acceptTasks sharing the listener's single AcceptWaker would
	// otherwise race on which one actually dequeues the ready flow.
	acceptPending bool
	popPending    bool
}

// Table is the per-LibOS-instance queue-descriptor arena (C9): it owns no
// protocol state itself, only the mapping from small integer `qd`s to the
// UDP/TCP objects the stack package already implements, plus the
// outstanding-operation table that backs wait/wait_any/trywait.
//
// The scheduler itself is strictly single-threaded (§5), but §5 also notes
// a host may call push/pop concurrently on different qtokens from more
// than one goroutine before handing control back to the poll loop; mu
// guards the slot/op maps against that, never the protocol state inside
// tcp.Endpoint/udp.Endpoint, which remains reachable only from the
// scheduler's own goroutine.
type Table struct {
	mu    sync.Mutex
	stack *stack.Stack

	slots []*entry
	free  []uint32

	nextOpID uint32
	ops      map[QToken]*operation
}

// New returns an empty queue table bound to s.
func New(s *stack.Stack) *Table {
	return &Table{stack: s, ops: make(map[QToken]*operation)}
}

func (t *Table) allocSlotLocked() (uint32, *entry) {
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		e := t.slots[idx]
		e.generation++
		return idx, e
	}
	idx := uint32(len(t.slots))
	e := &entry{generation: 1}
	t.slots = append(t.slots, e)
	return idx, e
}

// lookup resolves qd to its live entry, rejecting a stale generation or an
// out-of-range index with BadArg — the arena-consistency contract §3
// describes for the I/O queue.
func (t *Table) lookup(qd QDescriptor) (*entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookupLocked(qd)
}

// lookupLocked is lookup for callers already holding t.mu.
func (t *Table) lookupLocked(qd QDescriptor) (*entry, error) {
	idx, gen := qd.split()
	if int(idx) >= len(t.slots) {
		return nil, catnip.ErrBadArg
	}
	e := t.slots[idx]
	if e.generation != gen || e.kind == KindClosed {
		return nil, catnip.ErrBadArg
	}
	return e, nil
}

// setResult records res against op and marks it done, for a later
// Wait/WaitAny/TryWait to harvest.
func (t *Table) setResult(op *operation, res Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op.done = true
	op.result = res
}

// Socket allocates a fresh, unbound queue descriptor of the requested
// domain/type.
func (t *Table) Socket(domain Domain, typ SockType) (QDescriptor, error) {
	if domain != DomainInet {
		return 0, catnip.ErrBadArg
	}
	if typ != SockStream && typ != SockDgram {
		return 0, catnip.ErrBadArg
	}
	t.mu.Lock()
	idx, e := t.allocSlotLocked()
	e.kind = KindUnbound
	e.domain = domain
	e.sockType = typ
	e.local = catnip.FullAddress{}
	e.listener, e.tcpFlow, e.udpSocket = nil, nil, nil
	gen := e.generation
	t.mu.Unlock()
	return newQDescriptor(idx, gen), nil
}

// Bind fixes qd's local endpoint. For a UDP queue this reserves the port
// immediately (matching §4.6's "rebinding to a busy port fails with
// AddressInUse"); for a TCP queue, binding records the requested local
// endpoint but defers the actual port reservation to Listen. Connect uses
// only the recorded address and always reserves an ephemeral port, since
// there is no standalone "bound but not yet connected" TCP object in the
// tcp package (the teacher has none either — a TCP flow only exists once
// a handshake starts).
func (t *Table) Bind(qd QDescriptor, local catnip.FullAddress) error {
	e, err := t.lookup(qd)
	if err != nil {
		return err
	}
	if e.kind != KindUnbound {
		return catnip.ErrBadState
	}
	if e.sockType == SockDgram {
		ep := t.stack.UDP.NewEndpoint()
		if err := ep.Bind(local.Addr, local.Port); err != nil {
			return err
		}
		addr, port := ep.LocalAddr()
		t.mu.Lock()
		e.udpSocket = ep
		e.kind = KindUDPSocket
		e.local = catnip.FullAddress{NIC: local.NIC, Addr: addr, Port: port}
		t.mu.Unlock()
		return nil
	}
	t.mu.Lock()
	e.kind = KindBound
	e.local = local
	t.mu.Unlock()
	return nil
}

// Listen moves a bound (or unbound — implicitly wildcard) TCP queue into
// Listening, admitting up to backlog half-open flows. Reserves the local
// port via tcp.Stack.Listen, which is where §8's "second listen on the
// same endpoint fails InUse" invariant is actually enforced.
func (t *Table) Listen(qd QDescriptor, backlog int) error {
	e, err := t.lookup(qd)
	if err != nil {
		return err
	}
	if e.sockType != SockStream || (e.kind != KindUnbound && e.kind != KindBound) {
		return catnip.ErrBadState
	}
	l, err := t.stack.TCP.Listen(e.local, backlog)
	if err != nil {
		return err
	}
	t.mu.Lock()
	e.listener = l
	e.kind = KindListening
	t.mu.Unlock()
	return nil
}

// GetSockName returns qd's local endpoint as currently known.
func (t *Table) GetSockName(qd QDescriptor) (catnip.FullAddress, error) {
	e, err := t.lookup(qd)
	if err != nil {
		return catnip.FullAddress{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.kind == KindTCPFlow && e.tcpFlow != nil {
		id := e.tcpFlow.ID()
		return catnip.FullAddress{Addr: id.LocalAddr, Port: id.LocalPort}, nil
	}
	return e.local, nil
}
