package ioqueue

import (
	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/tcp"
	"github.com/catnip-libos/catnip/udp"
)

// Result is what a completed qtoken redeems to. Only the fields relevant
// to the operation that produced it are meaningful; the rest are zero.
type Result struct {
	Err error

	// QD is the resulting queue descriptor: the new flow for a completed
	// Accept, or qd itself for a completed Connect.
	QD QDescriptor

	// Data is the payload delivered by a completed Pop.
	Data []byte

	// From is the sender of a completed UDP Pop.
	From catnip.FullAddress

	// N is the number of bytes a completed Push enqueued.
	N int
}

// operation is one outstanding or harvested qtoken's completion slot.
type operation struct {
	done   bool
	result Result
}

func (t *Table) newOperation(qd QDescriptor) (QToken, *operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextOpID++
	tok := newQToken(qd, t.nextOpID)
	op := &operation{}
	t.ops[tok] = op
	return tok, op
}

func (t *Table) completeNow(qd QDescriptor, res Result) QToken {
	tok, op := t.newOperation(qd)
	t.setResult(op, res)
	return tok
}

// Accept returns a qtoken that completes with a fresh Established queue
// descriptor once a pending listener admits a flow, per §4.7's accept_queue
// / §4.8's accept row.
func (t *Table) Accept(qd QDescriptor) (QToken, error) {
	e, err := t.lookup(qd)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	if e.kind != KindListening {
		t.mu.Unlock()
		return 0, catnip.ErrBadState
	}
	if e.acceptPending {
		t.mu.Unlock()
		return 0, catnip.ErrBadState
	}
	e.acceptPending = true
	l := e.listener
	t.mu.Unlock()

	tok, op := t.newOperation(qd)
	task := &acceptTask{table: t, qd: qd, op: op, listener: l}
	t.stack.Sched.Spawn(task)
	return tok, nil
}

type acceptTask struct {
	table    *Table
	qd       QDescriptor
	op       *operation
	listener *tcp.Listener
}

func (a *acceptTask) Waker() *runtime.Waker { return a.listener.AcceptWaker() }

func (a *acceptTask) Poll(now runtime.Clock) runtime.Status {
	flow, ok := a.listener.Accept()
	if !ok {
		return runtime.StatusNotReady
	}
	a.table.mu.Lock()
	idx, ne := a.table.allocSlotLocked()
	ne.kind = KindTCPFlow
	ne.sockType = SockStream
	ne.tcpFlow = flow
	gen := ne.generation
	if e, err := a.table.lookupLocked(a.qd); err == nil {
		e.acceptPending = false
	}
	a.table.mu.Unlock()
	a.table.setResult(a.op, Result{QD: newQDescriptor(idx, gen)})
	return runtime.StatusDone
}

// Connect returns a qtoken that completes once the active-open flow
// reaches Established (or fails per §4.7/§7's connect error set). For a
// UDP queue there is no handshake — connect only fixes the peer Push
// sends to and Pop filters from — so it binds an ephemeral local endpoint
// if needed and completes immediately.
func (t *Table) Connect(qd QDescriptor, remote catnip.FullAddress) (QToken, error) {
	e, err := t.lookup(qd)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	kind, sockType := e.kind, e.sockType
	t.mu.Unlock()

	if sockType == SockDgram {
		return t.connectUDP(qd, e, remote)
	}
	if sockType != SockStream || (kind != KindUnbound && kind != KindBound) {
		return 0, catnip.ErrBadState
	}
	t.mu.Lock()
	localAddr := e.local.Addr
	t.mu.Unlock()

	flow, err := t.stack.TCP.Connect(localAddr, remote.Addr, remote.Port)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	e.kind = KindTCPFlow
	e.tcpFlow = flow
	t.mu.Unlock()

	tok, op := t.newOperation(qd)
	task := &connectTask{table: t, qd: qd, op: op, flow: flow}
	t.stack.Sched.Spawn(task)
	return tok, nil
}

func (t *Table) connectUDP(qd QDescriptor, e *entry, remote catnip.FullAddress) (QToken, error) {
	t.mu.Lock()
	kind := e.kind
	sock := e.udpSocket
	t.mu.Unlock()

	if kind == KindUnbound {
		sock = t.stack.UDP.NewEndpoint()
		if err := sock.Bind("", 0); err != nil {
			return 0, err
		}
	} else if kind != KindUDPSocket {
		return 0, catnip.ErrBadState
	}

	if err := sock.Connect(remote.Addr, remote.Port); err != nil {
		return 0, err
	}

	addr, port := sock.LocalAddr()
	t.mu.Lock()
	e.udpSocket = sock
	e.kind = KindUDPSocket
	e.local = catnip.FullAddress{NIC: remote.NIC, Addr: addr, Port: port}
	t.mu.Unlock()

	return t.completeNow(qd, Result{QD: qd}), nil
}

type connectTask struct {
	table *Table
	qd    QDescriptor
	op    *operation
	flow  *tcp.Endpoint
}

func (c *connectTask) Waker() *runtime.Waker { return c.flow.StateWaker() }

func (c *connectTask) Poll(now runtime.Clock) runtime.Status {
	switch c.flow.State() {
	case tcp.StateEstablished:
		c.table.setResult(c.op, Result{QD: c.qd})
		return runtime.StatusDone
	case tcp.StateClosed:
		err := c.flow.LastError()
		if err == nil {
			err = catnip.ErrRefused
		}
		c.table.setResult(c.op, Result{Err: err})
		return runtime.StatusDone
	default:
		return runtime.StatusNotReady
	}
}

// Push enqueues buf on qd's send side, completing once the bytes have
// entered the send buffer — not once they are acknowledged, per §4.7's
// push-completion mandate and the Open Question decision recorded in
// DESIGN.md.
func (t *Table) Push(qd QDescriptor, buf []byte) (QToken, error) {
	e, err := t.lookup(qd)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	kind, flow, sock := e.kind, e.tcpFlow, e.udpSocket
	t.mu.Unlock()

	switch kind {
	case KindTCPFlow:
		n, err := flow.Push(buf)
		if err != nil {
			return 0, err
		}
		return t.completeNow(qd, Result{N: n}), nil
	case KindUDPSocket:
		tok, op := t.newOperation(qd)
		task := &udpPushTask{table: t, op: op, sock: sock, payload: buf}
		task.waker.Wake() // so the next RunOnce makes the first attempt
		t.stack.Sched.Spawn(task)
		return tok, nil
	default:
		return 0, catnip.ErrBadState
	}
}

// udpPushTask makes a UDP send and retries it while the next hop awaits ARP
// resolution, mirroring the one-shot-task-per-timer/retry pattern used
// throughout tcp/ (arp.Resolver.retryTask, tcp.synRetryTask): its own
// dedicated Waker is what arp.Resolver wakes once the next hop resolves.
type udpPushTask struct {
	waker   runtime.Waker
	table   *Table
	op      *operation
	sock    *udp.Endpoint
	payload []byte
}

func (p *udpPushTask) Waker() *runtime.Waker { return &p.waker }

func (p *udpPushTask) Poll(now runtime.Clock) runtime.Status {
	ok, err := p.sock.Send(p.payload, "", 0, &p.waker)
	if err != nil {
		p.table.setResult(p.op, Result{Err: err})
		return runtime.StatusDone
	}
	if !ok {
		return runtime.StatusNotReady
	}
	p.table.setResult(p.op, Result{N: len(p.payload)})
	return runtime.StatusDone
}

// Pop dequeues up to max bytes (TCP) or one datagram (UDP) from qd's
// receive side, completing once data (or EOF, for TCP) is available.
func (t *Table) Pop(qd QDescriptor, max int) (QToken, error) {
	e, err := t.lookup(qd)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	if e.popPending {
		t.mu.Unlock()
		return 0, catnip.ErrBadState
	}
	kind, flow, sock := e.kind, e.tcpFlow, e.udpSocket
	e.popPending = true
	t.mu.Unlock()

	switch kind {
	case KindTCPFlow:
		tok, op := t.newOperation(qd)
		task := &tcpPopTask{table: t, qd: qd, op: op, flow: flow, max: max}
		t.stack.Sched.Spawn(task)
		return tok, nil
	case KindUDPSocket:
		tok, op := t.newOperation(qd)
		task := &udpPopTask{table: t, qd: qd, op: op, sock: sock}
		t.stack.Sched.Spawn(task)
		return tok, nil
	default:
		t.mu.Lock()
		e.popPending = false
		t.mu.Unlock()
		return 0, catnip.ErrBadState
	}
}

type tcpPopTask struct {
	table *Table
	qd    QDescriptor
	op    *operation
	flow  *tcp.Endpoint
	max   int
}

func (p *tcpPopTask) Waker() *runtime.Waker { return p.flow.RecvWaker() }

func (p *tcpPopTask) Poll(now runtime.Clock) runtime.Status {
	data, ok, err := p.flow.Pop(p.max)
	if err != nil {
		p.done(Result{Err: err})
		return runtime.StatusDone
	}
	if !ok {
		return runtime.StatusNotReady
	}
	p.done(Result{Data: data})
	return runtime.StatusDone
}

func (p *tcpPopTask) done(res Result) {
	p.table.mu.Lock()
	if e, err := p.table.lookupLocked(p.qd); err == nil {
		e.popPending = false
	}
	p.table.mu.Unlock()
	p.table.setResult(p.op, res)
}

type udpPopTask struct {
	table *Table
	qd    QDescriptor
	op    *operation
	sock  *udp.Endpoint
}

func (p *udpPopTask) Waker() *runtime.Waker { return p.sock.RecvWaker() }

func (p *udpPopTask) Poll(now runtime.Clock) runtime.Status {
	d, ok := p.sock.Recv()
	if !ok {
		return runtime.StatusNotReady
	}
	p.table.mu.Lock()
	if e, err := p.table.lookupLocked(p.qd); err == nil {
		e.popPending = false
	}
	p.table.mu.Unlock()
	p.table.setResult(p.op, Result{Data: d.Payload, From: catnip.FullAddress{Addr: d.Src, Port: d.SrcPort}})
	return runtime.StatusDone
}

// Close tears qd's underlying resource down (if any) and frees the slot
// for reuse. The close itself is synchronous under the hood (tcp and udp
// endpoints close without needing to suspend), but still returns a
// completed qtoken for uniformity with the rest of the table §4.8
// describes.
func (t *Table) Close(qd QDescriptor) (QToken, error) {
	e, err := t.lookup(qd)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	switch e.kind {
	case KindListening:
		e.listener.Close()
	case KindTCPFlow:
		e.tcpFlow.Close()
	case KindUDPSocket:
		e.udpSocket.Close()
	}
	idx, _ := qd.split()
	e.kind = KindClosed
	e.listener, e.tcpFlow, e.udpSocket = nil, nil, nil
	t.free = append(t.free, idx)
	t.mu.Unlock()
	return t.completeNow(qd, Result{}), nil
}
