package tcp

import (
	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/seqnum"
)

// backlogAdmissionThreshold caps the number of half-open (SynReceived)
// flows a listener will admit concurrently, mirroring the teacher's
// accept.go SynRcvdCountThreshold gate against SYN-flood exhaustion. This
// core skips the teacher's SHA1 cookie/timestamp scheme (crypto/sha1
// hashing of a per-listener nonce) in favor of a plain backlog-size
// admission gate — see DESIGN.md.
const backlogAdmissionThreshold = 1024

// Listener owns one bound-and-listening local address/port: a bounded
// backlog of half-open flows and a queue of flows that completed their
// three-way handshake and are ready for Accept, grounded on the teacher's
// accept.go listenContext/createConnectedEndpoint split.
type Listener struct {
	owner *Stack
	local catnip.FullAddress

	backlog     int
	halfOpen    int
	acceptQueue []*Endpoint
	acceptWaker runtime.Waker
}

func newListener(owner *Stack, local catnip.FullAddress, backlog int) *Listener {
	if backlog <= 0 || backlog > backlogAdmissionThreshold {
		backlog = backlogAdmissionThreshold
	}
	return &Listener{owner: owner, local: local, backlog: backlog}
}

// admit decides whether an inbound SYN may open a new half-open flow,
// mirroring the teacher's incSynRcvdCount threshold check.
func (l *Listener) admit() bool {
	return l.halfOpen < l.backlog
}

// handleSyn creates a SynReceived endpoint for a fresh inbound SYN and
// sends the SYN-ACK, grounded on the teacher's handleSynSegment.
func (l *Listener) handleSyn(seg *segment) {
	if !l.admit() {
		return
	}
	id := seg.id
	e := newEndpoint(l.owner, id, l.owner.defaultMaxReassembly)
	e.iss = randomISS()
	e.irs = seg.seq
	e.state = StateSynReceived
	e.acceptInto = l

	mss := e.negotiatedMSS(seg.options)
	e.snd = newSender(e, e.iss, seg.window, mss, seg.options.WindowScale)
	e.rcv = newReceiver(e, e.irs, seqnum.Size(65535), 0, e.maxReassembly)

	l.halfOpen++
	l.owner.insert(id, e)
	e.transmitControl(header.FlagSyn|header.FlagAck)
	e.armSynRetry()
}

// complete moves a handshake-finished flow from half-open into the
// accept queue, waking anything parked in Accept.
func (l *Listener) complete(e *Endpoint) {
	if l.halfOpen > 0 {
		l.halfOpen--
	}
	l.acceptQueue = append(l.acceptQueue, e)
	l.acceptWaker.Wake()
}

// Accept dequeues one Established flow, if any are ready.
func (l *Listener) Accept() (*Endpoint, bool) {
	if len(l.acceptQueue) == 0 {
		return nil, false
	}
	e := l.acceptQueue[0]
	l.acceptQueue = l.acceptQueue[1:]
	return e, true
}

// AcceptWaker exposes the waker that fires whenever a flow finishes its
// handshake and lands in the accept queue; the ioqueue layer's accept
// task uses this as its Task.Waker.
func (l *Listener) AcceptWaker() *runtime.Waker { return &l.acceptWaker }

// Close tears down the listener; already-established flows in the accept
// queue are aborted since nothing will ever Accept them.
func (l *Listener) Close() {
	for _, e := range l.acceptQueue {
		e.Abort()
	}
	l.acceptQueue = nil
	l.owner.removeListener(l.local)
}
