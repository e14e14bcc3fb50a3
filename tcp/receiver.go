package tcp

import (
	"time"

	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/seqnum"
)

// delayedAckTimeout bounds how long a receiver withholds an ACK hoping to
// piggyback it on an outgoing data segment (RFC 1122 §4.2.3.2).
const delayedAckTimeout = 200 * time.Millisecond

// outOfOrderSegment is one not-yet-contiguous received segment held in the
// reassembly set.
type outOfOrderSegment struct {
	seq  seqnum.Value
	data []byte
}

// receiver is the reassembly/ACK-generation half of one TCP flow. The
// teacher's transport/tcp/rcv.go never got past a one-line stub
// ("newReceiver"/"handleRcvdSegment" both do nothing real), so the
// reassembly and delayed-ACK logic here is original, grounded on RFC 793
// §3.7/RFC 1122 §4.2.3.2 and bounded per this core's tunable
// tcp_rx_reassembly_max_bytes (§4.6 Open Question — see DESIGN.md).
type receiver struct {
	ep *Endpoint

	rcvNxt      seqnum.Value
	rcvWnd      seqnum.Size
	rcvWndScale uint8

	outOfOrder     []outOfOrderSegment
	outOfOrderSize int
	maxReassembly  int

	ackPending       bool
	pendingFullSized bool
	ackTimer         runtime.TimerHandle
}

func newReceiver(ep *Endpoint, irs seqnum.Value, rcvWnd seqnum.Size, wndScale uint8, maxReassembly int) *receiver {
	return &receiver{
		ep:            ep,
		rcvNxt:        irs + 1,
		rcvWnd:        rcvWnd,
		rcvWndScale:   wndScale,
		maxReassembly: maxReassembly,
	}
}

// getSendParams returns the (ack, window) pair the sender stamps on every
// outgoing segment.
func (r *receiver) getSendParams() (seqnum.Value, seqnum.Size) {
	return r.rcvNxt, r.rcvWnd
}

// handleSegment consumes a data-bearing segment: in-order bytes go
// straight to the endpoint's receive buffer, out-of-order bytes are held
// (bounded by maxReassembly) until the gap closes.
func (r *receiver) handleSegment(seg *segment) {
	if len(seg.data) == 0 && seg.flags&header.FlagFin == 0 {
		return
	}
	if seg.seq.LessThan(r.rcvNxt) {
		r.scheduleAck(true, false)
		return
	}
	if seg.seq != r.rcvNxt {
		r.storeOutOfOrder(seg.seq, seg.data)
		r.scheduleAck(true, false)
		return
	}

	r.deliver(seg.data)
	r.drainContiguous()

	if seg.flags&header.FlagFin != 0 {
		r.rcvNxt++
		r.ep.handlePeerFin()
		r.scheduleAck(true, false)
		return
	}
	r.scheduleAck(false, r.isFullSized(seg))
}

// isFullSized reports whether seg carried a full-sized (MSS) segment,
// per RFC 1122 §4.2.3.2's every-other-segment ACK rule.
func (r *receiver) isFullSized(seg *segment) bool {
	return r.ep.snd != nil && len(seg.data) >= r.ep.snd.maxPayload
}

func (r *receiver) deliver(data []byte) {
	if len(data) == 0 {
		return
	}
	r.ep.rcvBuf = append(r.ep.rcvBuf, data...)
	r.rcvNxt = r.rcvNxt.Add(seqnum.Size(len(data)))
	if int(r.rcvWnd) > len(data) {
		r.rcvWnd -= seqnum.Size(len(data))
	} else {
		r.rcvWnd = 0
	}
	r.ep.recvWaker.Wake()
}

func (r *receiver) storeOutOfOrder(seq seqnum.Value, data []byte) {
	if !seq.InWindow(r.rcvNxt, r.rcvWnd) {
		return
	}
	if r.outOfOrderSize+len(data) > r.maxReassembly {
		r.ep.owner.metrics.IncReassemblyOverflowTCP()
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	r.outOfOrder = append(r.outOfOrder, outOfOrderSegment{seq: seq, data: buf})
	r.outOfOrderSize += len(data)
}

func (r *receiver) drainContiguous() {
	for {
		progressed := false
		for i, seg := range r.outOfOrder {
			if seg.seq != r.rcvNxt {
				continue
			}
			r.outOfOrder = append(r.outOfOrder[:i], r.outOfOrder[i+1:]...)
			r.outOfOrderSize -= len(seg.data)
			r.deliver(seg.data)
			progressed = true
			break
		}
		if !progressed {
			return
		}
	}
}

// scheduleAck queues an ACK for transmission, sending it immediately if
// immediate is set (out-of-order, retransmitted, or FIN segments) and
// otherwise deferring it up to delayedAckTimeout so it can piggyback on
// an outgoing data segment. Per RFC 1122 §4.2.3.2, a second full-sized
// segment arriving while an ACK is already pending forces that ACK out
// immediately instead of folding both into one delayed ACK.
func (r *receiver) scheduleAck(immediate, fullSized bool) {
	if immediate {
		r.ackTimer.Cancel()
		r.ackPending = false
		r.pendingFullSized = false
		r.ep.sendAck()
		return
	}
	if r.ackPending {
		if fullSized && r.pendingFullSized {
			r.ackTimer.Cancel()
			r.ackPending = false
			r.pendingFullSized = false
			r.ep.sendAck()
		} else if fullSized {
			r.pendingFullSized = true
		}
		return
	}
	r.ackPending = true
	r.pendingFullSized = fullSized
	task := &delayedAckTask{rcv: r}
	r.ackTimer = r.ep.sched.Timers().After(time.Now().Add(delayedAckTimeout), task.Waker())
	r.ep.sched.Spawn(task)
}

// delayedAckTask flushes a withheld ACK once delayedAckTimeout elapses
// without a data segment to piggyback it on.
type delayedAckTask struct {
	waker runtime.Waker
	rcv   *receiver
}

func (t *delayedAckTask) Waker() *runtime.Waker { return &t.waker }

func (t *delayedAckTask) Poll(now runtime.Clock) runtime.Status {
	t.rcv.ackTimerFired()
	return runtime.StatusDone
}

func (r *receiver) ackTimerFired() {
	r.ackPending = false
	r.pendingFullSized = false
	r.ep.sendAck()
}
