// Package tcp implements component C8, the TCP state machine: endpoint
// (§3 states), sender (congestion control, retransmission), receiver
// (reassembly, delayed ACK), NewReno, and the listener's bounded
// half-open backlog admission (no SYN cookies). Grounded on the teacher's transport/tcp/*.go: most of
// that package is skeletal (endpoint.go, connect.go, rcv.go are one-line
// stubs), but snd.go, reno.go, and accept.go are complete real
// implementations this package ports onto a cooperative-task model
// instead of the teacher's per-connection goroutine.
package tcp

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/ipv4"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/seqnum"
	"go.uber.org/zap"
)

// State is one of RFC 793's connection states, named per §4.7's close
// sequence (SynReceived/SynSent/Established/FinWait1/FinWait2/CloseWait/
// LastAck/Closing/TimeWait/Closed/Listen), extending the teacher's
// stateInitial/Bound/Listen/Connecting/Connected/Closed/Error enum with
// the individual close sub-states it collapsed into one "Connecting".
type State int

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateListen:
		return "Listen"
	case StateSynSent:
		return "SynSent"
	case StateSynReceived:
		return "SynReceived"
	case StateEstablished:
		return "Established"
	case StateFinWait1:
		return "FinWait1"
	case StateFinWait2:
		return "FinWait2"
	case StateCloseWait:
		return "CloseWait"
	case StateClosing:
		return "Closing"
	case StateLastAck:
		return "LastAck"
	case StateTimeWait:
		return "TimeWait"
	default:
		return "?"
	}
}

// msl is the maximum segment lifetime; TimeWait holds the tuple for 2*msl
// per §4.7.
const msl = 30 * time.Second

// synRetryBackoff is the active-open SYN retransmit schedule (1s, 2s,
// 4s, 8s, then 16s for every later attempt); the number of retries is
// capped by Endpoint.maxSynRetries, per §4.7.
var synRetryBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}

// Endpoint is one TCP flow: connecting, established, or winding down.
// Grounded on the teacher's transport/tcp/endpoint.go for the field
// categories (mutex-protected id/state/route) and snd.go/rcv.go for the
// sender/receiver halves, rebuilt around runtime.Task instead of a
// blocking per-connection goroutine.
type Endpoint struct {
	owner *Stack
	sched *runtime.Scheduler
	ipv4  *ipv4.Endpoint
	log   *zap.Logger

	id    catnip.FourTuple
	state State

	iss seqnum.Value
	irs seqnum.Value

	snd *sender
	rcv *receiver

	sndBuf     []byte
	sendClosed bool
	rcvBuf     []byte

	mss         uint16
	wndScale    uint8
	maxReassembly int

	sendWaker    runtime.Waker
	recvWaker    runtime.Waker
	stateWaker   runtime.Waker

	synRetries    int
	maxSynRetries int
	synTimer      runtime.TimerHandle

	timeWaitTimer runtime.TimerHandle

	lastErr    error
	acceptInto *Listener // set while a half-open flow belongs to a listener's backlog
}

func newEndpoint(owner *Stack, id catnip.FourTuple, maxReassembly int) *Endpoint {
	return &Endpoint{
		owner:         owner,
		sched:         owner.sched,
		ipv4:          owner.ipv4,
		log:           owner.log,
		id:            id,
		maxReassembly: maxReassembly,
		mss:           owner.defaultMSS,
		maxSynRetries: owner.cfg.TCPSynRetries,
	}
}

// SendWaker, RecvWaker, and StateWaker expose the wakers that fire on
// send-buffer drain, receive-buffer arrival, and any state transition,
// respectively — the ioqueue layer's push/pop/wait_any tasks use these as
// their own Task.Waker, the same way udp.Endpoint exposes RecvWaker.
func (e *Endpoint) SendWaker() *runtime.Waker  { return &e.sendWaker }
func (e *Endpoint) RecvWaker() *runtime.Waker  { return &e.recvWaker }
func (e *Endpoint) StateWaker() *runtime.Waker { return &e.stateWaker }

// State returns the endpoint's current RFC 793 state.
func (e *Endpoint) State() State { return e.state }

// ID returns the flow's four-tuple, for getsockname/getpeername-style
// queries from the ioqueue layer.
func (e *Endpoint) ID() catnip.FourTuple { return e.id }

// LastError returns the error recorded by the most recent abort, if any.
func (e *Endpoint) LastError() error { return e.lastErr }

func randomISS() seqnum.Value {
	var b [4]byte
	rand.Read(b[:])
	return seqnum.Value(binary.BigEndian.Uint32(b[:]))
}

// Connect performs an active open: send SYN, transition to SynSent, and
// retry on timeout per the §4.7 backoff schedule.
func (e *Endpoint) Connect() {
	e.iss = randomISS()
	e.state = StateSynSent
	e.transmitControl(header.FlagSyn)
	e.armSynRetry()
}

func (e *Endpoint) armSynRetry() {
	idx := e.synRetries
	if idx >= len(synRetryBackoff) {
		idx = len(synRetryBackoff) - 1
	}
	task := &synRetryTask{ep: e}
	e.synTimer = e.sched.Timers().After(time.Now().Add(synRetryBackoff[idx]), task.Waker())
	e.sched.Spawn(task)
}

// synRetryTask re-sends the SYN (or SYN-ACK) once its backoff deadline
// fires, grounded on arp.Resolver's retryTask — a fresh one-shot task is
// spawned for every attempt rather than one long-lived polling task.
type synRetryTask struct {
	waker runtime.Waker
	ep    *Endpoint
}

func (t *synRetryTask) Waker() *runtime.Waker { return &t.waker }

func (t *synRetryTask) Poll(now runtime.Clock) runtime.Status {
	t.ep.synRetryFired()
	return runtime.StatusDone
}

func (e *Endpoint) synRetryFired() {
	if e.state != StateSynSent && e.state != StateSynReceived {
		return
	}
	e.synRetries++
	if e.synRetries > e.maxSynRetries {
		e.abort(catnip.ErrTimeout)
		return
	}
	if e.state == StateSynSent {
		e.transmitControl(header.FlagSyn)
	} else {
		e.transmitControl(header.FlagSyn|header.FlagAck)
	}
	e.armSynRetry()
}

// Push appends data to the send buffer and wakes the sender, per §4.7's
// push-completion contract: this call itself is the completion, since the
// qtoken layer (ioqueue) only waits for bytes to enter the buffer.
func (e *Endpoint) Push(data []byte) (int, error) {
	if e.state != StateEstablished && e.state != StateCloseWait {
		return 0, catnip.ErrBadState
	}
	e.sndBuf = append(e.sndBuf, data...)
	if e.snd != nil {
		e.snd.sendData()
	}
	return len(data), nil
}

// Pop removes up to max bytes from the receive buffer. ok is false if
// nothing is queued and the peer hasn't closed; err is catnip.ErrEof once
// the peer's FIN has been consumed and the buffer is drained, or the error
// that aborted the flow (e.g. catnip.ErrConnectionReset) if it was aborted.
func (e *Endpoint) Pop(max int) (data []byte, ok bool, err error) {
	if len(e.rcvBuf) == 0 {
		if e.state == StateClosed && e.lastErr != nil {
			return nil, false, e.lastErr
		}
		if e.state == StateCloseWait || e.state == StateClosing || e.state == StateLastAck || e.state == StateTimeWait || e.state == StateClosed {
			return nil, false, catnip.ErrEof
		}
		return nil, false, nil
	}
	if max <= 0 || max > len(e.rcvBuf) {
		max = len(e.rcvBuf)
	}
	out := e.rcvBuf[:max]
	e.rcvBuf = e.rcvBuf[max:]
	return out, true, nil
}

// Close performs an active close: send FIN and move toward Closed per the
// §4.7 close sequence.
func (e *Endpoint) Close() {
	switch e.state {
	case StateEstablished:
		e.sendClosed = true
		e.state = StateFinWait1
		if e.snd != nil {
			e.snd.sendData()
		}
	case StateCloseWait:
		e.sendClosed = true
		e.state = StateLastAck
		if e.snd != nil {
			e.snd.sendData()
		}
	case StateSynSent, StateSynReceived:
		e.abort(catnip.ErrCancelled)
	default:
	}
}

// Abort sends RST and moves to Closed immediately, per §4.7's user-abort
// policy.
func (e *Endpoint) Abort() {
	e.transmitControl(header.FlagRst)
	e.abort(catnip.ErrCancelled)
}

func (e *Endpoint) abort(err error) {
	e.lastErr = err
	e.state = StateClosed
	e.sendWaker.Wake()
	e.recvWaker.Wake()
	e.stateWaker.Wake()
	if e.owner != nil {
		e.owner.remove(e.id)
	}
}

// handlePeerFin is called by the receiver when it consumes the peer's FIN.
func (e *Endpoint) handlePeerFin() {
	switch e.state {
	case StateEstablished:
		e.state = StateCloseWait
	case StateFinWait1:
		e.state = StateClosing
	case StateFinWait2:
		e.enterTimeWait()
	}
	e.stateWaker.Wake()
}

func (e *Endpoint) enterTimeWait() {
	e.state = StateTimeWait
	task := &timeWaitTask{ep: e}
	e.timeWaitTimer = e.sched.Timers().After(time.Now().Add(2*msl), task.Waker())
	e.sched.Spawn(task)
}

// timeWaitTask retires a flow's tuple once it has sat in TimeWait for 2*msl.
type timeWaitTask struct {
	waker runtime.Waker
	ep    *Endpoint
}

func (t *timeWaitTask) Waker() *runtime.Waker { return &t.waker }

func (t *timeWaitTask) Poll(now runtime.Clock) runtime.Status {
	if t.ep.state == StateTimeWait {
		t.ep.abort(nil)
	}
	return runtime.StatusDone
}

// handleAckOfFin advances the close sequence once our own FIN is acked.
func (e *Endpoint) handleAckOfFin() {
	switch e.state {
	case StateFinWait1:
		e.state = StateFinWait2
	case StateClosing:
		e.enterTimeWait()
	case StateLastAck:
		e.abort(nil)
	}
}

// handleSegment dispatches an inbound segment by current state, mirroring
// the RFC 793 state-machine table §4.7 describes in prose.
func (e *Endpoint) handleSegment(seg *segment) {
	if seg.flags&header.FlagRst != 0 {
		e.abort(catnip.ErrConnectionReset)
		return
	}

	switch e.state {
	case StateSynSent:
		if seg.flags&header.FlagSyn != 0 {
			e.irs = seg.seq
			e.synTimer.Cancel()
			opts := seg.options
			e.installNegotiatedOptions(opts)
			e.snd = newSender(e, e.iss, seg.window, e.negotiatedMSS(opts), opts.WindowScale)
			e.rcv = newReceiver(e, e.irs, seqnum.Size(65535), 0, e.maxReassembly)
			if seg.flags&header.FlagAck != 0 {
				e.state = StateEstablished
				e.snd.sndUna = seg.ack
				e.transmitControl(header.FlagAck)
				e.stateWaker.Wake()
			} else {
				e.state = StateSynReceived
				e.transmitControl(header.FlagSyn|header.FlagAck)
			}
		}
		return
	case StateSynReceived:
		if seg.flags&header.FlagAck != 0 && seg.ack == e.snd.sndNxt {
			e.synTimer.Cancel()
			e.state = StateEstablished
			e.stateWaker.Wake()
			if e.acceptInto != nil {
				e.acceptInto.complete(e)
				e.acceptInto = nil
			}
		}
		return
	}

	if seg.flags&header.FlagAck != 0 && e.snd != nil {
		wasFinWait1 := e.state == StateFinWait1 || e.state == StateClosing || e.state == StateLastAck
		// sendData advances sndNxt past the FIN once it is sent, so the FIN
		// is in flight when sndNxt runs past the buffered bytes, and an ACK
		// of sndNxt covers it.
		finSent := int(e.snd.sndNxt-e.snd.sndUna) > len(e.sndBuf)
		finAcked := wasFinWait1 && finSent && seg.ack == e.snd.sndNxt
		e.snd.handleAck(seg)
		if finAcked {
			e.handleAckOfFin()
		}
	}
	if e.rcv != nil {
		e.rcv.handleSegment(seg)
	}
}

func (e *Endpoint) installNegotiatedOptions(opts header.TCPSynOptions) {
	if opts.WindowScale >= 0 {
		e.wndScale = uint8(opts.WindowScale)
	}
}

func (e *Endpoint) negotiatedMSS(opts header.TCPSynOptions) uint16 {
	if opts.MSS > 0 && opts.MSS < e.mss {
		return opts.MSS
	}
	return e.mss
}

// sendAck transmits a pure ACK, used by the receiver for immediate and
// delayed-ACK generation.
func (e *Endpoint) sendAck() {
	if e.snd == nil || e.rcv == nil {
		return
	}
	e.transmitControl(header.FlagAck)
}

// transmitControl sends a header-only segment. The ack/window it carries
// always come from the receiver half's current rcvNxt/rcvWnd (or the zero
// value before one exists, e.g. the initial SYN). The sequence number is
// e.iss for any segment carrying SYN — the SYN's own sequence number never
// moves, across either the initial send or a synRetryFired retransmission
// — and e.snd.sndNxt otherwise, since newSender pre-advances sndNxt past
// the SYN it was constructed from.
func (e *Endpoint) transmitControl(flags byte) {
	seq := e.iss
	if flags&header.FlagSyn == 0 && e.snd != nil {
		seq = e.snd.sndNxt
	}
	e.transmitSegment(nil, flags, seq)
}

// transmitSegment encodes and sends one TCP segment, stamping the current
// ack/window from the receiver half (if any).
func (e *Endpoint) transmitSegment(data []byte, flags byte, seq seqnum.Value) {
	var ack seqnum.Value
	var wnd seqnum.Size = 65535
	if e.rcv != nil {
		ack, wnd = e.rcv.getSendParams()
	}

	headroom := header.EthernetMinimumSize + header.IPv4MinimumSize + header.TCPMaximumHeaderSize
	pkt, err := e.owner.pool.Alloc()
	if err != nil {
		return
	}
	if err := pkt.AdjustHead(headroom); err != nil {
		pkt.Release()
		return
	}
	if err := pkt.TrimTail(pkt.Size() - len(data)); err != nil {
		pkt.Release()
		return
	}
	copy(pkt.Bytes(), data)

	optBuf := make([]byte, 0, 16)
	if flags&header.FlagSyn != 0 {
		tmp := make([]byte, 4)
		header.EncodeMSSOption(e.mss, tmp)
		optBuf = append(optBuf, tmp...)
	}
	optLen := header.PadOptions(len(optBuf))
	for len(optBuf) < optLen {
		optBuf = append(optBuf, header.TCPOptionKindNOP)
	}
	hdrLen := header.TCPMinimumSize + optLen

	if err := pkt.AdjustHead(-hdrLen); err != nil {
		pkt.Release()
		return
	}
	// CalculateChecksum folds the checksum over its whole receiver, so the
	// header view must span header+options+payload, not just the header.
	full := header.TCP(pkt.Bytes())
	copy(full[header.TCPMinimumSize:], optBuf)
	full.Encode(&header.TCPFields{
		SrcPort:    uint16(e.id.LocalPort),
		DstPort:    uint16(e.id.RemotePort),
		SeqNum:     uint32(seq),
		AckNum:     uint32(ack),
		DataOffset: uint8(hdrLen),
		Flags:      flags,
		WindowSize: uint16(wnd),
	})
	xsum := header.PseudoHeaderChecksum(header.TCPProtocolNumber, e.id.LocalAddr, e.id.RemoteAddr)
	full.SetChecksum(^full.CalculateChecksum(xsum))

	ok, err := e.ipv4.Send(e.id.RemoteAddr, header.TCPProtocolNumber, pkt, nil)
	if err != nil || !ok {
		e.log.Debug("tcp segment not sent", zap.Error(err))
		pkt.Release()
	}
}
