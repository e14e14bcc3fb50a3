package tcp

import (
	"math"
	"time"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/seqnum"
)

// minRTO and nDupAckThreshold mirror the teacher's transport/tcp/snd.go
// constants (RFC 6298 floor, RFC 5681 fast-retransmit trigger).
const (
	minRTO           = 200 * time.Millisecond
	maxRTO           = 60 * time.Second
	initialCwnd      = 10
	nDupAckThreshold = 3
)

// congestionControl mirrors the teacher's congestionControl interface.
type congestionControl interface {
	HandleNDupAcks()
	HandleRTOExpired()
	Update(packetsAcked int)
	PostRecovery()
}

// fastRecoveryState mirrors the teacher's fastRecovery struct.
type fastRecoveryState struct {
	active  bool
	first   seqnum.Value
	last    seqnum.Value
	maxCwnd int
}

// sender is the retransmission/congestion-control half of one TCP flow,
// grounded on the teacher's transport/tcp/snd.go. Unlike the teacher's
// writeList of segment objects (split/merged as the window and MTU
// change), the unsent/unacked bytes here live in one contiguous slice
// (Endpoint.sndBuf) — cwnd/ssthresh/outstanding still count in MSS-sized
// segments, as the teacher does, since RFC 5681 reasons about packets.
type sender struct {
	ep *Endpoint

	sndUna seqnum.Value
	sndNxt seqnum.Value
	sndWnd seqnum.Size

	sndWndScale uint8

	cwnd        int
	ssthresh    int
	caAckCount  int
	outstanding int
	dupAckCount int
	fr          fastRecoveryState

	maxPayload int

	srtt       time.Duration
	rttvar     time.Duration
	srttInited bool
	rto        time.Duration

	rttMeasureSeq  seqnum.Value
	rttMeasureTime time.Time
	lastSendTime   time.Time

	cc congestionControl

	rtoMin, rtoMax time.Duration

	retransmitTimer runtime.TimerHandle
}

func newSender(ep *Endpoint, iss seqnum.Value, sndWnd seqnum.Size, mss uint16, wndScale int) *sender {
	rtoMin, rtoMax := minRTO, maxRTO
	if ep.owner != nil {
		if v := ep.owner.cfg.TCPRTOMin(); v > 0 {
			rtoMin = v
		}
		if v := ep.owner.cfg.TCPRTOMax(); v > 0 {
			rtoMax = v
		}
	}
	s := &sender{
		ep:           ep,
		sndUna:       iss + 1,
		sndNxt:       iss + 1,
		sndWnd:       sndWnd,
		cwnd:         initialCwnd,
		ssthresh:     math.MaxInt32,
		maxPayload:   int(mss),
		rto:          time.Second,
		rtoMin:       rtoMin,
		rtoMax:       rtoMax,
		lastSendTime: time.Now(),
	}
	if wndScale > 0 {
		s.sndWndScale = uint8(wndScale)
	}
	s.cc = newRenoCC(s)
	return s
}

// updateRTO folds a fresh RTT sample into the smoothed estimate, per
// RFC 6298, matching the teacher's sender.updateRTO.
func (s *sender) updateRTO(sample time.Duration) {
	if !s.srttInited {
		s.srtt = sample
		s.rttvar = sample / 2
		s.srttInited = true
	} else {
		diff := s.srtt - sample
		if diff < 0 {
			diff = -diff
		}
		s.rttvar = (3*s.rttvar + diff) / 4
		s.srtt = (7*s.srtt + sample) / 8
	}
	s.rto = s.srtt + 4*s.rttvar
	if s.rto < s.rtoMin {
		s.rto = s.rtoMin
	}
}

// unsentLen returns how many buffered bytes past sndNxt remain to send.
func (s *sender) unsentLen() int {
	sent := int(s.sndNxt - s.sndUna)
	total := len(s.ep.sndBuf)
	if sent >= total {
		return 0
	}
	return total - sent
}

// sendData transmits as many MSS-sized segments as the congestion and
// receive windows allow, mirroring the teacher's sender.sendData.
func (s *sender) sendData() {
	end := s.sndUna.Add(s.sndWnd)
	for s.outstanding < s.cwnd {
		sent := int(s.sndNxt - s.sndUna)
		total := len(s.ep.sndBuf)
		finPending := s.ep.sendClosed && sent == total

		if sent >= total && !finPending {
			break
		}
		if !s.sndNxt.LessThan(end) && !finPending {
			break
		}

		if finPending {
			s.transmitSegment(nil, header.FlagAck|header.FlagFin, s.sndNxt)
			s.sndNxt++
			s.outstanding++
			break
		}

		available := int(seqnum.Value(sent).Size(end - s.sndUna))
		if available > s.maxPayload {
			available = s.maxPayload
		}
		if available > total-sent {
			available = total - sent
		}
		if available <= 0 {
			break
		}
		chunk := s.ep.sndBuf[sent : sent+available]
		s.transmitSegment(chunk, header.FlagAck|header.FlagPsh, s.sndNxt)
		s.sndNxt = s.sndNxt.Add(seqnum.Size(len(chunk)))
		s.outstanding++
	}

	if s.sndUna != s.sndNxt {
		s.armRetransmitTimer()
	}
}

func (s *sender) armRetransmitTimer() {
	s.retransmitTimer.Cancel()
	task := &retransmitTask{snd: s}
	s.retransmitTimer = s.ep.sched.Timers().After(time.Now().Add(s.rto), task.Waker())
	s.ep.sched.Spawn(task)
}

// retransmitTask fires retransmitTimerExpired once the RTO deadline
// passes, mirroring the one-shot-task-per-attempt pattern used by
// arp.Resolver's retryTask and this package's synRetryTask.
type retransmitTask struct {
	waker runtime.Waker
	snd   *sender
}

func (t *retransmitTask) Waker() *runtime.Waker { return &t.waker }

func (t *retransmitTask) Poll(now runtime.Clock) runtime.Status {
	t.snd.retransmitTimerExpired()
	return runtime.StatusDone
}

// transmitSegment hands seq/flags/data to the endpoint's wire encoder.
func (s *sender) transmitSegment(data []byte, flags byte, seq seqnum.Value) {
	now := time.Now()
	s.lastSendTime = now
	if seq == s.rttMeasureSeq {
		s.rttMeasureTime = now
	}
	s.ep.transmitSegment(data, flags, seq)
}

// retransmitTimerExpired is invoked when the retransmit waker fires,
// mirroring the teacher's sender.retransmitTimerExpired.
func (s *sender) retransmitTimerExpired() {
	if s.rto >= s.rtoMax {
		s.ep.abort(catnip.ErrTimeout)
		return
	}
	s.rto *= 2
	s.cc.HandleRTOExpired()
	s.outstanding = 0
	s.sndNxt = s.sndUna
	s.sendData()
}

// handleAck updates send-side state on an inbound ACK, mirroring the
// teacher's sender.handleRcvdSegment (receive-side reassembly lives in
// receiver.go instead).
func (s *sender) handleAck(seg *segment) {
	if s.rttMeasureSeq.LessThan(seg.ack) {
		s.updateRTO(time.Now().Sub(s.rttMeasureTime))
		s.rttMeasureSeq = s.sndNxt
	}

	rtx := s.checkDuplicateAck(seg)
	s.sndWnd = seg.window

	ack := seg.ack
	if (ack - 1).InRange(s.sndUna, s.sndNxt) {
		s.retransmitTimer.Cancel()

		acked := s.sndUna.Size(ack)
		s.sndUna = ack
		if int(acked) >= len(s.ep.sndBuf) {
			s.ep.sndBuf = s.ep.sndBuf[:0]
		} else {
			s.ep.sndBuf = s.ep.sndBuf[acked:]
		}
		ackedSegments := s.outstanding
		s.outstanding -= segmentsCovering(acked, s.maxPayload)
		if s.outstanding < 0 {
			s.outstanding = 0
		}
		if !s.fr.active {
			s.cc.Update(ackedSegments - s.outstanding)
		}
		s.ep.sendWaker.Wake()
	}

	if rtx {
		s.outstanding = 0
		s.sndNxt = s.sndUna
	}

	s.sendData()
}

func segmentsCovering(n seqnum.Size, mss int) int {
	if mss <= 0 {
		mss = 1
	}
	segs := int(n) / mss
	if int(n)%mss != 0 {
		segs++
	}
	if segs == 0 && n > 0 {
		segs = 1
	}
	return segs
}

// checkDuplicateAck mirrors the teacher's sender.checkDuplicateAck.
func (s *sender) checkDuplicateAck(seg *segment) (rtx bool) {
	if seg.ack != s.sndUna || seg.logicalLen() != 0 || s.sndWnd != seg.window || seg.ack == s.sndNxt {
		s.dupAckCount = 0
		return false
	}
	s.dupAckCount++
	if s.dupAckCount < nDupAckThreshold {
		return false
	}
	s.cc.HandleNDupAcks()
	s.enterFastRecovery()
	s.dupAckCount = 0
	return true
}

func (s *sender) enterFastRecovery() {
	s.fr.active = true
	s.cwnd = s.ssthresh + 3
	s.fr.first = s.sndUna
	s.fr.last = s.sndNxt - 1
	s.fr.maxCwnd = s.cwnd + s.outstanding
}

func (s *sender) leaveFastRecovery() {
	s.fr.active = false
	s.fr.first = 0
	s.fr.last = s.sndNxt - 1
	s.fr.maxCwnd = 0
	s.dupAckCount = 0
	s.cwnd = s.ssthresh
	s.cc.PostRecovery()
}
