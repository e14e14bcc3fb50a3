package tcp

import (
	"testing"

	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/seqnum"
	"github.com/stretchr/testify/assert"
)

func TestSegmentLogicalLenCountsSynAndFin(t *testing.T) {
	data := seg(header.FlagSyn, []byte("abc"))
	assert.EqualValues(t, 4, data.logicalLen())

	fin := seg(header.FlagFin, nil)
	assert.EqualValues(t, 1, fin.logicalLen())

	plain := seg(header.FlagAck, []byte("abcd"))
	assert.EqualValues(t, 4, plain.logicalLen())
}

func seg(flags byte, data []byte) *segment {
	return &segment{flags: flags, data: data}
}

func newTestSender(cwnd, ssthresh int) *sender {
	s := &sender{cwnd: cwnd, ssthresh: ssthresh}
	s.cc = newRenoCC(s)
	return s
}

func TestRenoSlowStartGrowsCwndOnePerAck(t *testing.T) {
	s := newTestSender(1, 10)
	s.cc.Update(1)
	assert.Equal(t, 2, s.cwnd)
	s.cc.Update(1)
	assert.Equal(t, 3, s.cwnd)
}

func TestRenoSlowStartClampsAtSsthreshAndEntersAvoidance(t *testing.T) {
	s := newTestSender(9, 10)
	s.cc.Update(5)
	assert.Equal(t, 10, s.cwnd)
}

func TestRenoHandleRTOExpiredResetsToOneSegment(t *testing.T) {
	s := newTestSender(20, 40)
	s.outstanding = 20
	s.cc.HandleRTOExpired()
	assert.Equal(t, 1, s.cwnd)
	assert.Equal(t, 10, s.ssthresh)
}

func TestRenoHandleNDupAcksHalvesFlightWithFloor(t *testing.T) {
	s := newTestSender(4, 3)
	s.outstanding = 4
	s.cc.HandleNDupAcks()
	assert.Equal(t, 2, s.ssthresh)

	s2 := newTestSender(4, 2)
	s2.outstanding = 2
	s2.cc.HandleNDupAcks()
	assert.Equal(t, 2, s2.ssthresh)
}

func TestRenoCongestionAvoidanceGrowsOncePerWindow(t *testing.T) {
	s := newTestSender(10, 10)
	s.cc.Update(9)
	assert.Equal(t, 10, s.cwnd)
	s.cc.Update(1)
	assert.Equal(t, 11, s.cwnd)
}

func TestScheduleAckForcesImmediateOnSecondFullSizedSegment(t *testing.T) {
	ep := &Endpoint{sched: runtime.NewScheduler(runtime.SystemClock{})}
	ep.snd = &sender{maxPayload: 4}
	rcv := newReceiver(ep, 0, 65535, 0, 1024)

	rcv.scheduleAck(false, true)
	assert.True(t, rcv.ackPending)
	assert.True(t, rcv.pendingFullSized)

	rcv.scheduleAck(false, true)
	assert.False(t, rcv.ackPending)
	assert.False(t, rcv.pendingFullSized)
}

func TestScheduleAckStaysPendingOnSecondSmallSegment(t *testing.T) {
	ep := &Endpoint{sched: runtime.NewScheduler(runtime.SystemClock{})}
	ep.snd = &sender{maxPayload: 4}
	rcv := newReceiver(ep, 0, 65535, 0, 1024)

	rcv.scheduleAck(false, true)
	rcv.scheduleAck(false, false)
	assert.True(t, rcv.ackPending)
}

func TestOutOfOrderSegmentInWindowCheck(t *testing.T) {
	rcvNxt := seqnum.Value(100)
	wnd := seqnum.Size(50)
	assert.True(t, seqnum.Value(120).InWindow(rcvNxt, wnd))
	assert.False(t, seqnum.Value(99).InWindow(rcvNxt, wnd))
}
