package tcp

// renoState implements congestionControl with NewReno (RFC 5681/6582),
// ported from the teacher's transport/tcp/reno.go field-for-field onto
// this package's sender type.
type renoState struct {
	s *sender
}

func newRenoCC(s *sender) *renoState {
	return &renoState{s: s}
}

// updateSlowStart grows cwnd by one segment per ACK until ssthresh, then
// hands any leftover acked-segment credit to congestion avoidance.
func (r *renoState) updateSlowStart(packetsAcked int) int {
	newCwnd := r.s.cwnd + packetsAcked
	if newCwnd >= r.s.ssthresh {
		newCwnd = r.s.ssthresh
		r.s.caAckCount = 0
	}
	packetsAcked -= newCwnd - r.s.cwnd
	r.s.cwnd = newCwnd
	if packetsAcked < 0 {
		packetsAcked = 0
	}
	return packetsAcked
}

// updateCongestionAvoidance grows cwnd by one segment per RTT (RFC 5681
// §3.1): cwnd += 1 once caAckCount accumulates cwnd segments' worth of ACKs.
func (r *renoState) updateCongestionAvoidance(packetsAcked int) {
	r.s.caAckCount += packetsAcked
	if r.s.caAckCount >= r.s.cwnd {
		r.s.cwnd += r.s.caAckCount / r.s.cwnd
		r.s.caAckCount = r.s.caAckCount % r.s.cwnd
	}
}

// reduceSlowStartThreshold sets ssthresh from the current flight
// (outstanding segments), not from halving ssthresh itself, per RFC 5681
// §3.1's max(FlightSize/2, 2*SMSS) — floored at 2 segments in this
// package's segment-counting units, matching the pack's
// blastbao-netstack/tcpip/transport/tcp/reno.go.
func (r *renoState) reduceSlowStartThreshold() {
	r.s.ssthresh = r.s.outstanding / 2
	if r.s.ssthresh < 2 {
		r.s.ssthresh = 2
	}
}

func (r *renoState) HandleNDupAcks() {
	r.reduceSlowStartThreshold()
}

func (r *renoState) HandleRTOExpired() {
	r.reduceSlowStartThreshold()
	r.s.cwnd = 1
}

func (r *renoState) Update(packetsAcked int) {
	if r.s.cwnd < r.s.ssthresh {
		packetsAcked = r.updateSlowStart(packetsAcked)
		if packetsAcked == 0 {
			return
		}
	}
	r.updateCongestionAvoidance(packetsAcked)
}

func (r *renoState) PostRecovery() {}
