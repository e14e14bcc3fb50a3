// Package metrics counts the per-segment recoverable errors spec §7
// designates "dropped and counted, never surfaced" — checksum failures,
// stray segments, fragments, and similar RX-side noise a healthy flow
// generates routinely and must never turn into an application-visible
// error. Nothing here is a library in its own right: the teacher
// (impact-eintr-netstack) and the rest of the retrieved pack have no
// counter library in their require graphs (gvisor's pkg/metric pulls in
// protobuf and an eventchannel sink this core has no use for), so these
// are plain atomic counters, read back by a host embedding this module
// through Snapshot — see DESIGN.md.
package metrics

import "sync/atomic"

// Counters is the fixed set of drop/recovery counters a Stack maintains.
// Every field is updated with sync/atomic, since a counter can be bumped
// from the poll thread (per-segment drops) and read concurrently by a
// host's monitoring goroutine.
type Counters struct {
	ChecksumErrorsIPv4 uint64
	ChecksumErrorsTCP  uint64
	ChecksumErrorsUDP  uint64

	FragmentsDropped uint64

	StraySegmentsTCP uint64
	StrayDatagramsUDP uint64

	ReassemblyOverflowTCP uint64

	ARPRequestsTimedOut uint64
}

// IncChecksumErrorIPv4 bumps the IPv4 header checksum failure counter.
func (c *Counters) IncChecksumErrorIPv4() { atomic.AddUint64(&c.ChecksumErrorsIPv4, 1) }

// IncChecksumErrorTCP bumps the TCP segment checksum failure counter.
func (c *Counters) IncChecksumErrorTCP() { atomic.AddUint64(&c.ChecksumErrorsTCP, 1) }

// IncChecksumErrorUDP bumps the UDP datagram checksum failure counter.
func (c *Counters) IncChecksumErrorUDP() { atomic.AddUint64(&c.ChecksumErrorsUDP, 1) }

// IncFragmentDropped bumps the IPv4-fragment-rejected-on-RX counter.
func (c *Counters) IncFragmentDropped() { atomic.AddUint64(&c.FragmentsDropped, 1) }

// IncStraySegmentTCP bumps the counter for a TCP segment matching no flow
// or listener.
func (c *Counters) IncStraySegmentTCP() { atomic.AddUint64(&c.StraySegmentsTCP, 1) }

// IncStrayDatagramUDP bumps the counter for a UDP datagram matching no
// bound endpoint.
func (c *Counters) IncStrayDatagramUDP() { atomic.AddUint64(&c.StrayDatagramsUDP, 1) }

// IncReassemblyOverflowTCP bumps the counter for an out-of-order TCP
// segment dropped because the reassembly buffer is full.
func (c *Counters) IncReassemblyOverflowTCP() { atomic.AddUint64(&c.ReassemblyOverflowTCP, 1) }

// IncARPRequestTimedOut bumps the counter for an ARP resolution that
// exhausted its retries.
func (c *Counters) IncARPRequestTimedOut() { atomic.AddUint64(&c.ARPRequestsTimedOut, 1) }

// Snapshot is a point-in-time copy of Counters, safe to log or export
// without racing further increments.
type Snapshot struct {
	ChecksumErrorsIPv4    uint64
	ChecksumErrorsTCP     uint64
	ChecksumErrorsUDP     uint64
	FragmentsDropped      uint64
	StraySegmentsTCP      uint64
	StrayDatagramsUDP     uint64
	ReassemblyOverflowTCP uint64
	ARPRequestsTimedOut   uint64
}

// Snapshot reads every counter atomically and returns their current
// values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		ChecksumErrorsIPv4:    atomic.LoadUint64(&c.ChecksumErrorsIPv4),
		ChecksumErrorsTCP:     atomic.LoadUint64(&c.ChecksumErrorsTCP),
		ChecksumErrorsUDP:     atomic.LoadUint64(&c.ChecksumErrorsUDP),
		FragmentsDropped:      atomic.LoadUint64(&c.FragmentsDropped),
		StraySegmentsTCP:      atomic.LoadUint64(&c.StraySegmentsTCP),
		StrayDatagramsUDP:     atomic.LoadUint64(&c.StrayDatagramsUDP),
		ReassemblyOverflowTCP: atomic.LoadUint64(&c.ReassemblyOverflowTCP),
		ARPRequestsTimedOut:   atomic.LoadUint64(&c.ARPRequestsTimedOut),
	}
}
