// Package header implements parse/serialize codecs for the wire formats
// this core speaks: Ethernet II, ARP, IPv4, ICMPv4, UDP and TCP (spec §4.3,
// C4). Every type here is a pure []byte view with accessor methods — no
// codec allocates.
package header

import catnip "github.com/catnip-libos/catnip"

// Checksum computes the Internet checksum (RFC 1071) of buf, seeded with
// initial (so partial checksums, e.g. of a pseudo-header, can be folded in).
func Checksum(buf []byte, initial uint16) uint16 {
	v := uint32(initial)

	l := len(buf)
	if l&1 != 0 {
		l--
		v += uint32(buf[l]) << 8
	}

	for i := 0; i < l; i += 2 {
		v += (uint32(buf[i]) << 8) + uint32(buf[i+1])
	}

	return ChecksumCombine(uint16(v), uint16(v>>16))
}

// ChecksumCombine folds a and b (and any resulting carry) into one checksum.
func ChecksumCombine(a, b uint16) uint16 {
	v := uint32(a) + uint32(b)
	return uint16(v + v>>16)
}

// PseudoHeaderChecksum computes the IPv4 pseudo-header checksum UDP and TCP
// fold into their own checksum (RFC 793 §3.1, RFC 768), excluding the
// length field (callers add that separately since it isn't known until the
// payload is final).
func PseudoHeaderChecksum(protocol catnip.TransportProtocolNumber, srcAddr, dstAddr catnip.Address) uint16 {
	xsum := Checksum([]byte(srcAddr), 0)
	xsum = Checksum([]byte(dstAddr), xsum)
	return Checksum([]byte{0, uint8(protocol)}, xsum)
}
