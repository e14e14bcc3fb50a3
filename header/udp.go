package header

import (
	"encoding/binary"

	catnip "github.com/catnip-libos/catnip"
)

const (
	udpSrcPortOff  = 0
	udpDstPortOff  = 2
	udpLengthOff   = 4
	udpChecksumOff = 6
)

// UDPFields describes the fields of a UDP header for Encode.
type UDPFields struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// UDP is a UDP header (RFC 768) stored in a byte slice.
type UDP []byte

const (
	// UDPMinimumSize is the size of a UDP header.
	UDPMinimumSize = 8

	// UDPProtocolNumber is UDP's IP protocol number.
	UDPProtocolNumber catnip.TransportProtocolNumber = 17
)

// SourcePort returns the source port field.
func (b UDP) SourcePort() uint16 { return binary.BigEndian.Uint16(b[udpSrcPortOff:]) }

// DestinationPort returns the destination port field.
func (b UDP) DestinationPort() uint16 { return binary.BigEndian.Uint16(b[udpDstPortOff:]) }

// Length returns the length field (header + payload).
func (b UDP) Length() uint16 { return binary.BigEndian.Uint16(b[udpLengthOff:]) }

// Payload returns the datagram's payload.
func (b UDP) Payload() []byte { return b[UDPMinimumSize:] }

// Checksum returns the checksum field.
func (b UDP) Checksum() uint16 { return binary.BigEndian.Uint16(b[udpChecksumOff:]) }

// SetSourcePort sets the source port field.
func (b UDP) SetSourcePort(port uint16) { binary.BigEndian.PutUint16(b[udpSrcPortOff:], port) }

// SetDestinationPort sets the destination port field.
func (b UDP) SetDestinationPort(port uint16) {
	binary.BigEndian.PutUint16(b[udpDstPortOff:], port)
}

// SetChecksum sets the checksum field.
func (b UDP) SetChecksum(checksum uint16) {
	binary.BigEndian.PutUint16(b[udpChecksumOff:], checksum)
}

// CalculateChecksum folds totalLen and the header+payload into
// partialChecksum (the IPv4 pseudo-header checksum plus the already-summed
// payload). Callers invert the result for TX (SetChecksum(^result), mapping
// 0 to 0xffff per RFC 768 — see EncodeChecksum) and compare it to 0xffff
// for RX validation (the header's checksum field, as received, folds back
// to all-ones iff the datagram is intact).
func (b UDP) CalculateChecksum(partialChecksum uint16, totalLen uint16) uint16 {
	tmp := make([]byte, 2)
	binary.BigEndian.PutUint16(tmp, totalLen)
	checksum := Checksum(tmp, partialChecksum)
	return Checksum(b[:UDPMinimumSize], checksum)
}

// EncodeChecksum finishes a UDP checksum for TX: it inverts raw (the
// result of CalculateChecksum with the checksum field still zero) and maps
// the all-zero result to 0xffff, since a wire value of 0 means "no
// checksum" per RFC 768.
func EncodeChecksum(raw uint16) uint16 {
	c := ^raw
	if c == 0 {
		return 0xffff
	}
	return c
}

// IsChecksumValid reports whether b's checksum field (as received) is
// consistent with partialChecksum/totalLen, per RFC 768. A checksum field
// of 0 means the sender opted out of checksumming and is always valid.
func (b UDP) IsChecksumValid(partialChecksum uint16, totalLen uint16) bool {
	if b.Checksum() == 0 {
		return true
	}
	return b.CalculateChecksum(partialChecksum, totalLen) == 0xffff
}

// Encode writes u's fields into b.
func (b UDP) Encode(u *UDPFields) {
	binary.BigEndian.PutUint16(b[udpSrcPortOff:], u.SrcPort)
	binary.BigEndian.PutUint16(b[udpDstPortOff:], u.DstPort)
	binary.BigEndian.PutUint16(b[udpLengthOff:], u.Length)
	binary.BigEndian.PutUint16(b[udpChecksumOff:], u.Checksum)
}
