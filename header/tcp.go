package header

import (
	"encoding/binary"

	catnip "github.com/catnip-libos/catnip"
)

// TCP header byte offsets.
const (
	tcpSrcPortOff  = 0
	tcpDstPortOff  = 2
	tcpSeqNumOff   = 4
	tcpAckNumOff   = 8
	tcpDataOffOff  = 12
	tcpFlagsOff    = 13
	tcpWinSizeOff  = 14
	tcpChecksumOff = 16
	tcpUrgentOff   = 18
)

// TCP flag bits.
const (
	FlagFin = 1 << iota
	FlagSyn
	FlagRst
	FlagPsh
	FlagAck
	FlagUrg
)

// TCPFields describes the fields of a TCP header for Encode.
type TCPFields struct {
	SrcPort       uint16
	DstPort       uint16
	SeqNum        uint32
	AckNum        uint32
	DataOffset    uint8
	Flags         uint8
	WindowSize    uint16
	Checksum      uint16
	UrgentPointer uint16
}

// TCP is a TCP header (RFC 793) stored in a byte slice.
type TCP []byte

const (
	// TCPMinimumSize is the size of a TCP header with no options.
	TCPMinimumSize = 20

	// TCPProtocolNumber is TCP's IP protocol number.
	TCPProtocolNumber catnip.TransportProtocolNumber = 6

	// TCPMaximumHeaderSize is the largest a TCP header (with options) can
	// be: 15 * 4 bytes, the limit of the 4-bit data-offset field.
	TCPMaximumHeaderSize = 60
)

func (b TCP) SourcePort() uint16      { return binary.BigEndian.Uint16(b[tcpSrcPortOff:]) }
func (b TCP) DestinationPort() uint16 { return binary.BigEndian.Uint16(b[tcpDstPortOff:]) }
func (b TCP) SequenceNumber() uint32  { return binary.BigEndian.Uint32(b[tcpSeqNumOff:]) }
func (b TCP) AckNumber() uint32       { return binary.BigEndian.Uint32(b[tcpAckNumOff:]) }

// DataOffset returns the header length in bytes (the field is in 32-bit
// words).
func (b TCP) DataOffset() uint8 { return (b[tcpDataOffOff] >> 4) * 4 }

// Flags returns the control-bit field.
func (b TCP) Flags() uint8 { return b[tcpFlagsOff] }

// WindowSize returns the raw (unscaled) advertised window.
func (b TCP) WindowSize() uint16 { return binary.BigEndian.Uint16(b[tcpWinSizeOff:]) }

// Checksum returns the checksum field.
func (b TCP) Checksum() uint16 { return binary.BigEndian.Uint16(b[tcpChecksumOff:]) }

// Options returns the raw options bytes (may be empty).
func (b TCP) Options() []byte { return b[TCPMinimumSize:b.DataOffset()] }

// Payload returns the segment's data.
func (b TCP) Payload() []byte { return b[b.DataOffset():] }

// SetSourcePort sets the source port field.
func (b TCP) SetSourcePort(port uint16) { binary.BigEndian.PutUint16(b[tcpSrcPortOff:], port) }

// SetDestinationPort sets the destination port field.
func (b TCP) SetDestinationPort(port uint16) {
	binary.BigEndian.PutUint16(b[tcpDstPortOff:], port)
}

// SetChecksum sets the checksum field.
func (b TCP) SetChecksum(v uint16) { binary.BigEndian.PutUint16(b[tcpChecksumOff:], v) }

// SetSequenceNumber sets the sequence-number field.
func (b TCP) SetSequenceNumber(v uint32) { binary.BigEndian.PutUint32(b[tcpSeqNumOff:], v) }

// SetAckNumber sets the acknowledgement-number field.
func (b TCP) SetAckNumber(v uint32) { binary.BigEndian.PutUint32(b[tcpAckNumOff:], v) }

// SetDataOffset sets the data-offset field given the header length in bytes.
func (b TCP) SetDataOffset(headerLen uint8) { b[tcpDataOffOff] = (headerLen / 4) << 4 }

// SetFlags sets the control-bit field.
func (b TCP) SetFlags(flags uint8) { b[tcpFlagsOff] = flags }

// SetWindowSize sets the advertised window field.
func (b TCP) SetWindowSize(v uint16) { binary.BigEndian.PutUint16(b[tcpWinSizeOff:], v) }

// Encode writes t's fields into b (options, if any, must already be
// written into b[TCPMinimumSize:] by the caller before calling Encode).
func (b TCP) Encode(t *TCPFields) {
	binary.BigEndian.PutUint16(b[tcpSrcPortOff:], t.SrcPort)
	binary.BigEndian.PutUint16(b[tcpDstPortOff:], t.DstPort)
	binary.BigEndian.PutUint32(b[tcpSeqNumOff:], t.SeqNum)
	binary.BigEndian.PutUint32(b[tcpAckNumOff:], t.AckNum)
	b[tcpDataOffOff] = (t.DataOffset / 4) << 4
	b[tcpFlagsOff] = t.Flags
	binary.BigEndian.PutUint16(b[tcpWinSizeOff:], t.WindowSize)
	binary.BigEndian.PutUint16(b[tcpChecksumOff:], t.Checksum)
	binary.BigEndian.PutUint16(b[tcpUrgentOff:], t.UrgentPointer)
}

// CalculateChecksum folds the pseudo-header checksum, the TCP length
// (len(b), so b must span the whole segment) and the header and payload
// bytes.
func (b TCP) CalculateChecksum(pseudoHeaderChecksum uint16) uint16 {
	l := len(b)
	xsum := Checksum([]byte{byte(l >> 8), byte(l)}, pseudoHeaderChecksum)
	return Checksum(b, xsum)
}

// IsChecksumValid reports whether b's checksum field, as received, is
// consistent with pseudoHeaderChecksum — the RX-side counterpart of the TX
// path's `SetChecksum(^CalculateChecksum(...))`.
func (b TCP) IsChecksumValid(pseudoHeaderChecksum uint16) bool {
	return b.CalculateChecksum(pseudoHeaderChecksum) == 0xffff
}

// IsValid performs the basic bounds checks required before trusting any
// other accessor.
func (b TCP) IsValid(pktSize int) bool {
	if len(b) < TCPMinimumSize {
		return false
	}
	off := int(b.DataOffset())
	return off >= TCPMinimumSize && off <= len(b) && off <= pktSize
}
