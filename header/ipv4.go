package header

import (
	"encoding/binary"

	catnip "github.com/catnip-libos/catnip"
)

// IPv4 header byte offsets.
const (
	versIHL  = 0
	tosOff   = 1
	totalLen = 2
	idOff    = 4
	flagsFO  = 6
	ttlOff   = 8
	protoOff = 9
	csumOff  = 10
	srcAddr  = 12
	dstAddr  = 16
)

// IPv4Fields describes the fields of an IPv4 header for Encode.
type IPv4Fields struct {
	IHL            uint8
	TOS            uint8
	TotalLength    uint16
	ID             uint16
	Flags          uint8
	FragmentOffset uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	SrcAddr        catnip.Address
	DstAddr        catnip.Address
}

// IPv4 is an IPv4 header (plus options) stored in a byte slice.
type IPv4 []byte

const (
	// IPv4MinimumSize is the size of an IPv4 header with no options.
	IPv4MinimumSize = 20

	// IPv4MaximumHeaderSize is the largest an IPv4 header (with options)
	// can be: 15 * 4 bytes, the limit of the 4-bit IHL field.
	IPv4MaximumHeaderSize = 60

	// IPv4AddressSize is the size of an IPv4 address.
	IPv4AddressSize = 4

	// IPv4ProtocolNumber is IPv4's EtherType.
	IPv4ProtocolNumber catnip.NetworkProtocolNumber = 0x0800

	// IPv4Version is the version nibble value for IPv4.
	IPv4Version = 4

	// IPv4Broadcast is the limited-broadcast address.
	IPv4Broadcast catnip.Address = "\xff\xff\xff\xff"

	// IPv4Any is the non-routable "any" address.
	IPv4Any catnip.Address = "\x00\x00\x00\x00"
)

// IPv4 header flag bits.
const (
	IPv4FlagMoreFragments = 1 << iota
	IPv4FlagDontFragment
)

// IPVersion returns the version nibble of an IP packet, or -1 if b is too
// short to tell.
func IPVersion(b []byte) int {
	if len(b) < versIHL+1 {
		return -1
	}
	return int(b[versIHL] >> 4)
}

// HeaderLength returns the header length in bytes (the IHL field is in
// 32-bit words).
func (b IPv4) HeaderLength() uint8 { return (b[versIHL] & 0xf) * 4 }

// ID returns the packet's identification field.
func (b IPv4) ID() uint16 { return binary.BigEndian.Uint16(b[idOff:]) }

// Protocol returns the encapsulated transport protocol number.
func (b IPv4) Protocol() uint8 { return b[protoOff] }

// Flags returns the 3-bit flags field (MF/DF/reserved).
func (b IPv4) Flags() uint8 { return uint8(binary.BigEndian.Uint16(b[flagsFO:]) >> 13) }

// TTL returns the time-to-live field.
func (b IPv4) TTL() uint8 { return b[ttlOff] }

// FragmentOffset returns the fragment offset, in bytes.
func (b IPv4) FragmentOffset() uint16 { return binary.BigEndian.Uint16(b[flagsFO:]) << 3 }

// TotalLength returns the total packet length (header + payload), in bytes.
func (b IPv4) TotalLength() uint16 { return binary.BigEndian.Uint16(b[totalLen:]) }

// Checksum returns the header checksum field.
func (b IPv4) Checksum() uint16 { return binary.BigEndian.Uint16(b[csumOff:]) }

// SourceAddress returns the source address field.
func (b IPv4) SourceAddress() catnip.Address {
	return catnip.Address(b[srcAddr : srcAddr+IPv4AddressSize])
}

// DestinationAddress returns the destination address field.
func (b IPv4) DestinationAddress() catnip.Address {
	return catnip.Address(b[dstAddr : dstAddr+IPv4AddressSize])
}

// TransportProtocol returns the encapsulated transport protocol number.
func (b IPv4) TransportProtocol() catnip.TransportProtocolNumber {
	return catnip.TransportProtocolNumber(b.Protocol())
}

// Payload returns the bytes after the (possibly option-bearing) header.
func (b IPv4) Payload() []byte {
	return b[b.HeaderLength():][:b.PayloadLength()]
}

// PayloadLength returns the length of the payload, excluding the header.
func (b IPv4) PayloadLength() uint16 {
	return b.TotalLength() - uint16(b.HeaderLength())
}

// SetTotalLength sets the total length field.
func (b IPv4) SetTotalLength(totalLength uint16) {
	binary.BigEndian.PutUint16(b[totalLen:], totalLength)
}

// SetChecksum sets the header checksum field.
func (b IPv4) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[csumOff:], v)
}

// SetFlagsFragmentOffset sets the flags and fragment-offset fields.
func (b IPv4) SetFlagsFragmentOffset(flags uint8, offset uint16) {
	v := (uint16(flags) << 13) | (offset >> 3)
	binary.BigEndian.PutUint16(b[flagsFO:], v)
}

// SetSourceAddress sets the source address field.
func (b IPv4) SetSourceAddress(addr catnip.Address) {
	copy(b[srcAddr:srcAddr+IPv4AddressSize], addr)
}

// SetDestinationAddress sets the destination address field.
func (b IPv4) SetDestinationAddress(addr catnip.Address) {
	copy(b[dstAddr:dstAddr+IPv4AddressSize], addr)
}

// CalculateChecksum computes the header checksum over the header bytes
// (options included, checksum field itself treated as zero by the caller
// before calling this).
func (b IPv4) CalculateChecksum() uint16 {
	return Checksum(b[:b.HeaderLength()], 0)
}

// IsChecksumValid reports whether b's header checksum, as received, is
// internally consistent — the RX-side counterpart of
// `SetChecksum(^CalculateChecksum())` on TX.
func (b IPv4) IsChecksumValid() bool {
	return b.CalculateChecksum() == 0xffff
}

// Encode writes all of i's fields into b. b must already be allocated to
// at least IPv4MinimumSize + len(options).
func (b IPv4) Encode(i *IPv4Fields) {
	b[versIHL] = (IPv4Version << 4) | ((i.IHL / 4) & 0xf)
	b[tosOff] = i.TOS
	b.SetTotalLength(i.TotalLength)
	binary.BigEndian.PutUint16(b[idOff:], i.ID)
	b.SetFlagsFragmentOffset(i.Flags, i.FragmentOffset)
	b[ttlOff] = i.TTL
	b[protoOff] = i.Protocol
	b.SetChecksum(i.Checksum)
	copy(b[srcAddr:srcAddr+IPv4AddressSize], i.SrcAddr)
	copy(b[dstAddr:dstAddr+IPv4AddressSize], i.DstAddr)
}

// IsValid performs the basic bounds checks spec §4.5's RX path requires
// before trusting any other accessor: the header must fit, and the
// claimed total length must not exceed the bytes actually received
// (pktSize).
func (b IPv4) IsValid(pktSize int) bool {
	if len(b) < IPv4MinimumSize {
		return false
	}
	hlen := int(b.HeaderLength())
	tlen := int(b.TotalLength())
	return hlen >= IPv4MinimumSize && hlen <= tlen && tlen <= pktSize
}

// IsFragment reports whether this packet is a fragment (non-zero offset or
// the more-fragments flag set) — spec §4.5 mandates dropping these on RX,
// since fragmented reassembly is a Non-goal.
func (b IPv4) IsFragment() bool {
	return b.FragmentOffset() != 0 || b.Flags()&IPv4FlagMoreFragments != 0
}

// IsV4MulticastAddress reports whether addr is in 224.0.0.0/4.
func IsV4MulticastAddress(addr catnip.Address) bool {
	if len(addr) != IPv4AddressSize {
		return false
	}
	return (addr[0] & 0xf0) == 0xe0
}
