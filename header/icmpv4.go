package header

import (
	"encoding/binary"

	catnip "github.com/catnip-libos/catnip"
)

// ICMPv4ProtocolNumber is ICMP's IP protocol number.
const ICMPv4ProtocolNumber catnip.TransportProtocolNumber = 1

// ICMPv4Type is an ICMP message type. Spec §6 scopes this core to echo
// request/reply only (types 0 and 8); other types observed on RX are
// surfaced to IPv4 for control-message dispatch (e.g. destination
// unreachable), never answered directly.
type ICMPv4Type uint8

const (
	ICMPv4EchoReply   ICMPv4Type = 0
	ICMPv4DstUnreachable ICMPv4Type = 3
	ICMPv4Echo        ICMPv4Type = 8
)

// ICMPv4DstUnreachable codes this core interprets (RFC 792).
const (
	ICMPv4PortUnreachable   = 3
	ICMPv4FragmentationNeeded = 4
)

const (
	icmpv4TypeOff     = 0
	icmpv4CodeOff     = 1
	icmpv4ChecksumOff = 2
	icmpv4IdentOff    = 4
	icmpv4SeqOff      = 6

	// ICMPv4MinimumSize is the size of the ICMP header (type/code/checksum
	// plus the 4 bytes used by echo request/reply as identifier+sequence,
	// or by unreachable messages as unused/pointer).
	ICMPv4MinimumSize = 8

	// ICMPv4EchoMinimumSize is the size of an echo header (no payload).
	ICMPv4EchoMinimumSize = 8

	// ICMPv4DstUnreachableMinimumSize is the size of an unreachable
	// header, which quotes the original IP header + 8 bytes.
	ICMPv4DstUnreachableMinimumSize = 8
)

// ICMPv4 is an ICMPv4 message stored in a byte slice.
type ICMPv4 []byte

// Type returns the message type.
func (b ICMPv4) Type() ICMPv4Type { return ICMPv4Type(b[icmpv4TypeOff]) }

// SetType sets the message type.
func (b ICMPv4) SetType(t ICMPv4Type) { b[icmpv4TypeOff] = byte(t) }

// Code returns the message code.
func (b ICMPv4) Code() uint8 { return b[icmpv4CodeOff] }

// SetCode sets the message code.
func (b ICMPv4) SetCode(c uint8) { b[icmpv4CodeOff] = c }

// Checksum returns the checksum field.
func (b ICMPv4) Checksum() uint16 { return binary.BigEndian.Uint16(b[icmpv4ChecksumOff:]) }

// SetChecksum sets the checksum field.
func (b ICMPv4) SetChecksum(c uint16) { binary.BigEndian.PutUint16(b[icmpv4ChecksumOff:], c) }

// Identifier returns the echo request/reply identifier field.
func (b ICMPv4) Identifier() uint16 { return binary.BigEndian.Uint16(b[icmpv4IdentOff:]) }

// SetIdentifier sets the echo request/reply identifier field.
func (b ICMPv4) SetIdentifier(v uint16) { binary.BigEndian.PutUint16(b[icmpv4IdentOff:], v) }

// Sequence returns the echo request/reply sequence-number field.
func (b ICMPv4) Sequence() uint16 { return binary.BigEndian.Uint16(b[icmpv4SeqOff:]) }

// SetSequence sets the echo request/reply sequence-number field.
func (b ICMPv4) SetSequence(v uint16) { binary.BigEndian.PutUint16(b[icmpv4SeqOff:], v) }

// Payload returns the bytes following the 8-byte ICMP header.
func (b ICMPv4) Payload() []byte { return b[ICMPv4MinimumSize:] }

// CalculateChecksum computes the checksum of the whole ICMP message
// (header + payload), with the checksum field itself treated as zero.
func (b ICMPv4) CalculateChecksum() uint16 {
	saved := b.Checksum()
	b.SetChecksum(0)
	sum := Checksum(b, 0)
	b.SetChecksum(saved)
	return ^sum
}
