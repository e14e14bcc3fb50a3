package header

import (
	"encoding/binary"

	catnip "github.com/catnip-libos/catnip"
)

const (
	dstMACOff  = 0
	srcMACOff  = 6
	ethTypeOff = 12
)

// EthernetFields describes the fields of an Ethernet II frame header for
// Encode.
type EthernetFields struct {
	SrcAddr catnip.LinkAddress
	DstAddr catnip.LinkAddress
	Type    catnip.NetworkProtocolNumber
}

// Ethernet is an Ethernet II frame header stored in a byte slice.
type Ethernet []byte

const (
	// EthernetMinimumSize is the size of an Ethernet II header.
	EthernetMinimumSize = 14

	// EthernetAddressSize is the size of a MAC address.
	EthernetAddressSize = 6
)

// SourceAddress returns the frame's source MAC address.
func (b Ethernet) SourceAddress() catnip.LinkAddress {
	return catnip.LinkAddress(b[srcMACOff:][:EthernetAddressSize])
}

// DestinationAddress returns the frame's destination MAC address.
func (b Ethernet) DestinationAddress() catnip.LinkAddress {
	return catnip.LinkAddress(b[dstMACOff:][:EthernetAddressSize])
}

// Type returns the frame's EtherType.
func (b Ethernet) Type() catnip.NetworkProtocolNumber {
	return catnip.NetworkProtocolNumber(binary.BigEndian.Uint16(b[ethTypeOff:]))
}

// Encode writes e into b. b must already be allocated to EthernetMinimumSize.
func (b Ethernet) Encode(e *EthernetFields) {
	binary.BigEndian.PutUint16(b[ethTypeOff:], uint16(e.Type))
	copy(b[srcMACOff:][:EthernetAddressSize], e.SrcAddr)
	copy(b[dstMACOff:][:EthernetAddressSize], e.DstAddr)
}
