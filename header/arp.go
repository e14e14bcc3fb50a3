package header

import catnip "github.com/catnip-libos/catnip"

const (
	// ARPProtocolNumber is ARP's EtherType.
	ARPProtocolNumber catnip.NetworkProtocolNumber = 0x0806

	// ARPSize is the size of an ARP packet for IPv4-over-Ethernet.
	ARPSize = 2 + 2 + 1 + 1 + 2 + 2*6 + 2*4 // 28 bytes
)

// ARPOp is an ARP operation code (RFC 826).
type ARPOp uint16

const (
	ARPRequest ARPOp = 1
	ARPReply   ARPOp = 2
)

// ARP is an ARP packet stored in a byte slice, laid out for IPv4-over-
// Ethernet:
//
//	2B hardware type | 2B protocol type | 1B hw addr len | 1B proto addr len
//	2B opcode | 6B sender MAC | 4B sender IP | 6B target MAC | 4B target IP
type ARP []byte

func (a ARP) hardwareAddressSpace() uint16 { return uint16(a[0])<<8 | uint16(a[1]) }
func (a ARP) protocolAddressSpace() uint16 { return uint16(a[2])<<8 | uint16(a[3]) }
func (a ARP) hardwareAddressSize() int     { return int(a[4]) }
func (a ARP) protocolAddressSize() int     { return int(a[5]) }

// Op returns the ARP opcode.
func (a ARP) Op() ARPOp { return ARPOp(a[6])<<8 | ARPOp(a[7]) }

// SetOp sets the ARP opcode.
func (a ARP) SetOp(op ARPOp) {
	a[6] = uint8(op >> 8)
	a[7] = uint8(op)
}

// SetIPv4OverEthernet fills in the fixed hardware/protocol-type fields.
func (a ARP) SetIPv4OverEthernet() {
	a[0], a[1] = 0, 1
	a[2], a[3] = 0x08, 0x00
	a[4] = EthernetAddressSize
	a[5] = uint8(IPv4AddressSize)
}

// HardwareAddressSender returns the sender hardware (MAC) address field.
func (a ARP) HardwareAddressSender() []byte {
	const s = 8
	return a[s : s+6]
}

// ProtocolAddressSender returns the sender protocol (IPv4) address field.
func (a ARP) ProtocolAddressSender() []byte {
	const s = 8 + 6
	return a[s : s+4]
}

// HardwareAddressTarget returns the target hardware (MAC) address field.
func (a ARP) HardwareAddressTarget() []byte {
	const s = 8 + 6 + 4
	return a[s : s+6]
}

// ProtocolAddressTarget returns the target protocol (IPv4) address field.
func (a ARP) ProtocolAddressTarget() []byte {
	const s = 8 + 6 + 4 + 6
	return a[s : s+4]
}

// IsValid reports whether a is a well-formed IPv4-over-Ethernet ARP packet.
func (a ARP) IsValid() bool {
	if len(a) < ARPSize {
		return false
	}
	const htypeEthernet = 1
	return a.hardwareAddressSpace() == htypeEthernet &&
		a.protocolAddressSpace() == uint16(IPv4ProtocolNumber) &&
		a.hardwareAddressSize() == EthernetAddressSize &&
		a.protocolAddressSize() == IPv4AddressSize
}
