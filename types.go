package catnip

import (
	"fmt"
	"net"
)

// Address is a raw, network-byte-order IPv4 address (4 bytes).
type Address string

func (a Address) String() string {
	if len(a) != 4 {
		return "?"
	}
	return net.IP([]byte(a)).String()
}

// AddressFromIP converts a net.IP (v4) into an Address.
func AddressFromIP(ip net.IP) Address {
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return Address(v4)
}

// LinkAddress is a raw 6-byte Ethernet MAC address.
type LinkAddress string

func (l LinkAddress) String() string {
	if len(l) != 6 {
		return "?"
	}
	return net.HardwareAddr([]byte(l)).String()
}

// BroadcastLinkAddress is the Ethernet broadcast address ff:ff:ff:ff:ff:ff.
var BroadcastLinkAddress = LinkAddress([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

// NICID identifies a network interface card within a Stack.
type NICID uint32

// NetworkProtocolNumber is an EtherType value (e.g. 0x0800 for IPv4).
type NetworkProtocolNumber uint32

// TransportProtocolNumber is an IP protocol number (e.g. 6 for TCP).
type TransportProtocolNumber uint8

// Port is an L4 port number. Port 0 means "ephemeral" when used as a local
// bind port.
type Port uint16

// FullAddress is a (NIC, IP address, port) tuple identifying one endpoint of
// a socket.
type FullAddress struct {
	NIC  NICID
	Addr Address
	Port Port
}

func (f FullAddress) String() string {
	return fmt.Sprintf("%s:%d", f.Addr, f.Port)
}

// FourTuple identifies one TCP or UDP flow.
type FourTuple struct {
	LocalAddr  Address
	LocalPort  Port
	RemoteAddr Address
	RemotePort Port
}

func (t FourTuple) String() string {
	return fmt.Sprintf("%s:%d<->%s:%d", t.LocalAddr, t.LocalPort, t.RemoteAddr, t.RemotePort)
}
