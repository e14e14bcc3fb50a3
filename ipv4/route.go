// Package ipv4 implements component C6: IPv4 routing and the ICMPv4 echo
// responder/destination-unreachable bridge. Grounded on the teacher's
// network/ipv4/ipv4.go (WritePacket/HandlePacket framing) and icmp.go
// (echo-reply construction, destination-unreachable → control-message
// bridge), redesigned around device.Device/buffer.PacketBuffer instead of
// the teacher's stack.Route/buffer.VectorisedView, and around inline
// reply-on-the-poll-thread instead of icmp.go's echoReplier goroutine —
// §4.5 mandates the echo reply be crafted synchronously, not handed to a
// second goroutine.
package ipv4

import (
	catnip "github.com/catnip-libos/catnip"
)

// Route describes the outcome of a routing decision: the destination MAC
// is resolved against NextHopIP, which is either the packet's own
// destination (if it's on the local subnet) or the configured gateway.
type Route struct {
	NextHopIP catnip.Address
}

// Router holds the minimal routing table §4.5 calls for: a local subnet
// mask and a single default gateway. There is no general routing table —
// every off-subnet destination goes to the gateway.
type Router struct {
	LocalAddr   catnip.Address
	SubnetMask  catnip.Address
	GatewayAddr catnip.Address
}

// Route decides the next-hop IP for dst: dst itself if it shares the local
// subnet with LocalAddr, otherwise the gateway.
func (r Router) Route(dst catnip.Address) Route {
	if r.sameSubnet(dst) {
		return Route{NextHopIP: dst}
	}
	return Route{NextHopIP: r.GatewayAddr}
}

func (r Router) sameSubnet(dst catnip.Address) bool {
	if len(dst) != 4 || len(r.LocalAddr) != 4 || len(r.SubnetMask) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if dst[i]&r.SubnetMask[i] != r.LocalAddr[i]&r.SubnetMask[i] {
			return false
		}
	}
	return true
}
