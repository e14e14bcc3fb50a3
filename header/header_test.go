package header_test

import (
	"testing"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumOfAllZeroBufferIsZero(t *testing.T) {
	buf := make([]byte, 64)
	assert.EqualValues(t, 0, header.Checksum(buf, 0))
}

func TestChecksumHandlesOddLength(t *testing.T) {
	even := header.Checksum([]byte{0x12, 0x34}, 0)
	odd := header.Checksum([]byte{0x12, 0x34, 0x00}, 0)
	assert.Equal(t, even, odd)
}

func TestChecksumCombineFoldsCarry(t *testing.T) {
	got := header.ChecksumCombine(0xffff, 0x0001)
	assert.EqualValues(t, 0x0001, got)
}

func TestIPv4EncodeThenCalculateChecksumValidates(t *testing.T) {
	buf := make([]byte, header.IPv4MinimumSize)
	ip := header.IPv4(buf)
	ip.Encode(&header.IPv4Fields{
		IHL:         header.IPv4MinimumSize,
		TotalLength: header.IPv4MinimumSize,
		TTL:         64,
		Protocol:    uint8(header.UDPProtocolNumber),
		SrcAddr:     catnip.Address("\x0a\x00\x00\x01"),
		DstAddr:     catnip.Address("\x0a\x00\x00\x02"),
	})
	assert.False(t, ip.IsChecksumValid())

	ip.SetChecksum(^ip.CalculateChecksum())
	assert.True(t, ip.IsChecksumValid())
	assert.Equal(t, catnip.Address("\x0a\x00\x00\x01"), ip.SourceAddress())
	assert.Equal(t, catnip.Address("\x0a\x00\x00\x02"), ip.DestinationAddress())
}

func TestIPv4FragmentOffsetDetection(t *testing.T) {
	buf := make([]byte, header.IPv4MinimumSize)
	ip := header.IPv4(buf)
	ip.Encode(&header.IPv4Fields{IHL: header.IPv4MinimumSize, TotalLength: header.IPv4MinimumSize})
	assert.False(t, ip.IsFragment())

	ip.SetFlagsFragmentOffset(0, 8)
	assert.True(t, ip.IsFragment())
}

func TestEthernetEncodeRoundTrips(t *testing.T) {
	buf := make([]byte, header.EthernetMinimumSize)
	eth := header.Ethernet(buf)
	src := catnip.LinkAddress("\x02\x00\x00\x00\x00\x01")
	dst := catnip.LinkAddress("\x02\x00\x00\x00\x00\x02")
	eth.Encode(&header.EthernetFields{
		SrcAddr: src,
		DstAddr: dst,
		Type:    header.IPv4ProtocolNumber,
	})
	assert.Equal(t, src, eth.SourceAddress())
	assert.Equal(t, dst, eth.DestinationAddress())
	assert.Equal(t, header.IPv4ProtocolNumber, eth.Type())
}

func TestARPRequestEncodeDecode(t *testing.T) {
	buf := make([]byte, header.ARPSize)
	a := header.ARP(buf)
	a.SetIPv4OverEthernet()
	a.SetOp(header.ARPRequest)

	senderMAC := catnip.LinkAddress("\x02\x00\x00\x00\x00\x01")
	senderIP := catnip.Address("\x0a\x00\x00\x01")
	targetIP := catnip.Address("\x0a\x00\x00\x02")
	copy(a.HardwareAddressSender(), senderMAC)
	copy(a.ProtocolAddressSender(), senderIP)
	copy(a.ProtocolAddressTarget(), targetIP)

	require.True(t, a.IsValid())
	assert.Equal(t, header.ARPRequest, a.Op())
	assert.Equal(t, senderIP, catnip.Address(a.ProtocolAddressSender()))
	assert.Equal(t, targetIP, catnip.Address(a.ProtocolAddressTarget()))
}

func TestPseudoHeaderChecksumDiffersByProtocol(t *testing.T) {
	src := catnip.Address("\x0a\x00\x00\x01")
	dst := catnip.Address("\x0a\x00\x00\x02")
	udpSum := header.PseudoHeaderChecksum(header.UDPProtocolNumber, src, dst)
	tcpSum := header.PseudoHeaderChecksum(header.TCPProtocolNumber, src, dst)
	assert.NotEqual(t, udpSum, tcpSum)
}
