package config

import (
	"testing"

	catnip "github.com/catnip-libos/catnip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
local_ipv4: 10.0.0.1
local_mac: "02:00:00:00:00:01"
gateway_ipv4: 10.0.0.254
subnet_mask: 255.255.255.0
arp_table:
  10.0.0.2: "02:00:00:00:00:02"
tcp_mss: 1400
udp_ephemeral_range:
  low: 40000
  high: 40010
`

func TestLoadParsesAndValidates(t *testing.T) {
	cfg, err := Load([]byte(sampleYAML))
	require.NoError(t, err)

	addr, err := cfg.LocalAddress()
	require.NoError(t, err)
	assert.Equal(t, catnip.Address("\x0a\x00\x00\x01"), addr)

	gw, err := cfg.GatewayAddress()
	require.NoError(t, err)
	assert.Equal(t, catnip.Address("\x0a\x00\x00\xfe"), gw)

	assert.Equal(t, uint16(1400), cfg.TCPMSS)
	assert.Equal(t, 5, cfg.ARPRequestRetries, "unset fields keep their Defaults() value")

	entries, err := cfg.StaticARPEntries()
	require.NoError(t, err)
	assert.Equal(t, catnip.LinkAddress("\x02\x00\x00\x00\x00\x02"), entries[catnip.Address("\x0a\x00\x00\x02")])
}

func TestLoadRejectsBadEphemeralRange(t *testing.T) {
	bad := sampleYAML + "\nudp_ephemeral_range:\n  low: 100\n  high: 50\n"
	_, err := Load([]byte(bad))
	assert.Error(t, err)
}

func TestLoadRejectsBadLocalAddress(t *testing.T) {
	_, err := Load([]byte("local_ipv4: not-an-ip\nlocal_mac: \"02:00:00:00:00:01\"\n"))
	assert.Error(t, err)
}
