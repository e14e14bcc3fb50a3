package ports

import (
	"testing"

	catnip "github.com/catnip-libos/catnip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveSpecificPortThenConflict(t *testing.T) {
	m := NewManager(49152, 65535)
	const tcp = catnip.TransportProtocolNumber(6)

	p, err := m.Reserve(tcp, anyIPAddress, 8080)
	require.NoError(t, err)
	assert.Equal(t, catnip.Port(8080), p)

	_, err = m.Reserve(tcp, anyIPAddress, 8080)
	assert.ErrorIs(t, err, catnip.ErrInUse)

	m.Release(tcp, anyIPAddress, 8080)
	p, err = m.Reserve(tcp, anyIPAddress, 8080)
	require.NoError(t, err)
	assert.Equal(t, catnip.Port(8080), p)
}

func TestReserveDistinctAddressesDoNotConflict(t *testing.T) {
	m := NewManager(49152, 65535)
	const udp = catnip.TransportProtocolNumber(17)
	a1 := catnip.Address("\x0a\x00\x00\x01")
	a2 := catnip.Address("\x0a\x00\x00\x02")

	_, err := m.Reserve(udp, a1, 5353)
	require.NoError(t, err)
	_, err = m.Reserve(udp, a2, 5353)
	assert.NoError(t, err)

	_, err = m.Reserve(udp, a1, 5353)
	assert.ErrorIs(t, err, catnip.ErrInUse)
}

func TestReserveEphemeralPicksWithinRange(t *testing.T) {
	m := NewManager(50000, 50002)
	const udp = catnip.TransportProtocolNumber(17)

	seen := map[catnip.Port]bool{}
	for i := 0; i < 3; i++ {
		p, err := m.Reserve(udp, anyIPAddress, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, catnip.Port(50000))
		assert.LessOrEqual(t, p, catnip.Port(50002))
		seen[p] = true
	}
	assert.Len(t, seen, 3)

	_, err := m.Reserve(udp, anyIPAddress, 0)
	assert.ErrorIs(t, err, catnip.ErrInUse)
}
