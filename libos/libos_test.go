package libos

import (
	"testing"
	"time"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/config"
	"github.com/catnip-libos/catnip/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.LocalIPv4 = "10.0.0.1"
	cfg.LocalMAC = "02:00:00:00:00:01"
	cfg.SubnetMask = "255.255.255.0"
	return cfg
}

func newTestLibOS(t *testing.T) *LibOS {
	l, err := New(testConfig(), device.NewLoopbackDevice(), nil)
	require.NoError(t, err)
	return l
}

func mustWait(t *testing.T, l *LibOS, tok QToken) Result {
	timeout := 2 * time.Second
	res, err := l.Wait(tok, &timeout)
	require.NoError(t, err)
	return res
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.LocalIPv4 = "not-an-ip"
	_, err := New(cfg, device.NewLoopbackDevice(), nil)
	assert.Error(t, err)
}

func TestUDPEchoToSelf(t *testing.T) {
	l := newTestLibOS(t)

	server, err := l.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 9999}
	require.NoError(t, l.Bind(server, local))

	client, err := l.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	connectTok, err := l.Connect(client, local)
	require.NoError(t, err)
	mustWait(t, l, connectTok)

	pushTok, err := l.Push(client, []byte("hello"))
	require.NoError(t, err)
	mustWait(t, l, pushTok)

	popTok, err := l.Pop(server, 1500)
	require.NoError(t, err)
	res := mustWait(t, l, popTok)
	assert.Equal(t, "hello", string(res.Data))
}

func TestTCPConnectAcceptEchoAndClose(t *testing.T) {
	l := newTestLibOS(t)

	listener, err := l.Socket(DomainInet, SockStream)
	require.NoError(t, err)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 7000}
	require.NoError(t, l.Bind(listener, local))
	require.NoError(t, l.Listen(listener, 4))

	acceptTok, err := l.Accept(listener)
	require.NoError(t, err)

	client, err := l.Socket(DomainInet, SockStream)
	require.NoError(t, err)
	connectTok, err := l.Connect(client, local)
	require.NoError(t, err)

	acceptRes := mustWait(t, l, acceptTok)
	require.NoError(t, acceptRes.Err)
	server := acceptRes.QD

	connectRes := mustWait(t, l, connectTok)
	require.NoError(t, connectRes.Err)

	pushTok, err := l.Push(client, []byte("ping"))
	require.NoError(t, err)
	mustWait(t, l, pushTok)

	popTok, err := l.Pop(server, 1500)
	require.NoError(t, err)
	popRes := mustWait(t, l, popTok)
	assert.Equal(t, "ping", string(popRes.Data))

	closeTok, err := l.Close(client)
	require.NoError(t, err)
	mustWait(t, l, closeTok)

	closeTok2, err := l.Close(server)
	require.NoError(t, err)
	mustWait(t, l, closeTok2)
}

func TestWaitAnyReturnsFirstCompletedIndex(t *testing.T) {
	l := newTestLibOS(t)

	server, err := l.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 9191}
	require.NoError(t, l.Bind(server, local))

	client, err := l.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	connectTok, err := l.Connect(client, local)
	require.NoError(t, err)
	mustWait(t, l, connectTok)

	pushTok, err := l.Push(client, []byte("x"))
	require.NoError(t, err)
	mustWait(t, l, pushTok)

	popTok, err := l.Pop(server, 1500)
	require.NoError(t, err)

	timeout := 2 * time.Second
	idx, res, err := l.WaitAny([]QToken{popTok}, &timeout)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "x", string(res.Data))
}

func TestAcceptTimesOutWithNoConnection(t *testing.T) {
	l := newTestLibOS(t)

	listener, err := l.Socket(DomainInet, SockStream)
	require.NoError(t, err)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 7001}
	require.NoError(t, l.Bind(listener, local))
	require.NoError(t, l.Listen(listener, 4))

	acceptTok, err := l.Accept(listener)
	require.NoError(t, err)

	timeout := 10 * time.Millisecond
	_, err = l.Wait(acceptTok, &timeout)
	assert.ErrorIs(t, err, catnip.ErrTimeout)
}

func TestGetSockNameReportsBoundPort(t *testing.T) {
	l := newTestLibOS(t)

	qd, err := l.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	require.NoError(t, l.Bind(qd, catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 5555}))

	got, err := l.GetSockName(qd)
	require.NoError(t, err)
	assert.EqualValues(t, 5555, got.Port)
}

func TestMetricsSnapshotStartsZero(t *testing.T) {
	l := newTestLibOS(t)
	snap := l.Metrics()
	assert.Zero(t, snap.ChecksumErrorsUDP)
	assert.Zero(t, snap.StrayDatagramsUDP)
}
