package ioqueue

import (
	"testing"
	"time"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/catnip-libos/catnip/config"
	"github.com/catnip-libos/catnip/device"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) *Table {
	cfg := config.Defaults()
	cfg.LocalIPv4 = "10.0.0.1"
	cfg.LocalMAC = "02:00:00:00:00:01"
	cfg.SubnetMask = "255.255.255.0"

	dev := device.NewLoopbackDevice()
	sched := runtime.NewScheduler(runtime.SystemClock{})
	pool := buffer.NewPool(64, 2048)
	st, err := stack.New(cfg, dev, sched, pool, nil)
	require.NoError(t, err)
	return New(st)
}

func mustWaitResult(t *testing.T, tbl *Table, tok QToken) Result {
	timeout := 2 * time.Second
	res, err := tbl.Wait(tok, &timeout)
	require.NoError(t, err)
	return res
}

func TestQTokenRoundTrip(t *testing.T) {
	qd := newQDescriptor(7, 3)
	tok := newQToken(qd, 42)
	assert.Equal(t, qd, tok.QueueID())
	assert.EqualValues(t, 42, tok.OperationID())
}

func TestQDescriptorSplitRoundTrip(t *testing.T) {
	qd := newQDescriptor(0xbeef, 0x1234)
	idx, gen := qd.split()
	assert.EqualValues(t, 0xbeef, idx)
	assert.EqualValues(t, 0x1234, gen)
}

func TestSocketRejectsBadDomainOrType(t *testing.T) {
	tbl := newTestTable(t)
	_, err := tbl.Socket(Domain(99), SockStream)
	assert.ErrorIs(t, err, catnip.ErrBadArg)

	_, err = tbl.Socket(DomainInet, SockType(99))
	assert.ErrorIs(t, err, catnip.ErrBadArg)
}

func TestLookupRejectsStaleGenerationAfterClose(t *testing.T) {
	tbl := newTestTable(t)
	qd, err := tbl.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(qd, catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 4000}))

	closeTok, err := tbl.Close(qd)
	require.NoError(t, err)
	mustWaitResult(t, tbl, closeTok)

	_, err = tbl.GetSockName(qd)
	assert.ErrorIs(t, err, catnip.ErrBadArg)
}

func TestLookupRejectsOutOfRangeIndex(t *testing.T) {
	tbl := newTestTable(t)
	_, err := tbl.GetSockName(newQDescriptor(999, 1))
	assert.ErrorIs(t, err, catnip.ErrBadArg)
}

func TestBindThenRebindSamePortFails(t *testing.T) {
	tbl := newTestTable(t)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 5000}

	a, err := tbl.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(a, local))

	b, err := tbl.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	err = tbl.Bind(b, local)
	assert.ErrorIs(t, err, catnip.ErrInUse)
}

func TestUDPSocketBindPushPopRoundTrip(t *testing.T) {
	tbl := newTestTable(t)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 6000}

	server, err := tbl.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(server, local))

	client, err := tbl.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	connectTok, err := tbl.Connect(client, local)
	require.NoError(t, err)
	mustWaitResult(t, tbl, connectTok)

	pushTok, err := tbl.Push(client, []byte("payload"))
	require.NoError(t, err)
	pushRes := mustWaitResult(t, tbl, pushTok)
	assert.Equal(t, len("payload"), pushRes.N)

	popTok, err := tbl.Pop(server, 1500)
	require.NoError(t, err)
	popRes := mustWaitResult(t, tbl, popTok)
	assert.Equal(t, "payload", string(popRes.Data))
}

func TestTCPListenAcceptConnectEstablishes(t *testing.T) {
	tbl := newTestTable(t)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 6500}

	listener, err := tbl.Socket(DomainInet, SockStream)
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(listener, local))
	require.NoError(t, tbl.Listen(listener, 4))

	acceptTok, err := tbl.Accept(listener)
	require.NoError(t, err)

	client, err := tbl.Socket(DomainInet, SockStream)
	require.NoError(t, err)
	connectTok, err := tbl.Connect(client, local)
	require.NoError(t, err)

	acceptRes := mustWaitResult(t, tbl, acceptTok)
	require.NoError(t, acceptRes.Err)
	assert.NotZero(t, acceptRes.QD)

	connectRes := mustWaitResult(t, tbl, connectTok)
	require.NoError(t, connectRes.Err)
}

func TestListenRejectsSecondListenOnSameQueue(t *testing.T) {
	tbl := newTestTable(t)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 6600}

	qd, err := tbl.Socket(DomainInet, SockStream)
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(qd, local))
	require.NoError(t, tbl.Listen(qd, 4))

	err = tbl.Listen(qd, 4)
	assert.ErrorIs(t, err, catnip.ErrBadState)
}

func TestTryWaitIsNonBlockingAndHarvestsOnce(t *testing.T) {
	tbl := newTestTable(t)
	qd, err := tbl.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(qd, catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 6700}))

	closeTok, err := tbl.Close(qd)
	require.NoError(t, err)

	res, ok, err := tbl.TryWait(closeTok)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, res.Err)

	_, _, err = tbl.TryWait(closeTok)
	assert.ErrorIs(t, err, catnip.ErrBadArg)
}

func TestWaitTimesOutWhenTokenNeverCompletes(t *testing.T) {
	tbl := newTestTable(t)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 6800}

	listener, err := tbl.Socket(DomainInet, SockStream)
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(listener, local))
	require.NoError(t, tbl.Listen(listener, 4))

	acceptTok, err := tbl.Accept(listener)
	require.NoError(t, err)

	timeout := 10 * time.Millisecond
	_, err = tbl.Wait(acceptTok, &timeout)
	assert.ErrorIs(t, err, catnip.ErrTimeout)
}

func TestWaitAnyPicksWhicheverTokenCompletesFirst(t *testing.T) {
	tbl := newTestTable(t)
	local := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 6900}

	server, err := tbl.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(server, local))

	client, err := tbl.Socket(DomainInet, SockDgram)
	require.NoError(t, err)
	connectTok, err := tbl.Connect(client, local)
	require.NoError(t, err)
	mustWaitResult(t, tbl, connectTok)

	pushTok, err := tbl.Push(client, []byte("y"))
	require.NoError(t, err)
	mustWaitResult(t, tbl, pushTok)

	// neverTok never completes on its own; popTok should win the race.
	neverListener, err := tbl.Socket(DomainInet, SockStream)
	require.NoError(t, err)
	neverLocal := catnip.FullAddress{Addr: catnip.Address("\x0a\x00\x00\x01"), Port: 6901}
	require.NoError(t, tbl.Bind(neverListener, neverLocal))
	require.NoError(t, tbl.Listen(neverListener, 4))
	neverTok, err := tbl.Accept(neverListener)
	require.NoError(t, err)

	popTok, err := tbl.Pop(server, 1500)
	require.NoError(t, err)

	timeout := 2 * time.Second
	idx, res, err := tbl.WaitAny([]QToken{neverTok, popTok}, &timeout)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "y", string(res.Data))
}

func TestWaitAnyRejectsEmptySet(t *testing.T) {
	tbl := newTestTable(t)
	_, _, err := tbl.WaitAny(nil, nil)
	assert.ErrorIs(t, err, catnip.ErrBadArg)
}
