// Package libos implements component C10: the facade an application links
// against. It owns one LibOS instance's configuration, device, buffer
// pool, scheduler, and protocol stack — per spec §9's "no global state,"
// every LibOS is a freestanding aggregate root, safe to run one per core
// against disjoint flow hashes with nothing shared between instances.
//
// No direct teacher analog exists (impact-eintr-netstack embeds tcpip.Stack
// directly rather than behind a queue-descriptor facade); this package is
// designed fresh against spec §4.8/§9, threading every ioqueue.Table
// operation through to a small, closed API named after the operation it
// performs rather than after any POSIX call it happens to resemble.
package libos

import (
	"time"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/catnip-libos/catnip/config"
	"github.com/catnip-libos/catnip/device"
	"github.com/catnip-libos/catnip/internal/metrics"
	"github.com/catnip-libos/catnip/ioqueue"
	"github.com/catnip-libos/catnip/runtime"
	"github.com/catnip-libos/catnip/stack"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Domain and SockType re-export ioqueue's tagged-variant discriminants so a
// caller never needs to import ioqueue directly.
type (
	Domain   = ioqueue.Domain
	SockType = ioqueue.SockType
)

const (
	DomainInet = ioqueue.DomainInet
	SockStream = ioqueue.SockStream
	SockDgram  = ioqueue.SockDgram
)

// QDescriptor and QToken re-export ioqueue's handle types.
type (
	QDescriptor = ioqueue.QDescriptor
	QToken      = ioqueue.QToken
)

// Result is what a completed qtoken redeems to, re-exported from ioqueue.
type Result = ioqueue.Result

// LibOS is one freestanding instance of the core: its own device, buffer
// pool, scheduler, protocol stack, and queue-descriptor table. Two
// instances never share mutable state, per spec §9.
type LibOS struct {
	cfg   config.Config
	sched *runtime.Scheduler
	pool  *buffer.Pool
	stack *stack.Stack
	queue *ioqueue.Table
	log   *zap.Logger
}

// New builds a LibOS bound to dev, sized and addressed per cfg. dev is the
// caller-supplied packet I/O device (spec §4.2's "packet I/O device is an
// external collaborator" boundary — this module never opens a NIC itself).
func New(cfg config.Config, dev device.Device, log *zap.Logger) (*LibOS, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "libos: invalid config")
	}

	pool := buffer.NewPool(cfg.BufferPoolBuffers, cfg.BufferRegionBytes)
	sched := runtime.NewScheduler(runtime.SystemClock{})

	st, err := stack.New(cfg, dev, sched, pool, log)
	if err != nil {
		return nil, errors.Wrap(err, "libos: build stack")
	}

	return &LibOS{
		cfg:   cfg,
		sched: sched,
		pool:  pool,
		stack: st,
		queue: ioqueue.New(st),
		log:   log,
	}, nil
}

// Metrics returns a point-in-time snapshot of the per-segment drop/
// recovery counters spec §7 asks be counted rather than surfaced as
// application errors.
func (l *LibOS) Metrics() metrics.Snapshot {
	return l.stack.Metrics.Snapshot()
}

// Socket allocates a fresh, unbound queue descriptor of the requested
// domain/type — synchronous, per §4.8's operation table.
func (l *LibOS) Socket(domain Domain, typ SockType) (QDescriptor, error) {
	return l.queue.Socket(domain, typ)
}

// Bind fixes qd's local endpoint — synchronous.
func (l *LibOS) Bind(qd QDescriptor, local catnip.FullAddress) error {
	return l.queue.Bind(qd, local)
}

// Listen moves qd into Listen, admitting up to backlog half-open flows —
// synchronous.
func (l *LibOS) Listen(qd QDescriptor, backlog int) error {
	return l.queue.Listen(qd, backlog)
}

// GetSockName returns qd's local endpoint as currently known — synchronous.
func (l *LibOS) GetSockName(qd QDescriptor) (catnip.FullAddress, error) {
	return l.queue.GetSockName(qd)
}

// Accept returns a qtoken that completes with a fresh Established queue
// descriptor once qd's listener admits a flow.
func (l *LibOS) Accept(qd QDescriptor) (QToken, error) {
	return l.queue.Accept(qd)
}

// Connect returns a qtoken that completes once qd's active-open flow
// reaches Established.
func (l *LibOS) Connect(qd QDescriptor, remote catnip.FullAddress) (QToken, error) {
	return l.queue.Connect(qd, remote)
}

// Push returns a qtoken that completes once buf has entered qd's send
// side — enqueued, not acknowledged, per §4.7's push-completion mandate.
func (l *LibOS) Push(qd QDescriptor, buf []byte) (QToken, error) {
	return l.queue.Push(qd, buf)
}

// Pop returns a qtoken that completes with up to max bytes (TCP) or one
// datagram (UDP) from qd's receive side.
func (l *LibOS) Pop(qd QDescriptor, max int) (QToken, error) {
	return l.queue.Pop(qd, max)
}

// Close returns a qtoken that completes once qd's underlying resource has
// torn down and its slot is free for reuse.
func (l *LibOS) Close(qd QDescriptor) (QToken, error) {
	return l.queue.Close(qd)
}

// Wait drives the poll loop until tok completes or timeout elapses. A nil
// timeout waits indefinitely.
func (l *LibOS) Wait(tok QToken, timeout *time.Duration) (Result, error) {
	return l.queue.Wait(tok, timeout)
}

// WaitAny is Wait generalized to a set of qtokens, returning as soon as any
// one of them completes.
func (l *LibOS) WaitAny(toks []QToken, timeout *time.Duration) (int, Result, error) {
	return l.queue.WaitAny(toks, timeout)
}

// TryWait is a non-blocking peek at tok that never drives the poll loop
// itself — for a caller already running its own poll loop via PollOnce.
func (l *LibOS) TryWait(tok QToken) (Result, bool, error) {
	return l.queue.TryWait(tok)
}

// PollOnce drives one iteration of the poll loop directly (RX burst, one
// scheduler pass), for a host embedding LibOS in its own event loop instead
// of blocking inside Wait/WaitAny.
func (l *LibOS) PollOnce() int {
	return l.stack.PollOnce()
}
