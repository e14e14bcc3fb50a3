// Package arp implements component C5: the IPv4-to-MAC cache and its
// request/reply state machine. Grounded on the teacher's
// network/arp/arp.go, which answers inbound requests and fills the cache
// from replies; the retry/timeout/waiter machinery spec.md §4.4 asks for
// has no teacher equivalent (the teacher's ARP endpoint never resolves
// anything itself — NIC.go's route lookup panics on a cache miss) and is
// built fresh against runtime.Scheduler/runtime.TimerWheel.
package arp

import (
	"time"

	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
	"github.com/catnip-libos/catnip/device"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/internal/metrics"
	"github.com/catnip-libos/catnip/runtime"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults per spec §4.4.
const (
	DefaultRequestRetries = 5
	DefaultRequestInterval = time.Second
	DefaultCacheTTL        = 15 * time.Minute
)

type state int

const (
	stateResolving state = iota
	stateValid
)

// entry is one cache row: either Resolving{attempts, waiters, next_retry}
// or Valid{mac, expiry}, per spec §4.4's data model.
type entry struct {
	state state

	// Resolving fields.
	attempts  int
	waiters   []*runtime.Waker
	nextRetry time.Time
	timer     runtime.TimerHandle

	// Valid fields.
	mac    catnip.LinkAddress
	expiry time.Time
}

// Config holds the resolver's tunables (§6: arp_request_retries,
// arp_request_interval_ms, arp_cache_ttl_s, arp_table static entries).
type Config struct {
	RequestRetries  int
	RequestInterval time.Duration
	CacheTTL        time.Duration
	StaticEntries   map[catnip.Address]catnip.LinkAddress
}

// Resolver is the IPv4→MAC cache plus its resolution state machine (C5).
// It is driven entirely from the single scheduler goroutine: Poll never
// blocks, and HandleReply/resolve mutate the cache directly rather than
// through a lock, matching §5's single-owner rule.
type Resolver struct {
	cfg       Config
	dev       device.Device
	localIP   catnip.Address
	sched     *runtime.Scheduler
	limiter   *rate.Limiter
	log       *zap.Logger
	pool      *buffer.Pool
	metrics   *metrics.Counters

	cache map[catnip.Address]*entry
}

// New returns a Resolver that sends requests out dev and schedules retries
// on sched. limiter paces how often broadcast requests actually hit the
// wire, independent of how many distinct targets are resolving at once —
// grounded on golang.org/x/time/rate's token-bucket model.
func New(cfg Config, dev device.Device, localIP catnip.Address, sched *runtime.Scheduler, pool *buffer.Pool, m *metrics.Counters, log *zap.Logger) *Resolver {
	if cfg.RequestRetries == 0 {
		cfg.RequestRetries = DefaultRequestRetries
	}
	if cfg.RequestInterval == 0 {
		cfg.RequestInterval = DefaultRequestInterval
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = &metrics.Counters{}
	}
	r := &Resolver{
		cfg:     cfg,
		dev:     dev,
		localIP: localIP,
		sched:   sched,
		limiter: rate.NewLimiter(rate.Every(cfg.RequestInterval), cfg.RequestRetries+1),
		log:     log,
		pool:    pool,
		metrics: m,
		cache:   make(map[catnip.Address]*entry),
	}
	for ip, mac := range cfg.StaticEntries {
		r.cache[ip] = &entry{state: stateValid, mac: mac, expiry: time.Now().Add(100 * cfg.CacheTTL)}
	}
	return r
}

// Resolve returns the cached MAC for ip if Valid. If there is no entry, or
// an entry is still Resolving, it attaches w as a waiter (broadcasting a
// request if this is the first attempt) and returns ok=false; w fires once
// the entry transitions to Valid or is abandoned after retry exhaustion,
// at which point the caller should call Resolve again to see the outcome
// — success or catnip.ErrUnreachable via LastError.
func (r *Resolver) Resolve(ip catnip.Address, w *runtime.Waker) (mac catnip.LinkAddress, ok bool) {
	e, found := r.cache[ip]
	if found && e.state == stateValid {
		if time.Now().Before(e.expiry) {
			return e.mac, true
		}
		delete(r.cache, ip)
		found = false
	}
	if !found {
		e = &entry{state: stateResolving}
		r.cache[ip] = e
		r.sendRequest(ip, e)
	}
	if w != nil {
		e.waiters = append(e.waiters, w)
	}
	return "", false
}

// LastError reports why ip is not resolvable: nil if it resolved, or
// catnip.ErrUnreachable if retry exhaustion abandoned the entry.
func (r *Resolver) LastError(ip catnip.Address) error {
	e, ok := r.cache[ip]
	if !ok {
		return catnip.ErrUnreachable
	}
	if e.state == stateValid {
		return nil
	}
	if e.attempts > r.cfg.RequestRetries {
		return catnip.ErrUnreachable
	}
	return nil
}

func (r *Resolver) sendRequest(ip catnip.Address, e *entry) {
	e.attempts++
	if e.attempts > r.cfg.RequestRetries {
		r.abandon(ip, e)
		return
	}
	if r.limiter.Allow() {
		if err := r.transmitRequest(ip); err != nil {
			r.log.Warn("arp request transmit failed", zap.Error(err), zap.String("ip", string(ip)))
		}
	}

	task := &retryTask{resolver: r, ip: ip}
	e.timer = r.sched.Timers().After(time.Now().Add(r.cfg.RequestInterval), task.Waker())
	r.sched.Spawn(task)
}

// retryTask re-attempts a resolution once its timer fires. It is a
// one-shot task: Poll always reports StatusDone after firing once, since a
// fresh retryTask is spawned for every subsequent attempt.
type retryTask struct {
	waker    runtime.Waker
	resolver *Resolver
	ip       catnip.Address
}

func (t *retryTask) Waker() *runtime.Waker { return &t.waker }

func (t *retryTask) Poll(now runtime.Clock) runtime.Status {
	t.resolver.retry(t.ip)
	return runtime.StatusDone
}

func (r *Resolver) retry(ip catnip.Address) {
	e, ok := r.cache[ip]
	if !ok || e.state != stateResolving {
		return
	}
	r.sendRequest(ip, e)
}

func (r *Resolver) abandon(ip catnip.Address, e *entry) {
	delete(r.cache, ip)
	r.metrics.IncARPRequestTimedOut()
	for _, w := range e.waiters {
		w.Wake()
	}
	e.waiters = nil
}

func (r *Resolver) newFrame(dst catnip.LinkAddress) (*buffer.PacketBuffer, error) {
	frameLen := header.EthernetMinimumSize + header.ARPSize
	pkt, err := r.pool.Alloc()
	if err != nil {
		return nil, err
	}
	if err := pkt.TrimTail(pkt.Size() - frameLen); err != nil {
		pkt.Release()
		return nil, err
	}
	eth := header.Ethernet(pkt.Bytes()[:header.EthernetMinimumSize])
	eth.Encode(&header.EthernetFields{
		SrcAddr: r.dev.LinkAddress(),
		DstAddr: dst,
		Type:    header.ARPProtocolNumber,
	})
	return pkt, nil
}

func (r *Resolver) arpSection(pkt *buffer.PacketBuffer) header.ARP {
	return header.ARP(pkt.Bytes()[header.EthernetMinimumSize:])
}

func (r *Resolver) transmitRequest(ip catnip.Address) error {
	if r.pool == nil {
		return nil
	}
	pkt, err := r.newFrame(catnip.BroadcastLinkAddress)
	if err != nil {
		return err
	}
	arpPkt := r.arpSection(pkt)
	arpPkt.SetIPv4OverEthernet()
	arpPkt.SetOp(header.ARPRequest)
	copy(arpPkt.HardwareAddressSender(), r.dev.LinkAddress())
	copy(arpPkt.ProtocolAddressSender(), r.localIP)
	copy(arpPkt.ProtocolAddressTarget(), ip)

	return r.dev.Transmit(device.Burst{Buffers: []*buffer.PacketBuffer{pkt}})
}

// HandleReply processes an inbound ARP packet (request or reply),
// answering requests targeted at localIP and filling the cache from both
// requests (fallthrough, per the teacher) and replies.
func (r *Resolver) HandleReply(pkt header.ARP) {
	if !pkt.IsValid() {
		return
	}
	switch pkt.Op() {
	case header.ARPRequest:
		target := catnip.Address(pkt.ProtocolAddressTarget())
		if target == r.localIP {
			r.replyTo(pkt)
		}
		r.learn(catnip.Address(pkt.ProtocolAddressSender()), catnip.LinkAddress(pkt.HardwareAddressSender()))
	case header.ARPReply:
		r.learn(catnip.Address(pkt.ProtocolAddressSender()), catnip.LinkAddress(pkt.HardwareAddressSender()))
	}
}

func (r *Resolver) replyTo(req header.ARP) {
	if r.pool == nil {
		return
	}
	dst := catnip.LinkAddress(req.HardwareAddressSender())
	pkt, err := r.newFrame(dst)
	if err != nil {
		return
	}
	reply := r.arpSection(pkt)
	reply.SetIPv4OverEthernet()
	reply.SetOp(header.ARPReply)
	copy(reply.HardwareAddressSender(), r.dev.LinkAddress())
	copy(reply.ProtocolAddressSender(), req.ProtocolAddressTarget())
	copy(reply.ProtocolAddressTarget(), req.ProtocolAddressSender())
	copy(reply.HardwareAddressTarget(), req.HardwareAddressSender())

	if err := r.dev.Transmit(device.Burst{Buffers: []*buffer.PacketBuffer{pkt}}); err != nil {
		r.log.Warn("arp reply transmit failed", zap.Error(err))
	}
}

// learn updates the cache from an observed (ip, mac) pair — a reply, or a
// gratuitous announcement riding a request — waking any waiters. A brand
// new Valid entry is created only in response to traffic that names our
// own resolution target or a reply to our own request; learn is also the
// single path gratuitous replies take to refresh (never create against
// policy) an existing Valid entry, per §4.4.
func (r *Resolver) learn(ip catnip.Address, mac catnip.LinkAddress) {
	e, existed := r.cache[ip]
	if !existed {
		return
	}
	now := time.Now()
	if e.state == stateResolving {
		for _, w := range e.waiters {
			w.Wake()
		}
		e.timer.Cancel()
	}
	r.cache[ip] = &entry{state: stateValid, mac: mac, expiry: now.Add(r.cfg.CacheTTL)}
}

// Evict removes expired Valid entries; called periodically by a scheduler
// task (or on every lookup miss) rather than via its own timer per entry,
// since TTL expiry is not latency sensitive.
func (r *Resolver) Evict(now time.Time) {
	for ip, e := range r.cache {
		if e.state == stateValid && !now.Before(e.expiry) {
			delete(r.cache, ip)
		}
	}
}
