package buffer

import (
	"sync"

	catnip "github.com/catnip-libos/catnip"
)

// PacketBuffer is an owned, reference-counted handle over a contiguous
// region drawn from a Pool (spec §3, C1). Multiple handles (via Clone or
// Split) may share one backing region; the region returns to its pool
// exactly once, when the last handle is dropped.
//
// head <= tail <= capacity is maintained by every mutating method; a
// PacketBuffer that would violate it returns catnip.ErrOutOfRoom instead.
type PacketBuffer struct {
	region *region
	head   int
	tail   int
}

// region is the shared backing allocation. refCnt covers every outstanding
// PacketBuffer handle over it, including ones produced by Split — so a
// segmentation split never frees memory still referenced by a sibling
// slice (spec §9, Open Question 2).
type region struct {
	pool *Pool
	buf  []byte
	mu   sync.Mutex
	refs int32
}

func (r *region) incRef() {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()
}

func (r *region) decRef() {
	r.mu.Lock()
	r.refs--
	n := r.refs
	r.mu.Unlock()
	if n == 0 {
		r.pool.release(r)
	}
}

// Capacity returns the full backing region size.
func (b *PacketBuffer) Capacity() int { return len(b.region.buf) }

// Size returns the number of logically-visible bytes (tail - head).
func (b *PacketBuffer) Size() int { return b.tail - b.head }

// Bytes returns the logically-visible slice [head:tail). The caller must
// not retain it past the buffer's lifetime or hand it to another owner
// without Clone — it aliases the shared region.
func (b *PacketBuffer) Bytes() []byte {
	return b.region.buf[b.head:b.tail]
}

// AdjustHead moves the head offset by delta: negative to prepend room (e.g.
// to write a header just parsed off the wire back on for forwarding),
// positive to strip bytes already consumed (e.g. stripping a parsed
// header). Returns catnip.ErrOutOfRoom if the result would violate
// 0 <= head <= tail.
func (b *PacketBuffer) AdjustHead(delta int) error {
	newHead := b.head + delta
	if newHead < 0 || newHead > b.tail {
		return catnip.ErrOutOfRoom
	}
	b.head = newHead
	return nil
}

// TrimTail removes n bytes from the visible tail. Returns
// catnip.ErrOutOfRoom if n exceeds the current size.
func (b *PacketBuffer) TrimTail(n int) error {
	if n < 0 || b.tail-n < b.head {
		return catnip.ErrOutOfRoom
	}
	b.tail -= n
	return nil
}

// Clone returns a second handle over the same region and visible range,
// raising the region's refcount. The clone and the original observe the
// same bytes but have independently adjustable head/tail offsets.
func (b *PacketBuffer) Clone() *PacketBuffer {
	b.region.incRef()
	return &PacketBuffer{region: b.region, head: b.head, tail: b.tail}
}

// Split produces two non-overlapping handles over one region: [head, at)
// and [at, tail). Used by the TCP sender to segment a send-buffer chunk
// into MSS-sized wire segments without copying. at is relative to the
// buffer's own head.
func (b *PacketBuffer) Split(at int) (*PacketBuffer, *PacketBuffer, error) {
	if at < 0 || b.head+at > b.tail {
		return nil, nil, catnip.ErrOutOfRoom
	}
	// left and right each hold their own reference; b keeps its own too.
	b.region.incRef()
	b.region.incRef()
	left := &PacketBuffer{region: b.region, head: b.head, tail: b.head + at}
	right := &PacketBuffer{region: b.region, head: b.head + at, tail: b.tail}
	return left, right, nil
}

// Release drops this handle. Once every handle over a region has been
// released, the region returns to its pool.
func (b *PacketBuffer) Release() {
	if b.region == nil {
		return
	}
	b.region.decRef()
	b.region = nil
}
