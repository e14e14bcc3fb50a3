package buffer

import (
	"sync"

	catnip "github.com/catnip-libos/catnip"
)

// Pool is a fixed-capacity allocator of equally-sized packet buffers,
// registered with exactly one device (spec §4.2: "TX buffers must
// originate from a device-registered pool"). Allocation is lock-free only
// in the sense that the data path never blocks on another LibOS instance —
// within one instance a mutex still guards the free list, since a buffer
// handed to a host application can in principle be released from a
// goroutine other than the poll thread.
type Pool struct {
	mu       sync.Mutex
	free     [][]byte
	regionSz int
	outstanding int
}

// NewPool creates a pool of n buffers of regionSz bytes each.
func NewPool(n, regionSz int) *Pool {
	p := &Pool{regionSz: regionSz}
	p.free = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		p.free = append(p.free, make([]byte, regionSz))
	}
	return p
}

// Alloc returns a fresh PacketBuffer with the full region visible
// ([0, regionSz)). Returns catnip.ErrOutOfMemory if the pool is exhausted.
func (p *Pool) Alloc() (*PacketBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return nil, catnip.ErrOutOfMemory
	}
	buf := p.free[n-1]
	p.free = p.free[:n-1]
	p.outstanding++
	r := &region{pool: p, buf: buf, refs: 1}
	return &PacketBuffer{region: r, head: 0, tail: len(buf)}, nil
}

// AllocHeadroom allocates a buffer and immediately reserves headroom bytes
// at the front (head == tail == headroom), so a caller building a frame
// from the payload outward can Prepend headers without a second
// allocation. headroom must be <= the pool's region size.
func (p *Pool) AllocHeadroom(headroom int) (*PacketBuffer, error) {
	b, err := p.Alloc()
	if err != nil {
		return nil, err
	}
	b.head = headroom
	b.tail = headroom
	return b, nil
}

func (p *Pool) release(r *region) {
	p.mu.Lock()
	p.free = append(p.free, r.buf[:p.regionSz])
	p.outstanding--
	p.mu.Unlock()
}

// Outstanding returns the number of regions currently allocated (not yet
// fully released). Used by tests asserting the "no buffer leak" invariant
// (spec §8, invariant 3).
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// RegionSize returns the fixed per-buffer capacity.
func (p *Pool) RegionSize() int { return p.regionSz }
