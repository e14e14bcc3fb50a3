package buffer

// Prependable is a View with spare room reserved at the front, so header
// codecs can build a frame from the inside out — payload first, then TCP,
// then IPv4, then Ethernet — without ever copying the payload.
type Prependable struct {
	buf     View
	usedIdx int
}

// NewPrependable allocates size bytes, all initially reserved (unused).
func NewPrependable(size int) Prependable {
	return Prependable{buf: NewView(size), usedIdx: size}
}

// NewPrependableFromView wraps an existing view with nothing reserved.
func NewPrependableFromView(v View) Prependable {
	return Prependable{buf: v, usedIdx: 0}
}

// View returns the currently-used (i.e. already prepended) portion.
func (p Prependable) View() View {
	return p.buf[p.usedIdx:]
}

// UsedLength returns how many bytes have been prepended so far.
func (p Prependable) UsedLength() int {
	return len(p.buf) - p.usedIdx
}

// Prepend claims size bytes immediately before the currently-used region
// and returns them for the caller to fill in (outermost header last). It
// returns nil if there isn't enough reserved room left.
func (p *Prependable) Prepend(size int) []byte {
	if size > p.usedIdx {
		return nil
	}
	p.usedIdx -= size
	return p.View()[:size:size]
}
