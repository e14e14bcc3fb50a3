// Package buffer implements the core's packet buffer type (spec §3 C1):
// a reference-counted, offset-sliceable handle over memory drawn from a
// NIC-registered pool, plus the zero-copy View/VectorisedView/Prependable
// helpers the header codecs use to build and walk wire frames.
package buffer

// View is a contiguous byte slice. It never copies on Trim/Cap — both just
// reslice the underlying array.
type View []byte

// NewView allocates a zeroed view of the given size.
func NewView(size int) View {
	return make(View, size)
}

// NewViewFromBytes copies b into a freshly allocated View.
func NewViewFromBytes(b []byte) View {
	return append(View(nil), b...)
}

// TrimFront removes the first count bytes from the visible part of the view.
func (v *View) TrimFront(count int) {
	*v = (*v)[count:]
}

// CapLength irreversibly shrinks the visible part of the view to length.
func (v *View) CapLength(length int) {
	*v = (*v)[:length:length]
}

// ToVectorisedView wraps v as a single-segment VectorisedView.
func (v View) ToVectorisedView() VectorisedView {
	return NewVectorisedView(len(v), []View{v})
}

// VectorisedView is a vectorised View over possibly-discontiguous memory —
// used so that TCP segmentation (spec §4.7) and UDP datagram assembly never
// need to copy a send buffer's bytes into one contiguous region before
// handing them to the device.
type VectorisedView struct {
	views []View
	size  int
}

// NewVectorisedView builds a VectorisedView of the given total size over
// views.
func NewVectorisedView(size int, views []View) VectorisedView {
	return VectorisedView{views: views, size: size}
}

// TrimFront removes count bytes from the front of the vectorised view,
// dropping whole segments as needed.
func (vv *VectorisedView) TrimFront(count int) {
	for count > 0 && len(vv.views) > 0 {
		if count < len(vv.views[0]) {
			vv.size -= count
			vv.views[0].TrimFront(count)
			return
		}
		count -= len(vv.views[0])
		vv.RemoveFirst()
	}
}

// CapLength irreversibly shrinks the total visible length to length.
func (vv *VectorisedView) CapLength(length int) {
	if length < 0 {
		length = 0
	}
	if vv.size < length {
		return
	}
	vv.size = length
	for i := range vv.views {
		v := &vv.views[i]
		if len(*v) >= length {
			if length == 0 {
				vv.views = vv.views[:i]
			} else {
				v.CapLength(length)
				vv.views = vv.views[:i+1]
			}
			return
		}
		length -= len(*v)
	}
}

// Clone copies the segment list (not the underlying bytes) into buffer.
func (vv VectorisedView) Clone(buf []View) VectorisedView {
	return VectorisedView{views: append(buf[:0], vv.views...), size: vv.size}
}

// First returns the first segment, or nil if empty.
func (vv VectorisedView) First() View {
	if len(vv.views) == 0 {
		return nil
	}
	return vv.views[0]
}

// RemoveFirst drops the first segment.
func (vv *VectorisedView) RemoveFirst() {
	if len(vv.views) == 0 {
		return
	}
	vv.size -= len(vv.views[0])
	vv.views = vv.views[1:]
}

// Size returns the total visible length across all segments.
func (vv VectorisedView) Size() int { return vv.size }

// ToView flattens the vectorised view into one contiguous View, copying.
func (vv VectorisedView) ToView() View {
	u := make([]byte, 0, vv.size)
	for _, v := range vv.views {
		u = append(u, v...)
	}
	return u
}

// Views exposes the underlying segment list.
func (vv VectorisedView) Views() []View { return vv.views }
