package tcp

import (
	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/header"
	"github.com/catnip-libos/catnip/seqnum"
)

// segment is one parsed inbound TCP segment queued for a flow's task to
// consume — grounded on the teacher's transport/tcp/segment.go, trimmed to
// a plain value type since this core has no refcounted route to carry.
type segment struct {
	id       catnip.FourTuple
	seq      seqnum.Value
	ack      seqnum.Value
	flags    byte
	window   seqnum.Size
	data     []byte
	options  header.TCPSynOptions
	hasOpts  bool
}

func (s *segment) logicalLen() seqnum.Size {
	n := seqnum.Size(len(s.data))
	if s.flags&(header.FlagSyn|header.FlagFin) != 0 {
		n++
	}
	return n
}
