package ioqueue

// QDescriptor is the small integer handle (`qd`) an application holds for
// one queue-table slot (§3). Internally it packs a 16-bit slot index and a
// 16-bit generation counter so that closing qd and later reusing its slot
// for a fresh socket() can never make a stale qd alias the new one — a
// lookup against the old generation is rejected with BadArg instead of
// silently hitting the new socket.
type QDescriptor uint32

func newQDescriptor(index, generation uint32) QDescriptor {
	return QDescriptor(generation<<16 | (index & 0xffff))
}

func (qd QDescriptor) split() (index, generation uint32) {
	return uint32(qd) & 0xffff, uint32(qd) >> 16
}

// QToken is the 64-bit `{queue_id:32, operation_id:32}` value §3 defines:
// it names one pending asynchronous operation issued against a specific
// queue, redeemable via Wait/WaitAny/TryWait.
type QToken uint64

func newQToken(qd QDescriptor, opID uint32) QToken {
	return QToken(uint64(qd)<<32 | uint64(opID))
}

// QueueID returns the qd the token's operation was issued against.
func (t QToken) QueueID() QDescriptor { return QDescriptor(t >> 32) }

// OperationID returns the token's operation sequence number, drawn from
// one counter shared by every queue in the table.
func (t QToken) OperationID() uint32 { return uint32(t) }
