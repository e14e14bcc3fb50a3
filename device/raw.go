//go:build linux

package device

import (
	catnip "github.com/catnip-libos/catnip"
	"github.com/catnip-libos/catnip/buffer"
	"golang.org/x/sys/unix"
)

// RawDevice is a kernel-bypass-adjacent backend: an AF_PACKET socket bound
// to one interface, read and written directly via recvfrom/sendto rather
// than going through the teacher's syscall.RawSyscall blocking-poll helper
// (link/rawfile/blockingpoll_unsafe.go) — that file shells out to asm
// raw syscalls to avoid the runtime's netpoller; golang.org/x/sys/unix
// gives the same raw socket control without hand-rolled syscall numbers.
//
// A real io_uring ring would plug in here as an alternate Device
// implementation without the stack above noticing; none of the retrieved
// pack ships a pure-Go io_uring binding, so RawDevice is the recvfrom/
// sendto-based stand-in called out in DESIGN.md.
type RawDevice struct {
	fd       int
	ifindex  int
	linkAddr catnip.LinkAddress
	mtu      uint32
	pool     *buffer.Pool
}

// NewRawDevice opens an AF_PACKET/SOCK_RAW socket bound to ifindex, reading
// inbound frames into buffers drawn from pool.
func NewRawDevice(ifindex int, linkAddr catnip.LinkAddress, mtu uint32, pool *buffer.Pool) (*RawDevice, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(swapEndianShort(unix.ETH_P_ALL)))
	if err != nil {
		return nil, translateErrno(err)
	}
	sa := &unix.SockaddrLinklayer{Protocol: swapEndianShort(unix.ETH_P_ALL), Ifindex: ifindex}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, translateErrno(err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, translateErrno(err)
	}
	return &RawDevice{fd: fd, ifindex: ifindex, linkAddr: linkAddr, mtu: mtu, pool: pool}, nil
}

func swapEndianShort(v int) uint16 {
	return uint16(v>>8) | uint16(v<<8)
}

// Receive reads up to maxPackets frames without blocking, returning
// whatever is immediately available. EAGAIN is not an error: it means the
// socket has nothing queued right now.
func (d *RawDevice) Receive(maxPackets int) (Burst, error) {
	var burst Burst
	for i := 0; i < maxPackets; i++ {
		pb, err := d.pool.Alloc()
		if err != nil {
			break
		}
		n, _, err := unix.Recvfrom(d.fd, pb.Bytes(), 0)
		if err != nil {
			pb.Release()
			if cerr := translateErrno(err); cerr != nil {
				return burst, cerr
			}
			break
		}
		if n == 0 {
			pb.Release()
			break
		}
		if trimErr := pb.TrimTail(pb.Size() - n); trimErr != nil {
			pb.Release()
			return burst, trimErr
		}
		burst.Buffers = append(burst.Buffers, pb)
	}
	return burst, nil
}

// Transmit writes every packet in b to the socket via sendto, releasing
// each buffer once written. On a send error it releases the remaining
// buffers unsent and returns the error.
func (d *RawDevice) Transmit(b Burst) error {
	sa := &unix.SockaddrLinklayer{Ifindex: d.ifindex}
	for i, pkt := range b.Buffers {
		err := unix.Sendto(d.fd, pkt.Bytes(), 0, sa)
		pkt.Release()
		if err != nil {
			for _, rest := range b.Buffers[i+1:] {
				rest.Release()
			}
			return translateErrno(err)
		}
	}
	return nil
}

// LinkAddress returns the bound interface's MAC address, as configured by
// the caller at construction time (read from the interface out-of-band,
// since AF_PACKET sockets don't surface it directly on send/receive).
func (d *RawDevice) LinkAddress() catnip.LinkAddress { return d.linkAddr }

// MTU returns the device's configured MTU.
func (d *RawDevice) MTU() uint32 { return d.mtu }

// Close releases the underlying socket.
func (d *RawDevice) Close() error {
	return unix.Close(d.fd)
}
