package device

import (
	catnip "github.com/catnip-libos/catnip"
	"golang.org/x/sys/unix"
)

// translateErrno maps a raw socket errno to the core error taxonomy,
// mirroring the teacher's rawfile.TranslateErrno table but against the
// smaller errno set a raw AF_PACKET socket actually returns.
func translateErrno(err error) *catnip.Error {
	errno, ok := err.(unix.Errno)
	if !ok {
		return catnip.ErrUnreachable
	}
	switch errno {
	case unix.EAGAIN:
		return nil // not an error: no packet ready
	case unix.ENOBUFS, unix.ENOMEM:
		return catnip.ErrOutOfMemory
	case unix.EMSGSIZE:
		return catnip.ErrOutOfRoom
	case unix.ENETDOWN, unix.ENETUNREACH, unix.EHOSTUNREACH:
		return catnip.ErrUnreachable
	case unix.EINTR:
		return nil
	default:
		return catnip.ErrUnreachable
	}
}
