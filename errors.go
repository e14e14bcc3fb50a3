package catnip

import "github.com/pkg/errors"

// Error is a stable, comparable-by-identity error kind. Callers switch on
// pointer identity (e.g. `err == ErrTimeout`), never on the message text.
type Error struct {
	kind string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind returns the stable taxonomy name, useful for metrics labels.
func (e *Error) Kind() string { return e.kind }

// The stable error taxonomy of the I/O-queue API (spec §7). Exactly these
// kinds may ever surface through a qtoken or a synchronous call.
var (
	ErrBadArg          = &Error{kind: "BadArg", msg: "malformed endpoint or unsupported domain"}
	ErrBadState        = &Error{kind: "BadState", msg: "operation not permitted in current queue state"}
	ErrInUse           = &Error{kind: "InUse", msg: "local endpoint already bound"}
	ErrUnreachable     = &Error{kind: "Unreachable", msg: "destination unreachable"}
	ErrRefused         = &Error{kind: "Refused", msg: "connection refused"}
	ErrTimeout         = &Error{kind: "Timeout", msg: "operation timed out"}
	ErrConnectionReset = &Error{kind: "ConnectionReset", msg: "connection reset"}
	ErrEof             = &Error{kind: "Eof", msg: "end of file"}
	ErrCancelled       = &Error{kind: "Cancelled", msg: "operation cancelled"}
	ErrOutOfRoom       = &Error{kind: "OutOfRoom", msg: "buffer adjustment exceeds capacity"}
	ErrOutOfMemory     = &Error{kind: "OutOfMemory", msg: "buffer pool exhausted"}
)

// Fatal panics after wrapping msg with a stack trace. It signals an internal
// invariant breach (a bug), never an operational condition — per spec §7,
// those must never surface as one of the Error kinds above.
func Fatal(msg string) {
	panic(errors.WithStack(errors.New("catnip: invariant violation: " + msg)))
}
