package ioqueue

import (
	"time"

	catnip "github.com/catnip-libos/catnip"
)

// TryWait is a non-blocking peek at tok: it never drives the scheduler
// itself (some other poll loop — the application's, or a concurrent
// Wait/WaitAny — is assumed to be doing that). If tok has completed, its
// entry is harvested (deleted) per §3's "qtokens are destroyed when wait
// harvests them".
func (t *Table) TryWait(tok QToken) (Result, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[tok]
	if !ok {
		return Result{}, false, catnip.ErrBadArg
	}
	if !op.done {
		return Result{}, false, nil
	}
	delete(t.ops, tok)
	return op.result, true, nil
}

// Wait drives the runtime's poll loop (PollOnce) until tok completes or
// timeout elapses, per §4.8. A nil timeout waits indefinitely.
func (t *Table) Wait(tok QToken, timeout *time.Duration) (Result, error) {
	deadline, hasDeadline := t.deadline(timeout)
	for {
		if res, ok, err := t.TryWait(tok); err != nil || ok {
			return res, err
		}
		if hasDeadline && !deadline.After(time.Now()) {
			return Result{}, catnip.ErrTimeout
		}
		t.stack.PollOnce()
	}
}

// WaitAny is Wait generalized to a set of qtokens: it returns as soon as
// any one of toks completes, identifying which by index.
func (t *Table) WaitAny(toks []QToken, timeout *time.Duration) (int, Result, error) {
	if len(toks) == 0 {
		return -1, Result{}, catnip.ErrBadArg
	}
	deadline, hasDeadline := t.deadline(timeout)
	for {
		for i, tok := range toks {
			if res, ok, err := t.TryWait(tok); err != nil || ok {
				return i, res, err
			}
		}
		if hasDeadline && !deadline.After(time.Now()) {
			return -1, Result{}, catnip.ErrTimeout
		}
		t.stack.PollOnce()
	}
}

func (t *Table) deadline(timeout *time.Duration) (time.Time, bool) {
	if timeout == nil {
		return time.Time{}, false
	}
	return time.Now().Add(*timeout), true
}
