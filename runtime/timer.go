package runtime

import (
	"container/heap"
	"time"
)

// timerEntry is one scheduled deadline. Grounded on the standard
// container/heap example (the package's own doc example is itself a
// priority queue of timers); the teacher has no equivalent since its
// retransmit timers run as blocked goroutines under time.Timer.
type timerEntry struct {
	deadline time.Time
	waker    *Waker
	index    int
	canceled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// TimerHandle cancels a scheduled timer.
type TimerHandle struct {
	entry *timerEntry
}

// Cancel prevents the timer's Waker from being fired, if it hasn't fired
// already. Safe to call more than once.
func (h TimerHandle) Cancel() {
	if h.entry != nil {
		h.entry.canceled = true
	}
}

// TimerWheel tracks pending deadlines (RTO, delayed ACK, ARP retry, TTL
// expiry) and fires the associated Waker once a deadline has passed.
type TimerWheel struct {
	heap timerHeap
}

// NewTimerWheel returns an empty TimerWheel.
func NewTimerWheel() *TimerWheel {
	return &TimerWheel{}
}

// After schedules w to be woken at deadline, returning a handle that can
// cancel it before it fires.
func (tw *TimerWheel) After(deadline time.Time, w *Waker) TimerHandle {
	e := &timerEntry{deadline: deadline, waker: w}
	heap.Push(&tw.heap, e)
	return TimerHandle{entry: e}
}

// Advance wakes every non-canceled timer whose deadline is at or before
// now, removing them from the wheel, and returns how many fired.
func (tw *TimerWheel) Advance(now time.Time) int {
	fired := 0
	for tw.heap.Len() > 0 {
		top := tw.heap[0]
		if top.deadline.After(now) {
			break
		}
		heap.Pop(&tw.heap)
		if top.canceled {
			continue
		}
		top.waker.Wake()
		fired++
	}
	return fired
}

// NextDeadline returns the earliest pending deadline and true, or the zero
// time and false if the wheel is empty. Callers (e.g. an epoll-based poll
// loop waiting on a device fd) use this to bound how long to block before
// the next Advance is due.
func (tw *TimerWheel) NextDeadline() (time.Time, bool) {
	for tw.heap.Len() > 0 {
		top := tw.heap[0]
		if top.canceled {
			heap.Pop(&tw.heap)
			continue
		}
		return top.deadline, true
	}
	return time.Time{}, false
}

// Len reports how many timers (including canceled, not-yet-popped ones)
// are still in the wheel.
func (tw *TimerWheel) Len() int { return tw.heap.Len() }
