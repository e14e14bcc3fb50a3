package runtime

import "sync"

// Scheduler is the single run loop that owns every Task in the system (§5):
// the TCP endpoints, the listener's accept-queue drain, ARP retry attempts,
// the timer wheel's deadline sweep. It replaces the teacher's
// goroutine-per-connection model (one blocked goroutine per endpoint,
// woken via sleep.Sleeper/sleep.Waker) with cooperative polling so that all
// protocol state is touched from exactly one goroutine, never behind a
// lock.
//
// A sync.Mutex still guards the task list itself, not the tasks' state:
// Spawn can be called from a goroutine other than the one running RunOnce
// (e.g. a host accepting a new connection off a listener callback), so
// enqueueing a new task needs to be safe to race with the run loop
// draining the list.
type Scheduler struct {
	clock Clock

	mu    sync.Mutex
	tasks []Task

	timers *TimerWheel
}

// NewScheduler returns a Scheduler driven by clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: NewTimerWheel(),
	}
}

// Timers returns the scheduler's timer wheel, so callers can register
// deadlines against the same Waker a spawned Task polls.
func (s *Scheduler) Timers() *TimerWheel { return s.timers }

// Spawn adds t to the run queue. t is first polled by the first RunOnce
// that finds its Waker pending; a task whose Waker is never woken is never
// polled.
func (s *Scheduler) Spawn(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
}

// RunOnce advances the timer wheel to now, then polls every runnable task
// exactly once, dropping any that report StatusDone. It returns the number
// of tasks that made progress (StatusProgress), which callers can use to
// decide whether to call RunOnce again immediately instead of waiting for
// new I/O or a timer deadline.
func (s *Scheduler) RunOnce() int {
	s.timers.Advance(s.clock.Now())

	s.mu.Lock()
	tasks := s.tasks
	s.mu.Unlock()

	progressed := 0
	live := tasks[:0:0]
	for _, t := range tasks {
		w := t.Waker()
		if !w.Pending() {
			live = append(live, t)
			continue
		}
		w.Clear()
		switch t.Poll(s.clock) {
		case StatusDone:
			// dropped
		case StatusProgress:
			progressed++
			live = append(live, t)
		default:
			live = append(live, t)
		}
	}

	s.mu.Lock()
	// Any task Spawned while we were polling was appended after the
	// snapshot we took; fold it back in.
	if len(s.tasks) > len(tasks) {
		live = append(live, s.tasks[len(tasks):]...)
	}
	s.tasks = live
	s.mu.Unlock()

	return progressed
}

// NumTasks reports how many tasks are currently scheduled.
func (s *Scheduler) NumTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
