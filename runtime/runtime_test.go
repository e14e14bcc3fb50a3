package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakerPendingClear(t *testing.T) {
	var w Waker
	assert.False(t, w.Pending())
	w.Wake()
	assert.True(t, w.Pending())
	w.Clear()
	assert.False(t, w.Pending())
}

func TestTimerWheelFiresInOrder(t *testing.T) {
	base := time.Unix(0, 0)
	clock := NewManualClock(base)
	tw := NewTimerWheel()

	var w1, w2 Waker
	tw.After(base.Add(10*time.Millisecond), &w1)
	tw.After(base.Add(5*time.Millisecond), &w2)

	clock.Advance(6 * time.Millisecond)
	fired := tw.Advance(clock.Now())
	assert.Equal(t, 1, fired)
	assert.True(t, w2.Pending())
	assert.False(t, w1.Pending())

	clock.Advance(10 * time.Millisecond)
	fired = tw.Advance(clock.Now())
	assert.Equal(t, 1, fired)
	assert.True(t, w1.Pending())
}

func TestTimerHandleCancel(t *testing.T) {
	base := time.Unix(0, 0)
	tw := NewTimerWheel()
	var w Waker
	h := tw.After(base.Add(time.Millisecond), &w)
	h.Cancel()
	fired := tw.Advance(base.Add(time.Hour))
	assert.Equal(t, 0, fired)
	assert.False(t, w.Pending())
}

func TestSchedulerPollsOnlyPendingTasks(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock)

	polled := 0
	task := NewFunc(func(now Clock) Status {
		polled++
		return StatusDone
	})
	s.Spawn(task)

	// Not woken yet: RunOnce should not poll it.
	s.RunOnce()
	assert.Equal(t, 0, polled)
	require.Equal(t, 1, s.NumTasks())

	task.Waker().Wake()
	s.RunOnce()
	assert.Equal(t, 1, polled)
	assert.Equal(t, 0, s.NumTasks())
}

func TestSchedulerKeepsProgressingTasks(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock)

	steps := 0
	task := NewFunc(func(now Clock) Status {
		steps++
		if steps >= 3 {
			return StatusDone
		}
		return StatusProgress
	})
	s.Spawn(task)
	task.Waker().Wake()

	for i := 0; i < 3 && s.NumTasks() > 0; i++ {
		s.RunOnce()
		if s.NumTasks() > 0 {
			task.Waker().Wake()
		}
	}
	assert.Equal(t, 3, steps)
	assert.Equal(t, 0, s.NumTasks())
}

func TestSchedulerSpawnDuringRunOnceIsRetained(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	s := NewScheduler(clock)

	var second *Func
	first := NewFunc(func(now Clock) Status {
		second = NewFunc(func(now Clock) Status { return StatusDone })
		s.Spawn(second)
		return StatusDone
	})
	s.Spawn(first)
	first.Waker().Wake()

	s.RunOnce()
	require.NotNil(t, second)
	assert.Equal(t, 1, s.NumTasks())
}
