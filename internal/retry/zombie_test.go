package retry

import (
	"context"
	"testing"
	"time"
)

func TestIsNewLocalDay(t *testing.T) {
	day1 := time.Date(2026, 7, 30, 23, 59, 0, 0, time.Local)
	day2 := time.Date(2026, 7, 31, 0, 1, 0, 0, time.Local)
	if !isNewLocalDay(day1, day2) {
		t.Errorf("expected a day boundary between %v and %v", day1, day2)
	}

	sameDay := time.Date(2026, 7, 31, 1, 0, 0, 0, time.Local)
	if isNewLocalDay(day2, sameDay) {
		t.Errorf("did not expect a day boundary between %v and %v", day2, sameDay)
	}
}

// TestSweepKillsZombieTask directly drives sweep() on a scheduler holding a
// long-past-due task, rather than waiting out the real zombieAge threshold.
func TestSweepKillsZombieTask(t *testing.T) {
	tx := newFakeTransmitter()
	sched := NewScheduler(tx, []time.Duration{0})

	ctx, cancel := context.WithCancel(context.Background())
	rt := &runningTask{
		id:        "fake-zombie",
		shadeID:   9,
		startedAt: time.Now().Add(-1 * time.Hour),
		cancel:    cancel,
		kind:      "burst",
	}
	sched.mu.Lock()
	sched.activeTasks[rt.id] = rt
	sched.shadeOwner[rt.shadeID] = rt.id
	sched.mu.Unlock()

	sched.sweep()

	if ctx.Err() == nil {
		t.Errorf("expected the zombie task's context to be cancelled")
	}
	stats := sched.Stats()
	if stats.ZombieKilled != 1 {
		t.Errorf("expected ZombieKilled=1, got %d", stats.ZombieKilled)
	}
}
