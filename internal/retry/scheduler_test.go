package retry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shadecommander/dispatcher/internal/shadestore"
)

// fakeTransmitter records every Transmit call; shouldFail forces an error
// for a given shade id to exercise the silent-failure contract.
type fakeTransmitter struct {
	mu        sync.Mutex
	calls     []int64
	shouldErr map[int64]bool
}

func newFakeTransmitter() *fakeTransmitter {
	return &fakeTransmitter{shouldErr: make(map[int64]bool)}
}

func (f *fakeTransmitter) Transmit(_ context.Context, shadeID int64, _ shadestore.Action) error {
	f.mu.Lock()
	f.calls = append(f.calls, shadeID)
	fail := f.shouldErr[shadeID]
	f.mu.Unlock()
	if fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeTransmitter) callCount(shadeID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.calls {
		if id == shadeID {
			n++
		}
	}
	return n
}

// fastSchedule keeps the tests well under a second without changing the
// burst's three-pulse shape.
var fastSchedule = []time.Duration{0, 20 * time.Millisecond, 40 * time.Millisecond}

func TestEnqueueShadeRunsFullBurst(t *testing.T) {
	tx := newFakeTransmitter()
	sched := NewScheduler(tx, fastSchedule)

	sched.EnqueueShade(1, shadestore.ActionRaise)
	time.Sleep(100 * time.Millisecond)

	if got := tx.callCount(1); got != 3 {
		t.Errorf("expected 3 transmissions, got %d", got)
	}
}

func TestEnqueueShadeLatestCommandWins(t *testing.T) {
	tx := newFakeTransmitter()
	sched := NewScheduler(tx, []time.Duration{0, 200 * time.Millisecond, 400 * time.Millisecond})

	sched.EnqueueShade(1, shadestore.ActionRaise)
	time.Sleep(5 * time.Millisecond)
	sched.EnqueueShade(1, shadestore.ActionLower) // supersedes the raise burst mid-flight

	time.Sleep(500 * time.Millisecond)

	stats := sched.Stats()
	found := false
	for _, rec := range stats.RecentCancellations {
		if rec.ShadeID == 1 && rec.Reason == ReasonSuperseded {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a superseded cancellation record for shade 1, got %+v", stats.RecentCancellations)
	}
	// The raise burst should have fired once (offset 0) before being cancelled.
	if got := tx.callCount(1); got < 1 {
		t.Errorf("expected at least one transmission before cancellation, got %d", got)
	}
}

func TestCancelShade(t *testing.T) {
	tx := newFakeTransmitter()
	sched := NewScheduler(tx, []time.Duration{0, 500 * time.Millisecond})

	sched.EnqueueShade(2, shadestore.ActionStop)
	time.Sleep(5 * time.Millisecond)

	if !sched.CancelShade(2) {
		t.Fatalf("expected CancelShade to find an active task")
	}
	if sched.CancelShade(2) {
		t.Errorf("expected second CancelShade call to find nothing")
	}
}

func TestReleaseClearsOwnershipAfterBurst(t *testing.T) {
	tx := newFakeTransmitter()
	sched := NewScheduler(tx, fastSchedule)

	sched.EnqueueShade(3, shadestore.ActionRaise)
	time.Sleep(100 * time.Millisecond)

	stats := sched.Stats()
	if _, stillOwned := stats.ShadeOwners[3]; stillOwned {
		t.Errorf("expected shade 3's ownership to be released once its burst finished")
	}
	if stats.ActiveTasks != 0 {
		t.Errorf("expected no active tasks after burst completion, got %d", stats.ActiveTasks)
	}
}

func TestBeginSceneStepSharesOwnershipWithBursts(t *testing.T) {
	tx := newFakeTransmitter()
	sched := NewScheduler(tx, []time.Duration{0, 500 * time.Millisecond})

	sched.EnqueueShade(4, shadestore.ActionRaise)
	time.Sleep(5 * time.Millisecond)

	// A scene step touching the same shade should supersede the burst task,
	// per the shared shade-ownership map (spec.md I4).
	_, done := sched.BeginSceneStep(4, "morning")
	done()

	stats := sched.Stats()
	supersededFound := false
	for _, rec := range stats.RecentCancellations {
		if rec.ShadeID == 4 && rec.Reason == ReasonSuperseded {
			supersededFound = true
		}
	}
	if !supersededFound {
		t.Errorf("expected scene step to supersede the running burst for shade 4")
	}
}
