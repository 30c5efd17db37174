// Package retry implements C4, the retry scheduler: the fire-and-forget
// burst scheduler, latest-command-wins arbitration, and zombie detection
// described in spec.md §4.4.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/shadecommander/dispatcher/internal/shadestore"
)

// TaskID is a process-unique opaque string encoding a monotonic counter and
// the task's creation epoch in milliseconds, to aid log correlation
// (spec.md §3, §4.4).
type TaskID string

func newTaskID(counter uint64, createdAt time.Time) TaskID {
	return TaskID(fmt.Sprintf("%d-%d", counter, createdAt.UnixMilli()))
}

// CancellationReason records why a task's registration was cancelled —
// a supplement over spec.md's bare counters, grounded on
// original_source's async_retry_service.py cancellation bookkeeping (see
// SPEC_FULL.md §12).
type CancellationReason string

const (
	ReasonSuperseded   CancellationReason = "superseded"
	ReasonExplicit     CancellationReason = "explicit_cancel"
	ReasonSceneRelease CancellationReason = "scene_step_release"
	ReasonZombie       CancellationReason = "zombie"
	ReasonShutdown     CancellationReason = "shutdown"
)

// CancellationRecord is one entry in the bounded recent-cancellations ring.
type CancellationRecord struct {
	ShadeID int64
	Reason  CancellationReason
	At      time.Time
}

// runningTask is the scheduler's internal handle for one in-flight burst or
// scene step (RetryTask in spec.md §3).
type runningTask struct {
	id        TaskID
	shadeID   int64
	action    shadestore.Action
	startedAt time.Time
	cancel    context.CancelFunc

	// kind distinguishes a single-shade burst from a scene step sharing
	// the same ownership map (spec.md I4); label carries the owning
	// scene's name for scene steps.
	kind  string
	label string

	suspiciousFlagged bool
}

// TaskStats is the introspection surface of spec.md §4.4/§6.
type TaskStats struct {
	ActiveTasks         int
	ShadeOwners         map[int64]TaskID
	RecentCancellations []CancellationRecord
	ZombieSuspicious     int
	ZombieKilled         int
}
