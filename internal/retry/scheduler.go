package retry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shadecommander/dispatcher/internal/observability"
	"github.com/shadecommander/dispatcher/internal/shadestore"
)

const (
	// maxRecentCancellations bounds the cancellation-reason ring
	// (SPEC_FULL.md §12).
	maxRecentCancellations = 50

	// taskWallClockCap is the per-task self-bound timeout (spec.md §4.4,
	// §5): "wrapping its execution in an overall timeout of 10 s".
	taskWallClockCap = 10 * time.Second
)

// DefaultSchedule is the canonical three-pulse burst (spec.md §4.4, open
// question resolved in SPEC_FULL.md §13.1): offsets from task start, in
// order. The 650ms first gap respects the firmware's ~750ms RF transmit
// cycle so a second write isn't coalesced with the first.
var DefaultSchedule = []time.Duration{0, 650 * time.Millisecond, 1500 * time.Millisecond}

// Transmitter performs exactly one RF transmission for shadeID/action,
// threading C1 (directory lookup) -> C3 (encode) -> C2 (link write). The
// scheduler depends only on this narrow interface, the same way the
// teacher's Scheduler depends on a narrow ReconcilerInterface rather than
// the full reconciler.
type Transmitter interface {
	Transmit(ctx context.Context, shadeID int64, action shadestore.Action) error
}

// Scheduler is C4: it owns every in-flight retry task and the single
// shade-to-task ownership map scene steps and single-shade bursts share
// (spec.md I4).
type Scheduler struct {
	transmitter Transmitter
	schedule    []time.Duration

	mu          sync.Mutex // guards everything below; distinct from the link's write lock (spec.md §9)
	counter     uint64
	activeTasks map[TaskID]*runningTask
	shadeOwner  map[int64]TaskID

	recentCancellations []CancellationRecord
	zombieSuspicious     int
	zombieKilled         int
	lastMidnightReset    time.Time

	stopSweep context.CancelFunc
}

// NewScheduler builds a Scheduler. schedule defaults to DefaultSchedule
// when nil.
func NewScheduler(transmitter Transmitter, schedule []time.Duration) *Scheduler {
	if schedule == nil {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		transmitter:       transmitter,
		schedule:          schedule,
		activeTasks:       make(map[TaskID]*runningTask),
		shadeOwner:        make(map[int64]TaskID),
		lastMidnightReset: time.Now(),
	}
}

// StartZombieSweep launches the periodic sweep described in spec.md §4.4
// ("approximately once per minute"). Call Stop to end it.
func (s *Scheduler) StartZombieSweep(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	s.stopSweep = cancel
	go s.sweepLoop(ctx, interval)
}

// Stop cancels every active task and, if running, the zombie sweep.
func (s *Scheduler) Stop() {
	if s.stopSweep != nil {
		s.stopSweep()
	}
	s.CancelAll()
}

// EnqueueShade implements spec.md §4.4's latest-command-wins enqueue. It
// never blocks on the link and returns as soon as the task is registered.
func (s *Scheduler) EnqueueShade(shadeID int64, action shadestore.Action) TaskID {
	s.mu.Lock()
	if prior, ok := s.shadeOwner[shadeID]; ok {
		s.cancelLocked(prior, ReasonSuperseded)
	}

	taskID := s.nextTaskIDLocked()
	ctx, cancel := context.WithTimeout(context.Background(), taskWallClockCap)
	rt := &runningTask{
		id:        taskID,
		shadeID:   shadeID,
		action:    action,
		startedAt: time.Now(),
		cancel:    cancel,
		kind:      "burst",
	}
	s.activeTasks[taskID] = rt
	s.shadeOwner[shadeID] = taskID
	s.mu.Unlock()

	observability.RetryActiveTasks.Inc()
	go s.runBurst(ctx, rt)
	return taskID
}

// CancelShade cancels the task currently owning shadeID, if any.
func (s *Scheduler) CancelShade(shadeID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	taskID, ok := s.shadeOwner[shadeID]
	if !ok {
		return false
	}
	return s.cancelLocked(taskID, ReasonExplicit)
}

// CancelTask cancels a specific task by id.
func (s *Scheduler) CancelTask(taskID TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(taskID, ReasonExplicit)
}

// CancelAll cancels every active task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	ids := make([]TaskID, 0, len(s.activeTasks))
	for id := range s.activeTasks {
		ids = append(ids, id)
	}
	for _, id := range ids {
		s.cancelLocked(id, ReasonShutdown)
	}
	s.mu.Unlock()
}

// Stats returns a snapshot for the introspection surface (spec.md §6).
func (s *Scheduler) Stats() TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make(map[int64]TaskID, len(s.shadeOwner))
	for k, v := range s.shadeOwner {
		owners[k] = v
	}
	recent := make([]CancellationRecord, len(s.recentCancellations))
	copy(recent, s.recentCancellations)

	return TaskStats{
		ActiveTasks:          len(s.activeTasks),
		ShadeOwners:          owners,
		RecentCancellations:  recent,
		ZombieSuspicious:     s.zombieSuspicious,
		ZombieKilled:         s.zombieKilled,
	}
}

// BeginSceneStep registers shadeID's owner as a scene step (spec.md I4 /
// §4.5): any existing owner — single-shade task or a previous step — is
// cancelled first. The caller must invoke the returned done func exactly
// once, immediately after its single transmission, to release ownership
// before the step's post-delay sleep.
func (s *Scheduler) BeginSceneStep(shadeID int64, sceneName string) (ctx context.Context, done func()) {
	s.mu.Lock()
	if prior, ok := s.shadeOwner[shadeID]; ok {
		s.cancelLocked(prior, ReasonSuperseded)
	}

	taskID := s.nextTaskIDLocked()
	stepCtx, cancel := context.WithCancel(context.Background())
	rt := &runningTask{
		id:        taskID,
		shadeID:   shadeID,
		startedAt: time.Now(),
		cancel:    cancel,
		kind:      "scene-step",
		label:     sceneName,
	}
	s.activeTasks[taskID] = rt
	s.shadeOwner[shadeID] = taskID
	s.mu.Unlock()

	observability.RetryActiveTasks.Inc()
	return stepCtx, func() { s.release(rt) }
}

// runBurst executes the fire-and-forget burst for a single-shade command
// (spec.md §4.4). Every exit path — completion, cancellation, or the
// overall timeout firing — runs release via the deferred call, satisfying
// the guaranteed-release hook (spec.md I2/I3).
func (s *Scheduler) runBurst(ctx context.Context, rt *runningTask) {
	defer s.release(rt)

	for _, offset := range s.schedule {
		wait := time.Until(rt.startedAt.Add(offset))
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		if err := s.transmitter.Transmit(ctx, rt.shadeID, rt.action); err != nil {
			// Silent-failure contract (spec.md §7): logged and counted,
			// never surfaced to the enqueue caller. The burst continues.
			log.Printf("retry: transmission failed for shade %d task %s: %v", rt.shadeID, rt.id, err)
		}
	}
}

// release is the guaranteed-release hook: it always removes the task from
// activeTasks, and from shadeOwner only if it is still the registered
// owner (a newer task may already have taken that slot).
func (s *Scheduler) release(rt *runningTask) {
	rt.cancel()

	s.mu.Lock()
	delete(s.activeTasks, rt.id)
	if s.shadeOwner[rt.shadeID] == rt.id {
		delete(s.shadeOwner, rt.shadeID)
	}
	s.mu.Unlock()

	observability.RetryActiveTasks.Dec()
}

// cancelLocked signals cancellation to taskID and drops its shade
// ownership at once, so a repeated cancel of the same shade finds nothing;
// the task's own release hook removes it from activeTasks once it observes
// ctx.Done(). Caller must hold s.mu.
func (s *Scheduler) cancelLocked(taskID TaskID, reason CancellationReason) bool {
	rt, ok := s.activeTasks[taskID]
	if !ok {
		return false
	}
	rt.cancel()
	if s.shadeOwner[rt.shadeID] == taskID {
		delete(s.shadeOwner, rt.shadeID)
	}
	s.recordCancellationLocked(rt.shadeID, reason)
	return true
}

func (s *Scheduler) recordCancellationLocked(shadeID int64, reason CancellationReason) {
	rec := CancellationRecord{ShadeID: shadeID, Reason: reason, At: time.Now()}
	s.recentCancellations = append(s.recentCancellations, rec)
	if len(s.recentCancellations) > maxRecentCancellations {
		s.recentCancellations = s.recentCancellations[len(s.recentCancellations)-maxRecentCancellations:]
	}
	observability.RetryCancellationsTotal.WithLabelValues(string(reason)).Inc()
}

func (s *Scheduler) nextTaskIDLocked() TaskID {
	s.counter++
	return newTaskID(s.counter, time.Now())
}
