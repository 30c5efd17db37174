package scene

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shadecommander/dispatcher/internal/observability"
	"github.com/shadecommander/dispatcher/internal/shadestore"
)

// Transmitter performs exactly one RF transmission — the same contract
// retry.Transmitter exposes, kept as its own narrow interface here so this
// package does not need to import internal/retry.
type Transmitter interface {
	Transmit(ctx context.Context, shadeID int64, action shadestore.Action) error
}

// StepArbiter is the slice of the retry scheduler a scene step needs: the
// shared shade-ownership map (spec.md I4). Implemented by
// *retry.Scheduler.
type StepArbiter interface {
	BeginSceneStep(shadeID int64, sceneName string) (ctx context.Context, done func())
}

var taskCounter atomic.Uint64

func newSceneTaskID() string {
	n := taskCounter.Add(1)
	return fmt.Sprintf("scene-%d-%d", n, time.Now().UnixMilli())
}

// Executor is C5. It queues at most one scene task at a time; enqueuing a
// new scene cancels whatever scene task is currently running, regardless
// of name (spec.md §4.5, step 1: "Cancels any currently running scene
// task").
type Executor struct {
	store       Store
	arbiter     StepArbiter
	transmitter Transmitter
	log         *ExecutionLog

	mu            sync.Mutex
	currentTaskID string
	currentCancel context.CancelFunc
}

// NewExecutor builds a scene Executor.
func NewExecutor(store Store, arbiter StepArbiter, transmitter Transmitter) *Executor {
	return &Executor{
		store:       store,
		arbiter:     arbiter,
		transmitter: transmitter,
		log:         NewExecutionLog(),
	}
}

// Log exposes the bounded execution-record ring for the introspection
// surface (spec.md §6: "fetch recent scene execution log").
func (e *Executor) Log() *ExecutionLog {
	return e.log
}

// EnqueueScene implements spec.md §4.5's enqueue_scene. NotFound and
// SceneInvalid are returned synchronously, before anything is queued
// (spec.md §7); in dry-run mode the resolved plan is returned with no
// task created at all.
func (e *Executor) EnqueueScene(ctx context.Context, name string, o Overrides) (taskID string, plan []PlannedStep, err error) {
	def, err := e.store.Get(ctx, name)
	if err != nil {
		return "", nil, err
	}

	plan, retryCount, timeoutSeconds, err := def.Plan(o)
	if err != nil {
		return "", nil, err
	}
	if o.DryRun {
		return "", plan, nil
	}

	id := newSceneTaskID()
	runCtx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)

	e.mu.Lock()
	if e.currentCancel != nil {
		e.currentCancel() // latest-scene-wins, across scenes
	}
	e.currentTaskID = id
	e.currentCancel = cancel
	e.mu.Unlock()

	go e.run(runCtx, id, def, retryCount)
	return id, plan, nil
}

// run drives the cycles x steps sequence described in spec.md §4.5.
func (e *Executor) run(ctx context.Context, taskID string, def *Definition, retryCount int) {
	start := time.Now()
	var outcomes []StepOutcome
	successes, failures := 0, 0
	outcome := "completed"

	cycles := retryCount + 1

cycleLoop:
	for cycle := 0; cycle < cycles; cycle++ {
		for i, step := range def.Commands {
			if ctx.Err() != nil {
				outcome = cancelOutcome(ctx)
				break cycleLoop
			}

			stepCtx, done := e.arbiter.BeginSceneStep(step.ShadeID, def.Name)
			err := e.transmitter.Transmit(stepCtx, step.ShadeID, step.Action)
			done()

			so := StepOutcome{CycleIndex: cycle, StepIndex: i, ShadeID: step.ShadeID, Succeeded: err == nil}
			if err != nil {
				so.Error = err.Error()
				failures++
				log.Printf("scene: step shade %d action %s failed in scene %s cycle %d: %v", step.ShadeID, step.Action, def.Name, cycle, err)
			} else {
				successes++
			}
			outcomes = append(outcomes, so)

			isLastStep := i == len(def.Commands)-1
			if !isLastStep {
				if !sleepCtx(ctx, time.Duration(step.DelayMs)*time.Millisecond) {
					outcome = cancelOutcome(ctx)
					break cycleLoop
				}
			}
		}

		if cycle != cycles-1 {
			if !sleepCtx(ctx, interCycleDelayMs*time.Millisecond) {
				outcome = cancelOutcome(ctx)
				break cycleLoop
			}
		}
	}

	e.finish(taskID)

	duration := time.Since(start)
	observability.SceneExecutionsTotal.WithLabelValues(outcome).Inc()
	observability.SceneDuration.Observe(duration.Seconds())

	e.log.Append(ExecutionRecord{
		SceneName:  def.Name,
		StartedAt:  start,
		TotalSteps: len(outcomes),
		Successes:  successes,
		Failures:   failures,
		Duration:   duration,
		Outcome:    outcome,
		Steps:      outcomes,
	})
}

// finish is the scene task's guaranteed-release hook: it clears the
// executor's bookkeeping only if taskID is still the current one (a newer
// scene may already have taken its place).
func (e *Executor) finish(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentTaskID == taskID {
		e.currentTaskID = ""
		e.currentCancel = nil
	}
}

func cancelOutcome(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	return "cancelled"
}

// sleepCtx sleeps for d, returning false if ctx was cancelled or its
// deadline passed first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
