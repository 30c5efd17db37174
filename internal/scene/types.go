// Package scene implements C5, the Scene Executor: loading declarative
// multi-shade choreographies and running them as background tasks under
// the same cancellation discipline as single-shade commands (spec.md §4.5).
package scene

import (
	"errors"
	"fmt"

	"github.com/shadecommander/dispatcher/internal/shadestore"
)

// ErrSceneNotFound and ErrSceneInvalid are surfaced synchronously, before
// any task is enqueued (spec.md §7).
var (
	ErrSceneNotFound = errors.New("scene: not found")
	ErrSceneInvalid  = errors.New("scene: invalid definition")
)

// TimeoutCeiling is the process-wide hard cap on scene timeouts (spec.md
// §3, §4.5): "bounded: 1 ≤ t ≤ 300 with an additional process-wide ceiling
// of 300". A single constant because spec.md's own per-scene bound and
// process ceiling happen to coincide at 300s.
const TimeoutCeiling = 300

const (
	minTimeoutSeconds = 1
	maxRetryCount      = 5
)

// Step is one entry of a scene's ordered sequence (SceneStep in spec.md §3).
type Step struct {
	ShadeID    int64             `json:"shade_id"`
	Action     shadestore.Action `json:"-"`
	ActionCode string            `json:"action"` // "u"|"d"|"s", mirrors spec.md §6's store format
	DelayMs    int               `json:"delay_ms"`
}

// Definition is a SceneDefinition (spec.md §3): a name, description,
// ordered steps, retry-cycle count, and total timeout.
type Definition struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Commands       []Step `json:"commands"`
	RetryCount     int    `json:"retry_count"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Validate enforces spec.md §3/§6's bounds, returning ErrSceneInvalid
// wrapping the specific violation.
func (d *Definition) Validate() error {
	if len(d.Commands) == 0 {
		return fmt.Errorf("%w: commands must be non-empty", ErrSceneInvalid)
	}
	if d.RetryCount < 0 || d.RetryCount > maxRetryCount {
		return fmt.Errorf("%w: retry_count %d out of range [0,%d]", ErrSceneInvalid, d.RetryCount, maxRetryCount)
	}
	if d.TimeoutSeconds < minTimeoutSeconds || d.TimeoutSeconds > TimeoutCeiling {
		return fmt.Errorf("%w: timeout_seconds %d out of range [%d,%d]", ErrSceneInvalid, d.TimeoutSeconds, minTimeoutSeconds, TimeoutCeiling)
	}
	for i, step := range d.Commands {
		if step.DelayMs < 0 {
			return fmt.Errorf("%w: step %d has negative delay_ms", ErrSceneInvalid, i)
		}
		action, ok := shadestore.ParseAction(step.ActionCode)
		if !ok {
			return fmt.Errorf("%w: step %d has unknown action %q", ErrSceneInvalid, i, step.ActionCode)
		}
		d.Commands[i].Action = action
	}
	return nil
}

// Overrides lets a caller narrow the retry count and timeout for one
// enqueue, within the permitted ranges (spec.md §4.5).
type Overrides struct {
	RetryCount     *int
	TimeoutSeconds *int
	DryRun         bool
}

// Resolve applies overrides to a validated Definition's retry/timeout. A
// resolved value outside the bounds Validate enforces (which include the
// process ceiling) is rejected with ErrSceneInvalid, not clamped.
func (d *Definition) Resolve(o Overrides) (retryCount, timeoutSeconds int, err error) {
	retryCount = d.RetryCount
	if o.RetryCount != nil {
		retryCount = *o.RetryCount
	}
	if retryCount < 0 || retryCount > maxRetryCount {
		return 0, 0, fmt.Errorf("%w: override retry_count %d out of range [0,%d]", ErrSceneInvalid, retryCount, maxRetryCount)
	}

	timeoutSeconds = d.TimeoutSeconds
	if o.TimeoutSeconds != nil {
		timeoutSeconds = *o.TimeoutSeconds
	}
	if timeoutSeconds < minTimeoutSeconds || timeoutSeconds > TimeoutCeiling {
		return 0, 0, fmt.Errorf("%w: override timeout_seconds %d out of range [%d,%d]", ErrSceneInvalid, timeoutSeconds, minTimeoutSeconds, TimeoutCeiling)
	}
	return retryCount, timeoutSeconds, nil
}

// PlannedStep is one entry of a resolved execution plan, used for both
// dry-run responses and the real run (SPEC_FULL.md §12: dry-run plan
// shape supplemented from original_source/routers/scenes.py).
type PlannedStep struct {
	CycleIndex   int
	StepIndex    int
	ShadeID      int64
	Action       shadestore.Action
	OffsetMs     int
	PostDelayMs  int
}

// Plan resolves a definition plus overrides into the full cycle x step
// sequence with absolute offsets from scene start.
func (d *Definition) Plan(o Overrides) ([]PlannedStep, int, int, error) {
	retryCount, timeoutSeconds, err := d.Resolve(o)
	if err != nil {
		return nil, 0, 0, err
	}

	cycles := retryCount + 1
	var plan []PlannedStep
	offset := 0
	for cycle := 0; cycle < cycles; cycle++ {
		for i, step := range d.Commands {
			plan = append(plan, PlannedStep{
				CycleIndex:  cycle,
				StepIndex:   i,
				ShadeID:     step.ShadeID,
				Action:      step.Action,
				OffsetMs:    offset,
				PostDelayMs: step.DelayMs,
			})
			isLast := i == len(d.Commands)-1
			if !isLast {
				offset += step.DelayMs
			}
		}
		if cycle != cycles-1 {
			offset += interCycleDelayMs
		}
	}
	return plan, retryCount, timeoutSeconds, nil
}

const interCycleDelayMs = 2000
