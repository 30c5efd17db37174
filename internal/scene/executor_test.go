package scene

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shadecommander/dispatcher/internal/shadestore"
)

type fakeStore struct {
	defs map[string]*Definition
}

func (f *fakeStore) Get(_ context.Context, name string) (*Definition, error) {
	d, ok := f.defs[name]
	if !ok {
		return nil, ErrSceneNotFound
	}
	return d, nil
}

func (f *fakeStore) List(_ context.Context) ([]*Definition, error) {
	var out []*Definition
	for _, d := range f.defs {
		out = append(out, d)
	}
	return out, nil
}

// fakeArbiter is a no-op StepArbiter: every step is immediately its own
// owner, which is enough to exercise the executor's sequencing logic
// without pulling in the retry package.
type fakeArbiter struct{}

func (fakeArbiter) BeginSceneStep(_ int64, _ string) (context.Context, func()) {
	return context.Background(), func() {}
}

type fakeTransmitter struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakeTransmitter) Transmit(_ context.Context, shadeID int64, _ shadestore.Action) error {
	f.mu.Lock()
	f.calls = append(f.calls, shadeID)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func simpleScene() *Definition {
	d := &Definition{
		Name: "morning",
		Commands: []Step{
			{ShadeID: 1, ActionCode: "u", DelayMs: 5},
			{ShadeID: 2, ActionCode: "u", DelayMs: 5},
		},
		RetryCount:     0,
		TimeoutSeconds: 5,
	}
	if err := d.Validate(); err != nil {
		panic(err)
	}
	return d
}

func TestEnqueueSceneRunsEveryStep(t *testing.T) {
	store := &fakeStore{defs: map[string]*Definition{"morning": simpleScene()}}
	tx := &fakeTransmitter{}
	exec := NewExecutor(store, fakeArbiter{}, tx)

	taskID, plan, err := exec.EnqueueScene(context.Background(), "morning", Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taskID == "" {
		t.Fatalf("expected a non-empty task id")
	}
	if len(plan) != 2 {
		t.Fatalf("expected a 2-step plan, got %d", len(plan))
	}

	time.Sleep(100 * time.Millisecond)

	if got := tx.callCount(); got != 2 {
		t.Errorf("expected 2 transmissions, got %d", got)
	}

	recent := exec.Log().Recent(1)
	if len(recent) != 1 {
		t.Fatalf("expected one execution record, got %d", len(recent))
	}
	if recent[0].Outcome != "completed" {
		t.Errorf("expected outcome completed, got %s", recent[0].Outcome)
	}
}

func TestEnqueueSceneDryRunEnqueuesNoTask(t *testing.T) {
	store := &fakeStore{defs: map[string]*Definition{"morning": simpleScene()}}
	tx := &fakeTransmitter{}
	exec := NewExecutor(store, fakeArbiter{}, tx)

	taskID, plan, err := exec.EnqueueScene(context.Background(), "morning", Overrides{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taskID != "" {
		t.Errorf("expected no task id for a dry run, got %q", taskID)
	}
	if len(plan) != 2 {
		t.Errorf("expected the resolved plan regardless of dry run, got %d steps", len(plan))
	}

	time.Sleep(20 * time.Millisecond)
	if got := tx.callCount(); got != 0 {
		t.Errorf("expected no transmissions for a dry run, got %d", got)
	}
}

func TestEnqueueSceneUnknownNameIsSynchronousError(t *testing.T) {
	store := &fakeStore{defs: map[string]*Definition{}}
	exec := NewExecutor(store, fakeArbiter{}, &fakeTransmitter{})

	_, _, err := exec.EnqueueScene(context.Background(), "nope", Overrides{})
	if err != ErrSceneNotFound {
		t.Fatalf("expected ErrSceneNotFound, got %v", err)
	}
}

func TestEnqueueSceneLatestSceneWins(t *testing.T) {
	store := &fakeStore{defs: map[string]*Definition{
		"morning": simpleScene(),
		"evening": simpleScene(),
	}}
	tx := &fakeTransmitter{}
	exec := NewExecutor(store, fakeArbiter{}, tx)

	// A slow first-step delay keeps the first scene's task alive long enough to
	// observe cancellation rather than racing to completion.
	slow := simpleScene()
	slow.Commands[0].DelayMs = 300
	store.defs["morning"] = slow

	first, _, err := exec.EnqueueScene(context.Background(), "morning", Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	second, _, err := exec.EnqueueScene(context.Background(), "evening", Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct task ids")
	}

	time.Sleep(150 * time.Millisecond)

	recent := exec.Log().Recent(2)
	var morningOutcome string
	for _, rec := range recent {
		if rec.SceneName == "morning" {
			morningOutcome = rec.Outcome
		}
	}
	if morningOutcome != "cancelled" {
		t.Errorf("expected the superseded morning scene to record outcome cancelled, got %q", morningOutcome)
	}
}
