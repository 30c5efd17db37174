package scene

import "testing"

func TestValidateRejectsEmptyCommands(t *testing.T) {
	d := &Definition{Name: "x", RetryCount: 0, TimeoutSeconds: 10}
	if err := d.Validate(); err == nil {
		t.Fatalf("expected an error for a scene with no commands")
	}
}

func TestValidateRejectsOutOfRangeRetryCount(t *testing.T) {
	d := &Definition{
		Name:           "x",
		Commands:       []Step{{ShadeID: 1, ActionCode: "u"}},
		RetryCount:     6,
		TimeoutSeconds: 10,
	}
	if err := d.Validate(); err == nil {
		t.Fatalf("expected an error for retry_count out of range")
	}
}

func TestValidateRejectsUnknownAction(t *testing.T) {
	d := &Definition{
		Name:           "x",
		Commands:       []Step{{ShadeID: 1, ActionCode: "sideways"}},
		RetryCount:     0,
		TimeoutSeconds: 10,
	}
	if err := d.Validate(); err == nil {
		t.Fatalf("expected an error for an unknown action code")
	}
}

func TestResolveRejectsTimeoutAboveProcessCeiling(t *testing.T) {
	d := &Definition{
		Name:           "x",
		Commands:       []Step{{ShadeID: 1, ActionCode: "u"}},
		RetryCount:     0,
		TimeoutSeconds: 300,
	}
	over := 400
	if _, _, err := d.Resolve(Overrides{TimeoutSeconds: &over}); err == nil {
		t.Fatalf("expected an error for a timeout override above the process ceiling")
	}
}

func TestPlanComputesAbsoluteOffsetsAcrossCycles(t *testing.T) {
	d := &Definition{
		Name: "x",
		Commands: []Step{
			{ShadeID: 1, ActionCode: "u", DelayMs: 100},
			{ShadeID: 2, ActionCode: "d", DelayMs: 200},
		},
		RetryCount:     1,
		TimeoutSeconds: 10,
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	plan, retryCount, timeoutSeconds, err := d.Plan(Overrides{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retryCount != 1 || timeoutSeconds != 10 {
		t.Fatalf("unexpected resolved retryCount=%d timeoutSeconds=%d", retryCount, timeoutSeconds)
	}
	if len(plan) != 4 {
		t.Fatalf("expected 2 cycles x 2 steps = 4 planned steps, got %d", len(plan))
	}

	// cycle 0: step 0 at offset 0, step 1 at offset 100 (step 0's delay).
	// step 1 is last in its cycle, so its delay (200) is not slept; cycle 1
	// starts after the inter-cycle gap alone.
	if plan[0].OffsetMs != 0 {
		t.Errorf("expected plan[0].OffsetMs=0, got %d", plan[0].OffsetMs)
	}
	if plan[1].OffsetMs != 100 {
		t.Errorf("expected plan[1].OffsetMs=100, got %d", plan[1].OffsetMs)
	}
	wantCycle1Start := 100 + interCycleDelayMs
	if plan[2].OffsetMs != wantCycle1Start {
		t.Errorf("expected plan[2].OffsetMs=%d, got %d", wantCycle1Start, plan[2].OffsetMs)
	}
}
