package link

import (
	"context"
	"io"
	"testing"
	"time"
)

func fakeCandidates() []string { return []string{"/dev/fake0"} }

func TestSendLineAutoDetectsAndBinds(t *testing.T) {
	opener, port := NewFakeOpener("shade-controller ready")
	owner := NewOwner(opener, fakeCandidates)

	res, err := owner.SendLine(context.Background(), "TX:FE,5C2D0D39,FEFF,F469,0,80,0,0", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK {
		t.Errorf("expected OK result")
	}
	if owner.Health().State != StateBound {
		t.Errorf("expected owner to be bound after a successful send, got %v", owner.Health().State)
	}

	writes := port.Writes()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes (INFO probe + command), got %d", len(writes))
	}
	if writes[0].Text != "INFO" {
		t.Errorf("expected the first write to be the INFO probe, got %q", writes[0].Text)
	}
	if writes[1].Text != "TX:FE,5C2D0D39,FEFF,F469,0,80,0,0" {
		t.Errorf("unexpected command write: %q", writes[1].Text)
	}
}

func TestSendLineNoMatchingDeviceReturnsErrNoDevice(t *testing.T) {
	opener, _ := NewFakeOpener("") // never identifies as a shade controller
	owner := NewOwner(opener, fakeCandidates)

	_, err := owner.SendLine(context.Background(), "TX:FE,5C2D0D39,FEFF,F469,0,80,0,0", 0)
	if err != ErrNoDevice {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}

func TestReconnectForcesRebinding(t *testing.T) {
	opener, _ := NewFakeOpener("shade-controller ready")
	owner := NewOwner(opener, fakeCandidates)

	if _, err := owner.SendLine(context.Background(), "TX:FE,5C2D0D39,FEFF,F469,0,80,0,0", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner.Health().State != StateBound {
		t.Fatalf("expected bound state before reconnect")
	}

	if err := owner.Reconnect(context.Background()); err != nil {
		t.Fatalf("unexpected reconnect error: %v", err)
	}
	if owner.Health().State != StateBound {
		t.Errorf("expected owner to rebind after Reconnect, got %v", owner.Health().State)
	}
}

func TestIdentifiesDevice(t *testing.T) {
	cases := []struct {
		lines []string
		want  bool
	}{
		{[]string{"shade-controller ready"}, true},
		{[]string{"ARDUINO UNO"}, true},
		{[]string{"unrelated firmware banner"}, false},
		{nil, false},
	}
	for _, c := range cases {
		if got := identifiesDevice(c.lines); got != c.want {
			t.Errorf("identifiesDevice(%v) = %v, want %v", c.lines, got, c.want)
		}
	}
}

func TestReadLinesForRespectsBudget(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	start := time.Now()
	lines := readLinesFor(r, 50*time.Millisecond)
	elapsed := time.Since(start)

	if lines != nil {
		t.Errorf("expected no lines from a silent reader, got %v", lines)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned before the read budget elapsed: %v", elapsed)
	}
}
