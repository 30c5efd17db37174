package link

import "testing"

func TestDedupe(t *testing.T) {
	in := []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB0"}
	out := dedupe(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique paths, got %d: %v", len(out), out)
	}
}

func TestCandidatePathsReturnsNoDuplicates(t *testing.T) {
	// CandidatePaths globs real device directories, which are typically
	// empty in a test environment; it must still return cleanly.
	paths := CandidatePaths()
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			t.Errorf("duplicate candidate path: %s", p)
		}
		seen[p] = true
	}
}
