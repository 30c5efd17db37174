package frame

import (
	"errors"
	"testing"

	"github.com/shadecommander/dispatcher/internal/shadestore"
)

func baseRecord() *shadestore.ShadeRecord {
	return &shadestore.ShadeRecord{
		ShadeID:      1,
		RemoteID:     254,
		RemoteFamily: shadestore.Family6Channel,
		ChannelTag:   "A1",
		Header:       "5C 2D 0D 39",
		IDBytes:      "FE FF",
		Up:           "F4 69",
		Down:         "FF FF",
		Stop:         "FF FF",
		CommonHex:    "80",
	}
}

func TestEncodeUp(t *testing.T) {
	cmd, err := Encode(baseRecord(), shadestore.ActionRaise)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "TX:FE,5C2D0D39,FEFF,F469,0,80,0,0"
	if string(cmd) != want {
		t.Errorf("got %q, want %q", cmd, want)
	}
}

func TestEncodeCCDown(t *testing.T) {
	rec := baseRecord()
	rec.ChannelTag = "CC"
	rec.RemoteFamily = shadestore.Family16Channel
	rec.Down = "AA BB"

	cmd, err := Encode(rec, shadestore.ActionLower)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "TX:FE,5C2D0D39,FEFF,AABB,1,80,1,1"
	if string(cmd) != want {
		t.Errorf("got %q, want %q", cmd, want)
	}
}

func TestEncodeActionNotConfigured(t *testing.T) {
	rec := baseRecord()
	_, err := Encode(rec, shadestore.ActionStop)
	if !errors.Is(err, ErrActionNotConfigured) {
		t.Fatalf("expected ErrActionNotConfigured, got %v", err)
	}
}

func TestEncodeIsStable(t *testing.T) {
	rec := baseRecord()
	a, err := Encode(rec, shadestore.ActionRaise)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Encode(rec, shadestore.ActionRaise)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("encode is not stable across calls: %q != %q", a, b)
	}
}

func TestLineAppendsNewline(t *testing.T) {
	cmd := TxCommand("TX:FE,5C2D0D39,FEFF,F469,0,80,0,0")
	if cmd.Line() != string(cmd)+"\n" {
		t.Errorf("Line() did not append a trailing newline")
	}
}
