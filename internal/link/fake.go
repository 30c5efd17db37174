package link

import (
	"bytes"
	"sync"
	"time"
)

// FakeSerialPort is an in-memory SerialPort used by the link package's
// tests in place of a real device — the role MockReconciler/MockStore play
// in the teacher's scheduler tests.
type FakeSerialPort struct {
	mu     sync.Mutex
	writes []RecordedWrite
	reply  string
	closed bool
}

// RecordedWrite captures one write with its wall-clock timestamp, letting
// tests assert burst timing (spec.md §8 scenario 5).
type RecordedWrite struct {
	Text string
	At   time.Time
}

// NewFakeSerialPort builds a fake that replies with reply to every read
// (typically an INFO identification string like "shade-controller ready").
func NewFakeSerialPort(reply string) *FakeSerialPort {
	return &FakeSerialPort{reply: reply}
}

func (f *FakeSerialPort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, RecordedWrite{Text: string(bytes.TrimRight(p, "\n")), At: time.Now()})
	return len(p), nil
}

func (f *FakeSerialPort) Read(p []byte) (int, error) {
	if f.reply == "" {
		return 0, nil
	}
	n := copy(p, []byte(f.reply+"\n"))
	f.reply = "" // one reply per open, like a real INFO probe
	return n, nil
}

func (f *FakeSerialPort) Flush() error { return nil }

func (f *FakeSerialPort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Writes returns a snapshot of everything written so far.
func (f *FakeSerialPort) Writes() []RecordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

// NewFakeOpener returns an Opener that always succeeds with the same
// FakeSerialPort (also returned, for inspecting writes), re-armed on every
// open to identify once as reply.
func NewFakeOpener(reply string) (Opener, *FakeSerialPort) {
	port := NewFakeSerialPort(reply)
	return func(path string, readTimeout time.Duration) (SerialPort, error) {
		port.mu.Lock()
		port.reply = reply
		port.mu.Unlock()
		return port, nil
	}, port
}
