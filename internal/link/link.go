// Package link implements C2, the Link Owner: the sole writer of the
// serial line to the shade microcontroller.
package link

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shadecommander/dispatcher/internal/observability"
)

const (
	baudRate          = 115200
	resetWaitDuration = 2 * time.Second
	infoReadBudget    = 3 * time.Second
	probeReadBudget   = 1 * time.Second
	writeTimeout      = 100 * time.Millisecond
	lockAcquireBudget = 1 * time.Second
	rapidFireWindow   = 100 * time.Millisecond
)

var identifyingSubstrings = []string{"shade", "tx", "ready", "arduino"}

// SerialPort is the subset of tarm/serial.Port the Owner depends on; it is
// an interface so tests can substitute a FakeSerialPort instead of an
// actual device.
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// Opener opens a serial device at path, applying the given read timeout.
// Production code wires this to tarm/serial.OpenPort; tests wire in a fake.
type Opener func(path string, readTimeout time.Duration) (SerialPort, error)

// SendResult is the outcome of one send_line call (spec.md §4.2).
type SendResult struct {
	OK         bool
	Responses  []string
	Port       string
	DurationMs int64
}

// Health summarizes the Owner's current connection state for the operator
// surface (spec.md §7; supplemented by original_source's health router —
// see SPEC_FULL.md §12).
type Health struct {
	State State
	Port  string
}

// Owner owns the serial device exclusively; no other component opens it
// (spec.md §9).
type Owner struct {
	open Opener

	// mu is a channel-based mutex so acquisition can be bounded (spec.md
	// §4.2: "Lock acquisition uses a 1-second bounded wait").
	mu chan struct{}

	mState sync.Mutex // guards the fields below; held for bookkeeping and closing the port, never across reads or writes
	state  State
	port   SerialPort
	path   string

	lastWriteAt   time.Time
	rapidFireOK   *rate.Limiter
	candidatePath func() []string
}

// NewOwner constructs an unbound Owner. open is typically OpenSerialPort;
// candidates is typically CandidatePaths.
func NewOwner(open Opener, candidates func() []string) *Owner {
	return &Owner{
		open:          open,
		mu:            make(chan struct{}, 1),
		state:         StateUnbound,
		rapidFireOK:   rate.NewLimiter(rate.Limit(10), 1),
		candidatePath: candidates,
	}
}

// lock acquires the exclusive writer lock with the spec's bounded wait.
func (o *Owner) lock(ctx context.Context) error {
	select {
	case o.mu <- struct{}{}:
		return nil
	case <-time.After(lockAcquireBudget):
		return ErrLinkBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Owner) unlock() {
	<-o.mu
}

// Health reports state for operator introspection.
func (o *Owner) Health() Health {
	o.mState.Lock()
	defer o.mState.Unlock()
	return Health{State: o.state, Port: o.path}
}

// ensureBound auto-detects and binds a device if one is not already bound.
// Must be called with the lock held by the caller of SendLine/Probe.
func (o *Owner) ensureBound(ctx context.Context) error {
	o.mState.Lock()
	bound := o.state == StateBound && o.port != nil
	o.mState.Unlock()
	if bound {
		return nil
	}
	return o.autoDetect(ctx)
}

// autoDetect implements spec.md §4.2's candidate scan. Must be called with
// the writer lock held.
func (o *Owner) autoDetect(ctx context.Context) error {
	for _, path := range o.candidatePath() {
		port, err := o.open(path, infoReadBudget)
		if err != nil {
			continue
		}

		time.Sleep(resetWaitDuration)

		if _, err := io.WriteString(port, "INFO\n"); err != nil {
			port.Close()
			continue
		}

		lines := readLinesFor(port, infoReadBudget)
		if identifiesDevice(lines) {
			o.mState.Lock()
			o.port = port
			o.path = path
			o.state = StateBound
			o.mState.Unlock()
			observability.LinkState.Set(1)
			log.Printf("link: bound serial device at %s", path)
			return nil
		}
		port.Close()
	}
	observability.LinkState.Set(0)
	return ErrNoDevice
}

func identifiesDevice(lines []string) bool {
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, substr := range identifyingSubstrings {
			if strings.Contains(lower, substr) {
				return true
			}
		}
	}
	return false
}

// SendLine writes text (without a trailing newline; one is added) and
// optionally reads for readBudget. A nil error with OK=false never
// happens: failures are one of the sentinel errors in errors.go, or ctx's
// error if ctx ends while waiting for the lock.
func (o *Owner) SendLine(ctx context.Context, text string, readBudget time.Duration) (SendResult, error) {
	if err := o.lock(ctx); err != nil {
		return SendResult{}, err
	}
	defer o.unlock()

	if err := o.ensureBound(ctx); err != nil {
		return SendResult{}, err
	}

	o.mState.Lock()
	port := o.port
	path := o.path
	lastWrite := o.lastWriteAt
	o.mState.Unlock()

	if !lastWrite.IsZero() && time.Since(lastWrite) < rapidFireWindow {
		log.Printf("link: rapid-fire write to %s (%v since previous)", path, time.Since(lastWrite))
	}
	_ = o.rapidFireOK.Allow() // result unused; the elapsed-time check above logs the warning

	start := time.Now()

	// Flush both directions before writing, per spec.md §4.2.
	if err := port.Flush(); err != nil {
		log.Printf("link: flush before write failed on %s: %v", path, err)
	}

	writeErrCh := make(chan error, 1)
	go func() {
		_, err := io.WriteString(port, text+"\n")
		writeErrCh <- err
	}()

	var writeErr error
	select {
	case writeErr = <-writeErrCh:
	case <-time.After(writeTimeout):
		log.Printf("link: slow write to %s (> %v)", path, writeTimeout)
		writeErr = <-writeErrCh // write timeout is logged, not fatal; wait for completion
	}

	observability.LinkWriteDuration.Observe(time.Since(start).Seconds())

	if writeErr != nil {
		observability.LinkWritesTotal.WithLabelValues("error").Inc()
		return SendResult{}, fmt.Errorf("%w: %v", ErrLinkWrite, writeErr)
	}

	o.mState.Lock()
	o.lastWriteAt = time.Now()
	o.mState.Unlock()

	observability.LinkWritesTotal.WithLabelValues("ok").Inc()

	var responses []string
	if readBudget > 0 {
		responses = readLinesFor(port, readBudget)
	}

	return SendResult{
		OK:         true,
		Responses:  responses,
		Port:       path,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Probe sends INFO and reads for up to 1s. It is invoked on demand only —
// never run periodically in the background (spec.md §4.2).
func (o *Owner) Probe(ctx context.Context) (SendResult, error) {
	return o.SendLine(ctx, "INFO", probeReadBudget)
}

// Reconnect explicitly closes any bound device and forces the next
// SendLine/Probe to re-run auto-detection.
func (o *Owner) Reconnect(ctx context.Context) error {
	if err := o.lock(ctx); err != nil {
		return err
	}
	defer o.unlock()

	o.mState.Lock()
	if o.port != nil {
		o.port.Close()
		o.port = nil
	}
	o.path = ""
	o.state = StateUnbound
	o.mState.Unlock()

	observability.LinkState.Set(0)
	return o.autoDetect(ctx)
}

// Close unbinds the device without attempting reconnection.
func (o *Owner) Close() error {
	select {
	case o.mu <- struct{}{}:
		defer o.unlock()
	case <-time.After(lockAcquireBudget):
		return ErrLinkBusy
	}

	o.mState.Lock()
	defer o.mState.Unlock()
	if o.port != nil {
		err := o.port.Close()
		o.port = nil
		o.state = StateUnbound
		observability.LinkState.Set(0)
		return err
	}
	return nil
}

// readLinesFor reads newline-terminated lines from r until budget elapses.
// No reply is not an error (fire-and-forget).
func readLinesFor(r io.Reader, budget time.Duration) []string {
	type lineOrErr struct {
		line string
		err  error
	}
	lines := make(chan lineOrErr)
	done := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- lineOrErr{line: scanner.Text()}:
			case <-done:
				return
			}
		}
	}()

	var out []string
	timer := time.NewTimer(budget)
	defer timer.Stop()
	for {
		select {
		case l := <-lines:
			out = append(out, l.line)
		case <-timer.C:
			close(done)
			return out
		}
	}
}
