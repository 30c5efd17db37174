package retry

import (
	"context"
	"log"
	"time"

	"github.com/shadecommander/dispatcher/internal/observability"
)

const (
	// suspiciousAge and zombieAge are the two thresholds from spec.md
	// §4.4: expected burst duration is <= 2s for a three-pulse schedule,
	// so anything past 6s is worth a warning and past 12s is forcibly
	// reclaimed.
	suspiciousAge = 6 * time.Second
	zombieAge     = 12 * time.Second
)

// sweepLoop runs the periodic zombie sweep on a cooperative timer — the
// "thread-plus-async mixture" the teacher's LockJanitor used is collapsed
// here to a single ticker goroutine per spec.md §9's redesign note.
func (s *Scheduler) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	now := time.Now()

	s.mu.Lock()
	for id, rt := range s.activeTasks {
		age := now.Sub(rt.startedAt)

		if age > zombieAge {
			log.Printf("retry: task %s (shade %d) is a zombie at age %v; force-cancelling", id, rt.shadeID, age)
			s.cancelLocked(id, ReasonZombie)
			s.zombieKilled++
			observability.RetryZombiesTotal.WithLabelValues("killed").Inc()
			continue
		}

		if age > suspiciousAge {
			if rt.suspiciousFlagged {
				log.Printf("retry: task %s (shade %d) still running after %v", id, rt.shadeID, age)
				s.zombieSuspicious++
				observability.RetryZombiesTotal.WithLabelValues("suspicious").Inc()
			} else {
				rt.suspiciousFlagged = true
			}
		}
	}

	if isNewLocalDay(s.lastMidnightReset, now) {
		s.zombieSuspicious = 0
		s.zombieKilled = 0
		s.lastMidnightReset = now
	}
	s.mu.Unlock()
}

// isNewLocalDay reports whether now falls on a different local calendar
// day than last, implementing spec.md §4.4's "reset at midnight local
// time".
func isNewLocalDay(last, now time.Time) bool {
	ly, lm, ld := last.Local().Date()
	ny, nm, nd := now.Local().Date()
	return ly != ny || lm != nm || ld != nd
}
