// Package ratelimit implements the adaptive sliding-window request throttle.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lmei/steamscout/internal/metrics"
)

// Clock supplies the current time; injectable for simulated-clock tests.
type Clock interface {
	Now() time.Time
}

// Sleeper pauses cooperatively; injectable so tests do not sleep for real.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// timerSleeper sleeps on a real timer, honoring context cancellation.
type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerWindow caps how many acquisitions fit in one rolling window.
	RequestsPerWindow int
	// Window is the rolling window length.
	Window time.Duration
	// SlowThreshold is the response latency above which SlowPenalty applies.
	SlowThreshold time.Duration
	// SlowPenalty is the extra delay inserted after acquiring a slot when
	// the last observed response was slow.
	SlowPenalty time.Duration
}

// Limiter bounds outbound requests to RequestsPerWindow per rolling Window
// and slows down further when the remote looks overloaded. Safe for use by
// multiple workers sharing one instance.
type Limiter struct {
	mu          sync.Mutex
	stamps      []time.Time
	lastLatency time.Duration

	limit   int
	window  time.Duration
	slowAt  time.Duration
	penalty time.Duration

	clock   Clock
	sleeper Sleeper
}

// New creates a Limiter with the given config and a real clock.
func New(cfg Config, clock Clock) *Limiter {
	limit := cfg.RequestsPerWindow
	if limit <= 0 {
		limit = 200
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		stamps:  make([]time.Time, 0, limit),
		limit:   limit,
		window:  window,
		slowAt:  cfg.SlowThreshold,
		penalty: cfg.SlowPenalty,
		clock:   clock,
		sleeper: timerSleeper{},
	}
}

// SetSleeper replaces the sleep implementation (tests only).
func (l *Limiter) SetSleeper(s Sleeper) {
	l.sleeper = s
}

// TryAcquire reports whether a request may be issued now and, if so,
// consumes a slot. It never blocks.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// AwaitSlot blocks until TryAcquire succeeds, then applies the slow-server
// penalty delay when the last observed response exceeded the threshold.
func (l *Limiter) AwaitSlot(ctx context.Context) error {
	waited := time.Duration(0)
	for {
		if l.TryAcquire() {
			break
		}
		wait := l.nextFreeIn()
		if err := l.sleeper.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("await rate limit slot: %w", err)
		}
		waited += wait
	}
	if waited > 0 {
		metrics.ObserveRateLimitDelay(waited)
	}

	l.mu.Lock()
	slow := l.penalty > 0 && l.slowAt > 0 && l.lastLatency > l.slowAt
	penalty := l.penalty
	l.mu.Unlock()
	if slow {
		if err := l.sleeper.Sleep(ctx, penalty); err != nil {
			return fmt.Errorf("slow-server penalty: %w", err)
		}
	}
	return nil
}

// RecordLatency feeds the most recent observed response time back into the
// slow-server heuristic.
func (l *Limiter) RecordLatency(d time.Duration) {
	l.mu.Lock()
	l.lastLatency = d
	l.mu.Unlock()
}

// nextFreeIn estimates how long until the oldest in-window stamp expires.
func (l *Limiter) nextFreeIn() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	if len(l.stamps) < l.limit {
		return time.Millisecond
	}
	wait := l.stamps[0].Add(l.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// prune drops stamps that fell out of the rolling window. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.stamps) && !l.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[idx:]...)
	}
}
