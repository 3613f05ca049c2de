package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared with a sleeper that moves
// time forward instead of sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// advanceSleeper advances the fake clock instead of blocking, and records
// every requested sleep.
type advanceSleeper struct {
	clock *fakeClock
	slept []time.Duration
}

func (s *advanceSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.slept = append(s.slept, d)
	s.clock.Advance(d)
	return nil
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock, *advanceSleeper) {
	clk := newFakeClock()
	l := New(cfg, clk)
	sleeper := &advanceSleeper{clock: clk}
	l.SetSleeper(sleeper)
	return l, clk, sleeper
}

func TestTryAcquireExactWindowBoundary(t *testing.T) {
	t.Parallel()

	l, clk, _ := newTestLimiter(Config{RequestsPerWindow: 200, Window: time.Minute})

	// Fill the window: 200 acquisitions at t0 all succeed.
	for i := 0; i < 200; i++ {
		require.True(t, l.TryAcquire(), "acquisition %d should fit in the window", i)
	}
	require.False(t, l.TryAcquire(), "201st acquisition inside the window must fail")

	// One second short of the window the oldest stamp is still inside it.
	clk.Advance(59 * time.Second)
	require.False(t, l.TryAcquire())

	// Once the trailing 60 seconds no longer contain all 200 stamps,
	// acquisition succeeds again.
	clk.Advance(1*time.Second + time.Millisecond)
	require.True(t, l.TryAcquire())
}

func TestTryAcquireRollingEviction(t *testing.T) {
	t.Parallel()

	l, clk, _ := newTestLimiter(Config{RequestsPerWindow: 3, Window: time.Minute})

	require.True(t, l.TryAcquire())
	clk.Advance(30 * time.Second)
	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	require.False(t, l.TryAcquire())

	// 31s later the first stamp has left the window; exactly one slot frees.
	clk.Advance(31 * time.Second)
	require.True(t, l.TryAcquire())
	require.False(t, l.TryAcquire())
}

func TestAwaitSlotBlocksUntilWindowFrees(t *testing.T) {
	t.Parallel()

	l, _, sleeper := newTestLimiter(Config{RequestsPerWindow: 2, Window: time.Minute})

	ctx := context.Background()
	require.NoError(t, l.AwaitSlot(ctx))
	require.NoError(t, l.AwaitSlot(ctx))
	require.Empty(t, sleeper.slept, "first two slots should be immediate")

	// Third slot has to wait out the window.
	require.NoError(t, l.AwaitSlot(ctx))
	require.NotEmpty(t, sleeper.slept)

	var total time.Duration
	for _, d := range sleeper.slept {
		total += d
	}
	require.GreaterOrEqual(t, total, time.Minute)
}

func TestAwaitSlotAppliesSlowServerPenalty(t *testing.T) {
	t.Parallel()

	l, _, sleeper := newTestLimiter(Config{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		SlowThreshold:     500 * time.Millisecond,
		SlowPenalty:       200 * time.Millisecond,
	})

	ctx := context.Background()

	// Fast responses incur no penalty.
	l.RecordLatency(100 * time.Millisecond)
	require.NoError(t, l.AwaitSlot(ctx))
	require.Empty(t, sleeper.slept)

	// A slow response adds the fixed penalty after acquiring.
	l.RecordLatency(700 * time.Millisecond)
	require.NoError(t, l.AwaitSlot(ctx))
	require.Equal(t, []time.Duration{200 * time.Millisecond}, sleeper.slept)
}

func TestAwaitSlotHonorsContext(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter(Config{RequestsPerWindow: 1, Window: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.AwaitSlot(ctx))

	cancel()
	err := l.AwaitSlot(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLimiterConcurrentAcquire(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLimiter(Config{RequestsPerWindow: 50, Window: time.Minute})

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 50, granted)
}
