package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stepClock is a mutable clock for driving ticks by hand
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestIntervalJob(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
	var runs atomic.Int64
	s := New([]Job{{
		Name:  "sweep",
		Every: 5 * time.Minute,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}}, clock, time.UTC)

	ctx := context.Background()
	s.Tick(ctx)
	waitFor(t, func() bool { return runs.Load() == 1 })

	// within the period: no run
	clock.Advance(time.Minute)
	s.Tick(ctx)
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1 before the period elapses", runs.Load())
	}

	clock.Advance(5 * time.Minute)
	s.Tick(ctx)
	waitFor(t, func() bool { return runs.Load() == 2 })
}

func TestDailyJobFiresOncePerDay(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 1, 15, 23, 50, 0, 0, time.UTC)}
	var runs atomic.Int64
	s := New([]Job{{
		Name: "close-day",
		At:   "23:59",
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}}, clock, time.UTC)

	ctx := context.Background()
	s.Tick(ctx)
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatal("daily job ran before its slot")
	}

	clock.Advance(9 * time.Minute) // 23:59
	s.Tick(ctx)
	waitFor(t, func() bool { return runs.Load() == 1 })

	// later the same day: already ran since the slot
	clock.Advance(30 * time.Second)
	s.Tick(ctx)
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1 for the day", runs.Load())
	}

	// next day's slot fires again
	clock.Advance(24 * time.Hour)
	s.Tick(ctx)
	waitFor(t, func() bool { return runs.Load() == 2 })
}

func TestInFlightJobIsNotStacked(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
	block := make(chan struct{})
	var starts atomic.Int64
	s := New([]Job{{
		Name:  "slow",
		Every: time.Minute,
		Run: func(context.Context) error {
			starts.Add(1)
			<-block
			return nil
		},
	}}, clock, time.UTC)

	ctx := context.Background()
	s.Tick(ctx)
	waitFor(t, func() bool { return starts.Load() == 1 })

	clock.Advance(5 * time.Minute)
	s.Tick(ctx)
	time.Sleep(20 * time.Millisecond)
	if starts.Load() != 1 {
		t.Fatalf("starts = %d, slow job was stacked", starts.Load())
	}

	close(block)
	clock.Advance(5 * time.Minute)
	waitFor(t, func() bool {
		s.Tick(ctx)
		return starts.Load() == 2
	})
}

func TestBadScheduleIsSkipped(t *testing.T) {
	clock := &stepClock{t: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
	var runs atomic.Int64
	s := New([]Job{{
		Name: "broken",
		At:   "25:99",
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}}, clock, time.UTC)

	s.Tick(context.Background())
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatal("job with unparseable schedule ran")
	}
}
