package state

import (
	"testing"
	"time"
)

func ts(hh, mm, ss int) time.Time {
	return time.Date(2025, 1, 15, hh, mm, ss, 0, time.UTC)
}

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		name    string
		snap    Snapshot
		next    State
		at      time.Time
		want    Credit
		rejects bool
	}{
		{
			name: "init from none credits nothing",
			snap: Snapshot{},
			next: Working,
			at:   ts(9, 0, 0),
			want: Credit{Counter: CounterActive, Seconds: 0, NewState: Working, At: ts(9, 0, 0)},
		},
		{
			name: "working to idle credits active",
			snap: Snapshot{CurrentState: Working, LastChangeAt: ts(9, 0, 0)},
			next: Idle,
			at:   ts(10, 0, 0),
			want: Credit{Counter: CounterActive, Seconds: 3600, NewState: Idle, At: ts(10, 0, 0)},
		},
		{
			name: "idle to working credits idle",
			snap: Snapshot{CurrentState: Idle, LastChangeAt: ts(10, 0, 0)},
			next: Working,
			at:   ts(10, 10, 0),
			want: Credit{Counter: CounterIdle, Seconds: 600, NewState: Working, At: ts(10, 10, 0)},
		},
		{
			name: "lunch to working credits lunch",
			snap: Snapshot{CurrentState: Lunch, LastChangeAt: ts(12, 0, 0)},
			next: Working,
			at:   ts(12, 30, 0),
			want: Credit{Counter: CounterLunch, Seconds: 1800, NewState: Working, At: ts(12, 30, 0)},
		},
		{
			name: "same instant credits zero",
			snap: Snapshot{CurrentState: Working, LastChangeAt: ts(9, 0, 0)},
			next: Lunch,
			at:   ts(9, 0, 0),
			want: Credit{Counter: CounterActive, Seconds: 0, NewState: Lunch, At: ts(9, 0, 0)},
		},
		{
			name:    "clock skew rejected",
			snap:    Snapshot{CurrentState: Working, LastChangeAt: ts(9, 0, 0)},
			next:    Idle,
			at:      ts(8, 59, 59),
			rejects: true,
		},
		{
			name: "unknown prior state falls back to idle counter",
			snap: Snapshot{CurrentState: State("NAPPING"), LastChangeAt: ts(9, 0, 0)},
			next: Working,
			at:   ts(9, 1, 0),
			want: Credit{Counter: CounterIdle, Seconds: 60, NewState: Working, At: ts(9, 1, 0)},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Transition(tc.snap, tc.next, tc.at)
			if tc.rejects {
				if ok {
					t.Fatalf("Transition accepted a negative delta: %+v", got)
				}
				return
			}
			if !ok {
				t.Fatalf("Transition rejected unexpectedly")
			}
			if got != tc.want {
				t.Fatalf("Transition = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestTransition_NeverNegativeCredit(t *testing.T) {
	snap := Snapshot{CurrentState: Working, LastChangeAt: ts(9, 0, 0)}
	for _, at := range []time.Time{ts(9, 0, 0), ts(9, 0, 1), ts(17, 0, 0)} {
		c, ok := Transition(snap, Idle, at)
		if !ok {
			t.Fatalf("rejected forward transition at %v", at)
		}
		if c.Seconds < 0 {
			t.Fatalf("negative credit %d at %v", c.Seconds, at)
		}
	}
}

func TestFinalize(t *testing.T) {
	snap := Snapshot{CurrentState: Idle, LastChangeAt: ts(14, 5, 0)}
	c, ok := Finalize(snap, ts(14, 35, 0))
	if !ok {
		t.Fatalf("Finalize rejected")
	}
	if c.NewState != None {
		t.Fatalf("Finalize left state %q open", c.NewState)
	}
	if c.Counter != CounterIdle || c.Seconds != 1800 {
		t.Fatalf("Finalize credit = %+v, want 1800s idle", c)
	}

	if _, ok := Finalize(snap, ts(14, 0, 0)); ok {
		t.Fatalf("Finalize accepted a negative delta")
	}

	// finalising a never-opened record credits nothing
	c, ok = Finalize(Snapshot{}, ts(23, 59, 59))
	if !ok || c.Seconds != 0 || c.NewState != None {
		t.Fatalf("Finalize of empty snapshot = %+v ok=%v", c, ok)
	}
}

func TestCurrentDurationAt(t *testing.T) {
	snap := Snapshot{CurrentState: Working, LastChangeAt: ts(9, 0, 0)}
	if d := CurrentDurationAt(snap, ts(9, 30, 0)); d != 30*time.Minute {
		t.Fatalf("duration = %v, want 30m", d)
	}
	if d := CurrentDurationAt(snap, ts(8, 0, 0)); d != 0 {
		t.Fatalf("duration before last change = %v, want 0", d)
	}
	if d := CurrentDurationAt(Snapshot{}, ts(9, 0, 0)); d != 0 {
		t.Fatalf("duration with no open state = %v, want 0", d)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name                 string
		active, idle, budget int64
		wantActive, wantIdle int64
	}{
		{"within budget untouched", 3600, 600, 4200, 3600, 600},
		{"idle trimmed first", 3600, 600, 3900, 3600, 300},
		{"idle exhausted then active", 3600, 600, 3000, 3000, 0},
		{"never below zero", 100, 50, 0, 0, 0},
		{"negative budget treated as zero", 100, 50, -10, 0, 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			a, i := Clamp(tc.active, tc.idle, tc.budget)
			if a != tc.wantActive || i != tc.wantIdle {
				t.Fatalf("Clamp = (%d,%d), want (%d,%d)", a, i, tc.wantActive, tc.wantIdle)
			}
			// idempotent
			a2, i2 := Clamp(a, i, tc.budget)
			if a2 != a || i2 != i {
				t.Fatalf("Clamp not idempotent: (%d,%d) -> (%d,%d)", a, i, a2, i2)
			}
		})
	}
}

func TestCounterFor(t *testing.T) {
	if CounterFor(Working) != CounterActive || CounterFor(Idle) != CounterIdle || CounterFor(Lunch) != CounterLunch {
		t.Fatalf("CounterFor mapping broken")
	}
	if CounterFor(State("???")) != CounterIdle {
		t.Fatalf("unknown state should fall back to idle")
	}
}
