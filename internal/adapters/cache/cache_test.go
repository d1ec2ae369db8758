package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"timeclock/internal/core/state"
)

// fakeKV implements store.KV in memory with an error switch
type fakeKV struct {
	data map[string]string
	fail bool
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) Get(_ context.Context, key string) (string, bool, error) {
	if f.fail {
		return "", false, errors.New("kv down")
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	if f.fail {
		return errors.New("kv down")
	}
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	if f.fail {
		return errors.New("kv down")
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) Close() error { return nil }

func TestRedis_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	c := NewRedis(kv, 0)

	if _, ok := c.LastActivity(ctx, "u1"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	want := LastActivity{
		LastInputTs:     time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		LastHeartbeatTs: time.Date(2025, 1, 15, 10, 0, 30, 0, time.UTC),
	}
	c.SetLastActivity(ctx, "u1", want)
	got, ok := c.LastActivity(ctx, "u1")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if !got.LastInputTs.Equal(want.LastInputTs) || !got.LastHeartbeatTs.Equal(want.LastHeartbeatTs) {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}

	c.SetState(ctx, "u1", state.Working)
	if s, ok := c.State(ctx, "u1"); !ok || s != state.Working {
		t.Fatalf("state = %q ok=%v, want WORKING", s, ok)
	}

	c.SetAttendance(ctx, "u1", map[string]any{"date": "2025-01-15"})
	if _, ok := kv.data[keyAttendance("u1")]; !ok {
		t.Fatalf("attendance snapshot not written")
	}

	c.Clear(ctx, "u1")
	if _, ok := c.LastActivity(ctx, "u1"); ok {
		t.Fatalf("expected miss after clear")
	}
	if _, ok := c.State(ctx, "u1"); ok {
		t.Fatalf("expected state miss after clear")
	}
}

func TestRedis_DegradesOnFailure(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	kv.fail = true
	c := NewRedis(kv, time.Hour)

	// writes and reads must not panic or surface errors
	c.SetLastActivity(ctx, "u1", LastActivity{LastInputTs: time.Now()})
	c.SetState(ctx, "u1", state.Idle)
	c.Clear(ctx, "u1")
	if _, ok := c.LastActivity(ctx, "u1"); ok {
		t.Fatalf("failing backend must read as a miss")
	}
	if _, ok := c.State(ctx, "u1"); ok {
		t.Fatalf("failing backend must read as a miss")
	}
}

func TestRedis_NilKV(t *testing.T) {
	ctx := context.Background()
	c := NewRedis(nil, 0)
	c.SetState(ctx, "u1", state.Lunch)
	if _, ok := c.State(ctx, "u1"); ok {
		t.Fatalf("nil KV must behave as a permanent miss")
	}
	c.Clear(ctx, "u1")
}

func TestRedis_CorruptPayloadIsMiss(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV()
	kv.data[keyActivity("u1")] = "{not json"
	c := NewRedis(kv, 0)
	if _, ok := c.LastActivity(ctx, "u1"); ok {
		t.Fatalf("corrupt payload must read as a miss")
	}
}

func TestMemory_Basics(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	c.SetLastActivity(ctx, "u1", LastActivity{LastHeartbeatTs: time.Unix(100, 0)})
	if v, ok := c.LastActivity(ctx, "u1"); !ok || !v.LastHeartbeatTs.Equal(time.Unix(100, 0)) {
		t.Fatalf("memory round trip failed: %+v ok=%v", v, ok)
	}
	c.SetState(ctx, "u1", state.Working)
	c.Clear(ctx, "u1")
	if _, ok := c.State(ctx, "u1"); ok {
		t.Fatalf("expected miss after clear")
	}
}
