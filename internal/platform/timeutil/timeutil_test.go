package timeutil

import (
	"testing"
	"time"

	"timeclock/internal/platform/config"
	"timeclock/internal/platform/testkit"
)

func TestWorkdayCrossesMidnightInServerZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}

	// 02:30 UTC on jan 16 is still the evening of jan 15 in New York
	instant := time.Date(2025, 1, 16, 2, 30, 0, 0, time.UTC)
	got := Workday(instant, ny)
	want := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Workday = %v, want %v", got, want)
	}

	if got := Workday(instant, time.UTC); !got.Equal(time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Workday UTC = %v", got)
	}
}

func TestEndOfDay(t *testing.T) {
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	got := EndOfDay(day, time.UTC)
	want := time.Date(2025, 1, 15, 23, 59, 59, 999e6, time.UTC)
	if !got.Equal(want) {
		t.Errorf("EndOfDay = %v, want %v", got, want)
	}

	ny, _ := time.LoadLocation("America/New_York")
	got = EndOfDay(day, ny)
	// 23:59:59.999 eastern expressed in UTC is early the next UTC morning
	if got.UTC().Day() != 16 {
		t.Errorf("EndOfDay in NY not converted to UTC: %v", got)
	}
	if !got.After(StartOfDay(day, ny)) {
		t.Error("EndOfDay before StartOfDay")
	}
}

func TestLoadLocationPanicsOnUnknownZone(t *testing.T) {
	t.Setenv("TIMECLOCK_TZ", "Not/AZone")
	testkit.MustPanic(t, func() { LoadLocation(config.New()) })
}

func TestMaxTime(t *testing.T) {
	a := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	b := a.Add(time.Minute)
	if !MaxTime(a, b).Equal(b) || !MaxTime(b, a).Equal(b) {
		t.Error("MaxTime did not pick the later instant")
	}
}

func TestPtr(t *testing.T) {
	if Ptr(time.Time{}) != nil {
		t.Error("Ptr(zero) != nil")
	}
	v := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	if p := Ptr(v); p == nil || !p.Equal(v) {
		t.Error("Ptr lost the value")
	}
}
