package testfixtures

import (
	"testing"
	"time"
)

func TestManualClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewManualClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestManualClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2025, time.September, 1, 8, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}

	clock.Set(start.Add(3 * time.Hour))
	if got := clock.Now(); !got.Equal(start.Add(3 * time.Hour)) {
		t.Fatalf("expected %v, got %v", start.Add(3*time.Hour), got)
	}
}

func TestManualClockNowFunc(t *testing.T) {
	clock := NewManualClock(ReferenceTime())
	nowFn := clock.NowFunc()

	clock.Advance(time.Minute)
	if got := nowFn(); !got.Equal(clock.Now()) {
		t.Fatalf("expected updated time %v, got %v", clock.Now(), got)
	}
}
