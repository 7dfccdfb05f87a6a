package pipeline

import (
	"strings"
	"testing"
	"time"
)

func TestProgressCalculate(t *testing.T) {
	tracker := NewProgressTracker(100, "Fetching tiles")
	tracker.startTime = time.Now().Add(-10 * time.Second)

	p := tracker.Calculate(25)
	if p.Current != 25 || p.Total != 100 {
		t.Errorf("got %d/%d", p.Current, p.Total)
	}
	if p.Percentage != 25 {
		t.Errorf("percentage = %f, want 25", p.Percentage)
	}
	if p.TilesPerSec < 2 || p.TilesPerSec > 3 {
		t.Errorf("rate = %f, want about 2.5", p.TilesPerSec)
	}
	// 75 tiles left at ~2.5/s is about 30s
	if p.ETA < 25*time.Second || p.ETA > 35*time.Second {
		t.Errorf("ETA = %s, want about 30s", p.ETA)
	}
}

func TestProgressComplete(t *testing.T) {
	tracker := NewProgressTracker(10, "done run")
	tracker.startTime = time.Now().Add(-time.Second)

	p := tracker.Calculate(10)
	if p.Percentage != 100 {
		t.Errorf("percentage = %f, want 100", p.Percentage)
	}
	if p.ETA != 0 {
		t.Errorf("ETA at completion = %s, want 0", p.ETA)
	}
}

func TestProgressString(t *testing.T) {
	tracker := NewProgressTracker(4, "Fetching tiles")
	tracker.startTime = time.Now().Add(-2 * time.Second)

	s := tracker.Calculate(2).String()
	if !strings.Contains(s, "Fetching tiles") || !strings.Contains(s, "2/4") {
		t.Errorf("unexpected progress line %q", s)
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "calculating..."},
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
		{3723 * time.Second, "1h 2m 3s"},
	}
	for _, tt := range tests {
		if got := FormatETA(tt.in); got != tt.want {
			t.Errorf("FormatETA(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
