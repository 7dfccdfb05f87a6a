package pipeline

import (
	"fmt"
	"time"
)

// ProgressTracker reports progress of a long tile run: how far along
// it is, how fast tiles are completing and when it should finish.
type ProgressTracker struct {
	totalTiles  int
	startTime   time.Time
	description string
}

// NewProgressTracker creates a tracker for a run of totalTiles tiles.
func NewProgressTracker(totalTiles int, description string) *ProgressTracker {
	return &ProgressTracker{
		totalTiles:  totalTiles,
		startTime:   time.Now(),
		description: description,
	}
}

// Progress holds one progress reading.
type Progress struct {
	Current     int
	Total       int
	Percentage  float64
	Elapsed     time.Duration
	ETA         time.Duration
	TilesPerSec float64
	Description string
}

// Calculate returns the progress metrics for the current tile count.
func (p *ProgressTracker) Calculate(current int) Progress {
	elapsed := time.Since(p.startTime)

	var percentage float64
	var eta time.Duration
	var rate float64

	if p.totalTiles > 0 {
		percentage = float64(current) / float64(p.totalTiles) * 100
	}
	if elapsed.Seconds() > 0 {
		rate = float64(current) / elapsed.Seconds()
	}
	if rate > 0 && current < p.totalTiles {
		remaining := float64(p.totalTiles - current)
		eta = time.Duration(remaining/rate) * time.Second
	}

	return Progress{
		Current:     current,
		Total:       p.totalTiles,
		Percentage:  percentage,
		Elapsed:     elapsed.Round(time.Second),
		ETA:         eta.Round(time.Second),
		TilesPerSec: rate,
		Description: p.description,
	}
}

// String renders a single-line progress report.
func (p Progress) String() string {
	return fmt.Sprintf("%s: %d/%d (%.1f%%) %.1f tiles/s ETA %s",
		p.Description, p.Current, p.Total, p.Percentage, p.TilesPerSec, FormatETA(p.ETA))
}

// FormatETA formats a duration as a compact human-readable estimate.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
