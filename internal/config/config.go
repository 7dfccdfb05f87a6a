package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cartolab/terrastack/internal/slippy"
)

// Range is a closed numeric interval parsed from a "37.81-37.87"
// style flag value.
type Range struct {
	Min, Max float64
	IsSet    bool
}

// ParseRange parses a "min-max" degree range. Negative bounds use a
// leading sign: "-37.87--37.81".
func ParseRange(s string) (Range, error) {
	if s == "" {
		return Range{}, nil
	}

	// the separator is the first dash that is not a leading sign and
	// not directly after another dash
	sep := -1
	for i := 1; i < len(s); i++ {
		if s[i] == '-' && s[i-1] != '-' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return Range{}, fmt.Errorf("range %q must look like min-max", s)
	}

	minVal, err := strconv.ParseFloat(strings.TrimSpace(s[:sep]), 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range minimum %q: %w", s[:sep], err)
	}
	maxVal, err := strconv.ParseFloat(strings.TrimSpace(s[sep+1:]), 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range maximum %q: %w", s[sep+1:], err)
	}
	// reversed bounds are reordered rather than rejected
	if minVal > maxVal {
		minVal, maxVal = maxVal, minVal
	}
	return Range{Min: minVal, Max: maxVal, IsSet: true}, nil
}

// Span returns the interval width.
func (r Range) Span() float64 { return r.Max - r.Min }

// Config holds the settings shared by the fetch and layers commands.
type Config struct {
	// Area of interest
	LatRange Range
	LonRange Range
	Zoom     int

	// Fetch settings
	OutputFile  string
	CacheDir    string
	SourceFile  string // YAML tile source override, empty = built-in GSI set
	Workers     int
	SkipConfirm bool

	// Layer extraction settings
	Interval          float64
	DownsampleFactor  float64
	SimplifyTolerance float64
	SmoothingSigma    float64
	BaseElev          *float64
	MinElev           *float64
	MaxElev           *float64

	// Rendering settings
	LayerDir    string
	Colormap    string
	RampFile    string
	Scale       float64
	StrokeWidth float64
	Imagery     bool

	// Logging and metrics
	Verbose         bool
	LogFile         string
	MetricsInterval time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	workers := runtime.NumCPU() * 2
	if workers > 10 {
		workers = 10
	}
	return &Config{
		Zoom:              14,
		OutputFile:        "dem.tif",
		CacheDir:          "./tile_cache",
		Workers:           workers,
		Interval:          10,
		DownsampleFactor:  1.0,
		SimplifyTolerance: 1.5,
		LayerDir:          "./layers",
		Colormap:          "terrain",
		Scale:             1.0,
		StrokeWidth:       0.1,
		MetricsInterval:   30 * time.Second,
	}
}

// Bounds converts the configured lat/lon ranges to geographic bounds.
func (c *Config) Bounds() slippy.Bounds {
	return slippy.NewBounds(c.LatRange.Min, c.LatRange.Max, c.LonRange.Min, c.LonRange.Max)
}

// ValidateFetch checks the settings the fetch command depends on.
func (c *Config) ValidateFetch() error {
	if !c.LatRange.IsSet || !c.LonRange.IsSet {
		return fmt.Errorf("both --lat and --lon ranges are required")
	}
	if c.LatRange.Span() <= 0 || c.LonRange.Span() <= 0 {
		return fmt.Errorf("lat/lon ranges must span a nonzero area")
	}
	if c.Zoom < 0 || c.Zoom > 18 {
		return fmt.Errorf("zoom must be between 0 and 18, got %d", c.Zoom)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file is required")
	}
	return nil
}

// ValidateLayers checks the settings the layers command depends on.
func (c *Config) ValidateLayers() error {
	if c.Interval <= 0 {
		return fmt.Errorf("contour interval must be positive, got %f", c.Interval)
	}
	if c.DownsampleFactor <= 0 || c.DownsampleFactor > 1 {
		return fmt.Errorf("downsample factor must be in (0,1], got %f", c.DownsampleFactor)
	}
	if c.SimplifyTolerance < 0 {
		return fmt.Errorf("simplify tolerance must not be negative, got %f", c.SimplifyTolerance)
	}
	if c.SmoothingSigma < 0 {
		return fmt.Errorf("smoothing sigma must not be negative, got %f", c.SmoothingSigma)
	}
	if c.MinElev != nil && c.MaxElev != nil && *c.MinElev >= *c.MaxElev {
		return fmt.Errorf("min elevation (%f) must be below max elevation (%f)", *c.MinElev, *c.MaxElev)
	}
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %f", c.Scale)
	}
	return nil
}
