package tiles

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cartolab/terrastack/internal/slippy"
)

// Source is one elevation tile endpoint. Sources are queried in list
// order, highest fidelity first; lower-priority sources only fill
// pixels the ones before them left empty.
type Source struct {
	// ID is the path segment identifying the dataset, e.g. dem5a_png
	ID string `yaml:"id"`
	// Description is free text for logs
	Description string `yaml:"description,omitempty"`
}

// SourceSet is the ordered list of sources plus the endpoint they hang
// off. URLs follow the {base}/{source-id}/{zoom}/{x}/{y}{ext} scheme.
type SourceSet struct {
	BaseURL   string   `yaml:"base_url"`
	Extension string   `yaml:"extension"`
	Sources   []Source `yaml:"sources"`
}

// DefaultSourceSet returns the GSI elevation tile endpoints: DEM5A
// (laser survey) falls back to DEM5B (photogrammetry), which falls
// back to DEM10B (nationwide coverage).
func DefaultSourceSet() *SourceSet {
	return &SourceSet{
		BaseURL:   "https://cyberjapandata.gsi.go.jp/xyz",
		Extension: ".png",
		Sources: []Source{
			{ID: "dem5a_png", Description: "DEM5A laser survey"},
			{ID: "dem5b_png", Description: "DEM5B photogrammetry"},
			{ID: "dem_png", Description: "DEM10B nationwide"},
		},
	}
}

// LoadSourceSet reads a source configuration from a YAML file.
func LoadSourceSet(path string) (*SourceSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var set SourceSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse sources YAML: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Validate checks the source set is usable.
func (s *SourceSet) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("sources config: base_url is required")
	}
	if len(s.Sources) == 0 {
		return fmt.Errorf("sources config: at least one source is required")
	}
	for i, src := range s.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources config: source %d has no id", i)
		}
	}
	return nil
}

// URL returns the tile URL for a source.
func (s *SourceSet) URL(source Source, tile slippy.Tile) string {
	return fmt.Sprintf("%s/%s/%d/%d/%d%s",
		strings.TrimRight(s.BaseURL, "/"), source.ID, tile.Z, tile.X, tile.Y, s.Extension)
}
