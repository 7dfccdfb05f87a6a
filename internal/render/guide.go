package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cartolab/terrastack/internal/layers"
)

// RenderAll writes one SVG per level into dir plus an assembly guide,
// and returns the number of sheets written. Levels whose silhouette
// reduced to nothing are skipped, not errors.
func RenderAll(dir string, p *layers.Pipeline, r *Renderer, onProgress func(done, total int)) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}

	levels := p.Levels()
	written := 0
	for i, level := range levels {
		layer := p.Layer(i)
		path := filepath.Join(dir, LayerFilename(i+1, level))
		ok, err := r.RenderFile(path, layer)
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
		if onProgress != nil {
			onProgress(i+1, len(levels))
		}
	}

	if err := WriteAssemblyGuide(filepath.Join(dir, "assembly_guide.txt"), p.Sequence()); err != nil {
		return written, err
	}
	return written, nil
}

// WriteAssemblyGuide writes the plain-text build instructions that
// ship alongside the layer sheets.
func WriteAssemblyGuide(path string, seq layers.Sequence) error {
	levels := seq.Levels
	if len(levels) == 0 {
		return fmt.Errorf("no levels to describe")
	}

	var b strings.Builder
	b.WriteString("Terrain layer model assembly guide\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Contour interval: %gm\n", seq.Interval)
	fmt.Fprintf(&b, "Layer count:      %d\n", len(levels))
	fmt.Fprintf(&b, "Elevation range:  %.1fm to %.1fm\n\n", levels[0], levels[len(levels)-1])

	b.WriteString("About the layers\n")
	b.WriteString("  Each SVG is the cumulative silhouette of all terrain at or\n")
	b.WriteString("  above its elevation. Lower sheets are wider, upper sheets\n")
	b.WriteString("  narrower. The red dashed line is the outline of the next\n")
	b.WriteString("  sheet up, the placement guide for island pieces.\n\n")

	b.WriteString("Materials\n")
	fmt.Fprintf(&b, "  %d sheets of card stock (about %gmm thick)\n", len(levels), seq.Interval)
	b.WriteString("  Glue (wood glue works well)\n\n")

	b.WriteString("Assembly\n")
	b.WriteString("  1. Print or machine-cut every SVG\n")
	fmt.Fprintf(&b, "  2. Stack and glue from layer_0001 (%dm and up, bottom sheet)\n", int(levels[0]))
	fmt.Fprintf(&b, "  3. Finish with layer_%04d (%dm and up, top sheet)\n", len(levels), int(levels[len(levels)-1]))
	b.WriteString("  Align island pieces against the red dashed guides.\n\n")

	b.WriteString("Layer list (stacking order, bottom first)\n")
	for i, lv := range levels {
		marker := ""
		switch i {
		case 0:
			marker = "  <- bottom"
		case len(levels) - 1:
			marker = "  <- top"
		}
		fmt.Fprintf(&b, "  layer %4d: %8.1fm and up  %s%s\n",
			i+1, lv, LayerFilename(i+1, lv), marker)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write assembly guide: %w", err)
	}
	return nil
}
