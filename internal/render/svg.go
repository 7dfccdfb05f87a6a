package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/cartolab/terrastack/internal/layers"
)

// Stack colors shared by every layer sheet.
const (
	// baseBackground marks the bottom sheet so the assembled model
	// reads as land standing in water.
	baseBackground = "#40cbc8"
	// inkReduction fills the next-next layer's footprint: that area
	// is covered twice over, printing it in full color wastes ink.
	inkReduction = "#f0f0f0"
	fillOpacity  = "0.7"
)

// Options controls sheet geometry and styling.
type Options struct {
	// Scale is millimetres of paper per raster pixel.
	Scale float64
	// StrokeWidth of the silhouette outline, in viewBox units.
	StrokeWidth float64
	Ramp        *Ramp
}

// Renderer writes one SVG sheet per layer. A sheet shows its own
// silhouette filled by elevation color, the next layer's outline as a
// red dashed alignment guide, and the next-next footprint in light
// grey.
type Renderer struct {
	width   int
	height  int
	minElev float64
	maxElev float64
	opts    Options

	// set by UseImagery
	basemap image.Image
	maskFor func(level float64) *layers.Mask
	nnLevel func(layer layers.Layer) (float64, bool)
}

// NewRenderer creates a renderer for a grid of the given pixel
// dimensions and elevation range.
func NewRenderer(width, height int, minElev, maxElev float64, opts Options) *Renderer {
	if opts.Scale <= 0 {
		opts.Scale = 1.0
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = 0.1
	}
	if opts.Ramp == nil {
		opts.Ramp = builtinRamps["terrain"]
	}
	return &Renderer{
		width:   width,
		height:  height,
		minElev: minElev,
		maxElev: maxElev,
		opts:    opts,
	}
}

// UseImagery switches the renderer to imagery mode: instead of a flat
// ramp fill, each sheet embeds the reference-map mosaic clipped to the
// layer's silhouette. maskFor supplies the hole-filled mask per level
// and nnLevel resolves the next-next level of a layer, when one
// exists.
func (r *Renderer) UseImagery(img image.Image, maskFor func(level float64) *layers.Mask,
	nnLevel func(layer layers.Layer) (float64, bool)) {
	r.basemap = img
	r.maskFor = maskFor
	r.nnLevel = nnLevel
}

// LayerFilename names a sheet file: layer_0001_10m.svg.
func LayerFilename(index int, level float64) string {
	return fmt.Sprintf("layer_%04d_%dm.svg", index, int(level))
}

// RenderFile writes one layer's sheet to path. Layers with no contours
// produce no file and report false.
func (r *Renderer) RenderFile(path string, layer layers.Layer) (bool, error) {
	if len(layer.Contours) == 0 {
		return false, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := r.Render(f, layer); err != nil {
		f.Close()
		return false, err
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// Render writes one layer's SVG document.
func (r *Renderer) Render(w io.Writer, layer layers.Layer) error {
	if r.basemap != nil {
		return r.renderImagery(w, layer)
	}
	return r.renderRamp(w, layer)
}

func (r *Renderer) renderRamp(w io.Writer, layer layers.Layer) error {
	var b strings.Builder
	r.writeHeader(&b, r.width, r.height)

	bg := "white"
	if layer.IsBase {
		bg = baseBackground
	}
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`+"\n",
		r.width, r.height, bg)

	norm := 0.5
	if r.maxElev > r.minElev {
		norm = (layer.Level - r.minElev) / (r.maxElev - r.minElev)
	}
	fill := r.opts.Ramp.Color(norm).Hex()

	sw := r.opts.StrokeWidth
	for _, c := range layer.Contours {
		writePath(&b, c, 1, 1, fmt.Sprintf(`fill="%s" stroke="black" stroke-width="%g" opacity="%s"`,
			fill, sw, fillOpacity))
	}
	for _, c := range layer.NextNextContours {
		writePath(&b, c, 1, 1, fmt.Sprintf(`fill="%s" stroke="none"`, inkReduction))
	}
	r.writeGuides(&b, layer.NextContours, 1, 1)

	b.WriteString("</svg>\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderImagery(w io.Writer, layer layers.Layer) error {
	bm := r.basemap.Bounds()
	bw, bh := bm.Dx(), bm.Dy()

	composite, err := r.composeImagery(layer)
	if err != nil {
		return err
	}

	var b strings.Builder
	r.writeHeader(&b, bw, bh)

	var buf bytes.Buffer
	if err := png.Encode(&buf, composite); err != nil {
		return fmt.Errorf("failed to encode layer imagery: %w", err)
	}
	fmt.Fprintf(&b, `<image x="0" y="0" width="%d" height="%d" href="data:image/png;base64,%s"/>`+"\n",
		bw, bh, base64.StdEncoding.EncodeToString(buf.Bytes()))

	// contour coordinates live in grid pixels, the sheet in basemap
	// pixels
	sx := float64(bw) / float64(r.width)
	sy := float64(bh) / float64(r.height)

	sw := r.opts.StrokeWidth
	for _, c := range layer.Contours {
		writePath(&b, c, sx, sy, fmt.Sprintf(`fill="none" stroke="black" stroke-width="%g"`, sw))
	}
	r.writeGuides(&b, layer.NextContours, sx, sy)

	b.WriteString("</svg>\n")
	_, err = io.WriteString(w, b.String())
	return err
}

// composeImagery clips the basemap mosaic to the layer's silhouette
// over the sheet background, then paints the next-next footprint grey.
func (r *Renderer) composeImagery(layer layers.Layer) (image.Image, error) {
	if r.maskFor == nil {
		return nil, fmt.Errorf("imagery mode needs a mask source")
	}
	bm := r.basemap.Bounds()

	bg := color.RGBA{255, 255, 255, 255}
	if layer.IsBase {
		bg = color.RGBA{64, 203, 200, 255}
	}
	canvas := image.NewRGBA(image.Rect(0, 0, bm.Dx(), bm.Dy()))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)

	mask := scaleMask(r.maskFor(layer.Level), bm.Dx(), bm.Dy())
	xdraw.DrawMask(canvas, canvas.Bounds(), r.basemap, bm.Min, mask, image.Point{}, xdraw.Over)

	if r.nnLevel != nil {
		if nn, ok := r.nnLevel(layer); ok {
			grey := image.NewUniform(color.RGBA{240, 240, 240, 255})
			nnMask := scaleMask(r.maskFor(nn), bm.Dx(), bm.Dy())
			xdraw.DrawMask(canvas, canvas.Bounds(), grey, image.Point{}, nnMask, image.Point{}, xdraw.Over)
		}
	}
	return canvas, nil
}

// scaleMask resizes a binary mask to the basemap resolution. Nearest
// neighbor keeps the silhouette edge sharp.
func scaleMask(m *layers.Mask, width, height int) *image.Alpha {
	src := image.NewAlpha(image.Rect(0, 0, m.Width, m.Height))
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			if m.At(row, col) {
				src.SetAlpha(col, row, color.Alpha{A: 255})
			}
		}
	}
	if m.Width == width && m.Height == height {
		return src
	}
	dst := image.NewAlpha(image.Rect(0, 0, width, height))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

func (r *Renderer) writeHeader(b *strings.Builder, width, height int) {
	fmt.Fprintf(b, `<?xml version="1.0" encoding="UTF-8"?>`+"\n")
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" width="%gmm" height="%gmm" viewBox="0 0 %d %d">`+"\n",
		float64(width)*r.opts.Scale, float64(height)*r.opts.Scale, width, height)
}

// writeGuides draws the next layer's outline as a red dashed line, the
// reference for placing island pieces when stacking.
func (r *Renderer) writeGuides(b *strings.Builder, contours []layers.Contour, sx, sy float64) {
	if len(contours) == 0 {
		return
	}
	sw := r.opts.StrokeWidth
	dash := sw * 6
	if dash < 3.0 {
		dash = 3.0
	}
	attrs := fmt.Sprintf(`fill="none" stroke="red" stroke-width="%g" stroke-dasharray="%g,%g"`,
		sw*1.5, dash, dash)
	for _, c := range contours {
		writePath(b, c, sx, sy, attrs)
	}
}

func writePath(b *strings.Builder, c layers.Contour, sx, sy float64, attrs string) {
	if len(c) < 3 {
		return
	}
	b.WriteString(`<path d="M `)
	for i, p := range c {
		if i > 0 {
			b.WriteString(" L ")
		}
		fmt.Fprintf(b, "%.2f,%.2f", p.Col*sx, p.Row*sy)
	}
	b.WriteString(` Z" `)
	b.WriteString(attrs)
	b.WriteString("/>\n")
}
