package cmd

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cartolab/terrastack/internal/layers"
	"github.com/cartolab/terrastack/internal/logger"
	"github.com/cartolab/terrastack/internal/mosaic"
	"github.com/cartolab/terrastack/internal/render"
	"github.com/cartolab/terrastack/internal/terrain"
	"github.com/spf13/cobra"
)

var (
	baseElev   float64
	minElev    float64
	maxElev    float64
	keepSea    bool
	exportGeo  bool
	basemapURL string
)

var layersCmd = &cobra.Command{
	Use:   "layers <dem.tif>",
	Short: "Slice a GeoTIFF raster into stackable SVG layers",
	Long: `Slice an elevation raster into levels one contour interval apart and
write one SVG silhouette per level, bottom layer first. Each sheet
shows its own outline filled by elevation color, the next layer's
outline as a red dashed alignment guide and the next-next layer's
footprint in light grey to save ink.

Sea-level pixels are dropped so the model shows land only; pass
--min-elev to keep them instead.

Example:
  terrastack layers dem.tif --interval 10 --output layers/`,
	Args: cobra.ExactArgs(1),
	Run:  runLayers,
}

func init() {
	rootCmd.AddCommand(layersCmd)

	layersCmd.Flags().Float64VarP(&cfg.Interval, "interval", "i", cfg.Interval, "Contour interval in metres")
	layersCmd.Flags().StringVarP(&cfg.LayerDir, "output", "o", cfg.LayerDir, "Output directory for layer SVGs")
	layersCmd.Flags().Float64Var(&cfg.DownsampleFactor, "downsample", cfg.DownsampleFactor, "Resolution factor (1.0 = full, 0.5 = half)")
	layersCmd.Flags().Float64Var(&cfg.SimplifyTolerance, "simplify", cfg.SimplifyTolerance, "Contour simplification tolerance in pixels")
	layersCmd.Flags().Float64Var(&cfg.SmoothingSigma, "smoothing", 0, "Gaussian smoothing sigma in pixels, 0 = off")
	layersCmd.Flags().Float64Var(&baseElev, "base", 0, "Base layer elevation in metres (default: derived from the raster)")
	layersCmd.Flags().Float64Var(&minElev, "min-elev", 0, "Drop elevations below this value")
	layersCmd.Flags().Float64Var(&maxElev, "max-elev", 0, "Drop elevations above this value")
	layersCmd.Flags().BoolVar(&keepSea, "keep-sea", false, "Keep below-sea-level pixels instead of masking them")
	layersCmd.Flags().StringVar(&cfg.Colormap, "colormap", cfg.Colormap, "Color ramp for layer fills")
	layersCmd.Flags().StringVar(&cfg.RampFile, "ramps", "", "YAML file with additional color ramps")
	layersCmd.Flags().Float64Var(&cfg.Scale, "scale", cfg.Scale, "Millimetres of paper per raster pixel")
	layersCmd.Flags().Float64Var(&cfg.StrokeWidth, "stroke-width", cfg.StrokeWidth, "Outline stroke width")
	layersCmd.Flags().BoolVar(&cfg.Imagery, "imagery", false, "Fill layers with reference-map imagery instead of flat color")
	layersCmd.Flags().StringVar(&basemapURL, "basemap-url", "", "Tile URL template for --imagery, {z}/{x}/{y} placeholders")
	layersCmd.Flags().BoolVar(&exportGeo, "geojson", false, "Also export georeferenced contours as GeoJSON")
}

func runLayers(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if cmd.Flags().Changed("base") {
		cfg.BaseElev = &baseElev
	}
	if cmd.Flags().Changed("min-elev") {
		cfg.MinElev = &minElev
	}
	if cmd.Flags().Changed("max-elev") {
		cfg.MaxElev = &maxElev
	}
	if err := cfg.ValidateLayers(); err != nil {
		exitWithError("invalid configuration", err)
	}

	demFile := args[0]
	totalStart := time.Now()

	m, err := mosaic.ReadGeoTIFF(demFile)
	if err != nil {
		exitWithError("failed to read DEM", err)
	}
	log.Info("DEM loaded",
		zap.String("file", demFile),
		zap.Int("width", m.Grid.Width),
		zap.Int("height", m.Grid.Height))

	// Preprocessing, in the order the numbers depend on: nodata
	// normalization, sea masking, downsampling, elevation clipping,
	// smoothing.
	nodata := mosaic.NoDataValue
	terrain.NormalizeNoData(m.Grid, &nodata)
	if cfg.MinElev == nil && !keepSea {
		if n := terrain.MaskSea(m.Grid); n > 0 {
			log.Info("Masked sea-level pixels", zap.Int("pixels", n))
		}
	}
	grid := m.Grid
	if cfg.DownsampleFactor != 1.0 {
		grid = terrain.Downsample(grid, cfg.DownsampleFactor)
		log.Info("Downsampled raster",
			zap.Float64("factor", cfg.DownsampleFactor),
			zap.Int("width", grid.Width),
			zap.Int("height", grid.Height))
	}
	terrain.ClipRange(grid, cfg.MinElev, cfg.MaxElev)
	if cfg.SmoothingSigma > 0 {
		grid = terrain.SmoothGaussian(grid, cfg.SmoothingSigma)
	}

	p, err := layers.NewPipeline(grid, cfg.Interval, cfg.BaseElev, cfg.SimplifyTolerance)
	if err != nil {
		exitWithError("cannot derive layers from this raster", err)
	}
	log.Info("Level sequence derived",
		zap.Int("levels", len(p.Levels())),
		zap.Float64("base", p.Sequence().EffectiveBase),
		zap.Float64("interval", cfg.Interval))

	ctx := context.Background()
	if err := p.Precompute(ctx, cfg.Workers, func(done, total int) {
		log.Debug("Contours computed", zap.Int("done", done), zap.Int("total", total))
	}); err != nil {
		exitWithError("contour extraction failed", err)
	}

	ramp, err := lookupRamp(cfg.Colormap, cfg.RampFile)
	if err != nil {
		exitWithError("invalid colormap", err)
	}
	minE, maxE, _ := grid.MinMax()
	renderer := render.NewRenderer(grid.Width, grid.Height, minE, maxE, render.Options{
		Scale:       cfg.Scale,
		StrokeWidth: cfg.StrokeWidth,
		Ramp:        ramp,
	})

	if cfg.Imagery {
		bm := render.NewBasemap(basemapURL)
		img, err := bm.Image(ctx, m.Bounds, grid.Width)
		if err != nil {
			exitWithError("failed to fetch basemap imagery", err)
		}
		renderer.UseImagery(img, p.MaskFor, func(layer layers.Layer) (float64, bool) {
			levels := p.Levels()
			if layer.Index+1 < len(levels) {
				return levels[layer.Index+1], true
			}
			return 0, false
		})
	}

	written, err := render.RenderAll(cfg.LayerDir, p, renderer, func(done, total int) {
		log.Debug("Sheet written", zap.Int("done", done), zap.Int("total", total))
	})
	if err != nil {
		exitWithError("failed to render layers", err)
	}

	if exportGeo {
		if err := exportGeoJSON(m, p, grid.Width, grid.Height); err != nil {
			exitWithError("failed to export GeoJSON", err)
		}
	}

	log.Info("Layers complete",
		zap.Int("sheets", written),
		zap.Int("levels", len(p.Levels())),
		zap.String("output", cfg.LayerDir),
		zap.Duration("total_time", time.Since(totalStart).Round(time.Second)))
}

func lookupRamp(name, rampFile string) (*render.Ramp, error) {
	if rampFile == "" {
		return render.RampByName(name)
	}
	ramps, err := render.LoadRamps(rampFile)
	if err != nil {
		return nil, err
	}
	if r, ok := ramps[name]; ok {
		return r, nil
	}
	return render.RampByName(name)
}

// exportGeoJSON writes one FeatureCollection per level next to the
// SVGs. Contour coordinates live in the (possibly downsampled) grid
// frame; both frames cover the same bounds, so a pixel ratio maps
// them back onto the mosaic's geo-transform.
func exportGeoJSON(m *mosaic.Mosaic, p *layers.Pipeline, gridWidth, gridHeight int) error {
	sx := float64(m.Grid.Width) / float64(gridWidth)
	sy := float64(m.Grid.Height) / float64(gridHeight)
	transform := func(row, col float64) (lat, lon float64) {
		return m.PixelToLatLon(row*sy, col*sx)
	}

	for i, level := range p.Levels() {
		contours := p.ContoursFor(level)
		if len(contours) == 0 {
			continue
		}
		path := filepath.Join(cfg.LayerDir, geoJSONFilename(i+1, level))
		if err := layers.WriteGeoJSON(path, level, contours, transform); err != nil {
			return err
		}
	}
	return nil
}

func geoJSONFilename(index int, level float64) string {
	return render.LayerFilename(index, level)[:len(render.LayerFilename(index, level))-4] + ".geojson"
}
