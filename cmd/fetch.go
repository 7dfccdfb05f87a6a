package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cartolab/terrastack/internal/config"
	"github.com/cartolab/terrastack/internal/logger"
	"github.com/cartolab/terrastack/internal/metrics"
	"github.com/cartolab/terrastack/internal/mosaic"
	"github.com/cartolab/terrastack/internal/pipeline"
	"github.com/cartolab/terrastack/internal/slippy"
	"github.com/cartolab/terrastack/internal/tiles"
	"github.com/spf13/cobra"
)

// confirmThreshold is the tile count above which fetch asks before
// hammering the tile servers.
const confirmThreshold = 100

var (
	latStr      string
	lonStr      string
	compressTIF bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download elevation tiles and build a GeoTIFF raster",
	Long: `Download elevation tiles covering a lat/lon area, composite them
across sources in priority order so finer data wins and coarser data
fills the gaps, stitch them into one raster, crop it to the exact
requested bounds and save it as a georeferenced GeoTIFF.

Tiles are cached on disk after compositing, so a re-run over the same
area costs no network traffic.

Example:
  terrastack fetch --lat 37.81-37.87 --lon 139.59-139.69 -o dem.tif`,
	Run: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&latStr, "lat", "", "Latitude range, e.g. 37.81-37.87 (required)")
	fetchCmd.Flags().StringVar(&lonStr, "lon", "", "Longitude range, e.g. 139.59-139.69 (required)")
	fetchCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Output GeoTIFF path")
	fetchCmd.Flags().IntVarP(&cfg.Zoom, "zoom", "z", cfg.Zoom, "Tile zoom level")
	fetchCmd.Flags().StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory for composited tile cache")
	fetchCmd.Flags().StringVar(&cfg.SourceFile, "sources", "", "YAML file overriding the built-in elevation tile sources")
	fetchCmd.Flags().BoolVarP(&cfg.SkipConfirm, "yes", "y", false, "Skip the confirmation prompt for large downloads")
	fetchCmd.Flags().BoolVar(&compressTIF, "compress", false, "Deflate-compress the GeoTIFF")
}

func runFetch(cmd *cobra.Command, args []string) {
	log := logger.Get()

	var err error
	if cfg.LatRange, err = config.ParseRange(latStr); err != nil {
		exitWithError("invalid --lat", err)
	}
	if cfg.LonRange, err = config.ParseRange(lonStr); err != nil {
		exitWithError("invalid --lon", err)
	}
	if err := cfg.ValidateFetch(); err != nil {
		exitWithError("invalid configuration", err)
	}

	bounds := cfg.Bounds()
	tileRange, err := slippy.BoundsToTileRange(bounds, cfg.Zoom)
	if err != nil {
		exitWithError("area outside the tile projection", err)
	}

	log.Info("Starting elevation fetch",
		zap.String("lat", latStr),
		zap.String("lon", lonStr),
		zap.Int("zoom", cfg.Zoom),
		zap.Int("tiles", tileRange.TileCount()),
		zap.Int("workers", cfg.Workers),
		zap.String("output", cfg.OutputFile))

	if tileRange.TileCount() > confirmThreshold && !cfg.SkipConfirm {
		if !confirm(os.Stdin, fmt.Sprintf("About to download %d tiles. Continue?", tileRange.TileCount())) {
			log.Info("Fetch cancelled")
			os.Exit(1)
		}
	}

	// System metrics for the duration of the run
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	collector := metrics.NewCollector(cfg.MetricsInterval, log)
	go collector.Start(ctx)

	set := tiles.DefaultSourceSet()
	if cfg.SourceFile != "" {
		if set, err = tiles.LoadSourceSet(cfg.SourceFile); err != nil {
			exitWithError("failed to load tile sources", err)
		}
	}
	if err := set.Validate(); err != nil {
		exitWithError("invalid tile sources", err)
	}

	service, err := tiles.NewService(set, cfg.CacheDir)
	if err != nil {
		exitWithError("failed to create tile service", err)
	}

	totalStart := time.Now()
	tracker := pipeline.NewProgressTracker(tileRange.TileCount(), "Fetching tiles")
	fetched := service.FetchAll(ctx, tileRange.Tiles(), cfg.Workers, func(done, total int) {
		if done%10 == 0 || done == total {
			p := tracker.Calculate(done)
			log.Info("Fetch progress",
				zap.Int("done", done),
				zap.Int("total", total),
				zap.String("eta", pipeline.FormatETA(p.ETA)))
		}
	})

	m := mosaic.Assemble(tileRange, fetched, slippy.TileSize)
	m.Crop(bounds)
	if err := m.Validate(); err != nil {
		exitWithError("no elevation data in the requested area", err)
	}
	log.Info("Mosaic assembled", zap.String("mosaic", m.Describe()))

	if err := mosaic.WriteGeoTIFF(cfg.OutputFile, m, compressTIF); err != nil {
		exitWithError("failed to write GeoTIFF", err)
	}

	log.Info("Fetch complete",
		zap.String("output", cfg.OutputFile),
		zap.Duration("total_time", time.Since(totalStart).Round(time.Second)))
}

// confirm asks a yes/no question, defaulting to no. Declining a fetch
// confirmation exits the process with status 1.
func confirm(in io.Reader, question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	reader := bufio.NewReader(in)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
