package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cartolab/terrastack/internal/logger"
	"github.com/cartolab/terrastack/internal/slippy"
)

// Fetcher downloads raw tile images over HTTP.
type Fetcher struct {
	set        *SourceSet
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	userAgent  string
}

// NewFetcher creates a tile fetcher for a source set.
func NewFetcher(set *SourceSet) *Fetcher {
	return &Fetcher{
		set: set,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 2,
		retryDelay: 2 * time.Second,
		userAgent:  "terrastack/1.0",
	}
}

// WithRetryPolicy overrides the retry count and the delay between
// attempts. Tests that exercise failing sources set a zero delay.
func (f *Fetcher) WithRetryPolicy(retries int, delay time.Duration) *Fetcher {
	f.maxRetries = retries
	f.retryDelay = delay
	return f
}

// FetchTile downloads one tile image from one source. A 404 is a
// normal condition (the dataset has no coverage there) and is reported
// as a nil payload with no error; everything else that prevents a 200
// response is an error for the caller to absorb.
func (f *Fetcher) FetchTile(ctx context.Context, source Source, tile slippy.Tile) ([]byte, error) {
	log := logger.Get()
	url := f.set.URL(source, tile)

	resp, err := f.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Debug("Tile not covered by source",
			zap.String("source", source.ID),
			zap.String("tile", tile.String()))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile body: %w", err)
	}
	return data, nil
}

// fetchWithRetry performs an HTTP GET with retries on transport errors
// and server errors.
func (f *Fetcher) fetchWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Don't retry on 404 or success
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		// Retry on server errors
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
