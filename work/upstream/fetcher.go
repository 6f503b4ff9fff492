package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"stream-renamer/work/config"
	"stream-renamer/work/logger"
	"stream-renamer/work/metrics"
	"stream-renamer/work/types"
	"stream-renamer/work/utils"
)

// maxBodySize caps the upstream payload; real stream lists stay far below it.
const maxBodySize = 8 << 20

// Doer is the subset of an HTTP client the fetcher needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of a single upstream fetch. OK is false when the list
// is empty because of a failure rather than because upstream had nothing.
type Result struct {
	Entries []types.StreamEntry
	OK      bool
}

// Fetcher retrieves raw stream lists from the upstream addon.
type Fetcher struct {
	client Doer
	cfg    *config.Config
}

// NewFetcher creates a fetcher using the given client and configuration.
func NewFetcher(client Doer, cfg *config.Config) *Fetcher {
	return &Fetcher{client: client, cfg: cfg}
}

// SupportsType reports whether the content type is forwarded upstream.
func (f *Fetcher) SupportsType(contentType string) bool {
	return slices.Contains(f.cfg.StreamTypes, contentType)
}

// Timeout returns the fetch deadline for a device class. TV clients have slow
// start-up and tolerate a longer wait better than an empty list.
func (f *Fetcher) Timeout(class types.DeviceClass) time.Duration {
	if class == types.Restricted {
		return f.cfg.RestrictedFetchTimeout
	}
	return f.cfg.FetchTimeout
}

// Fetch retrieves the stream list for one title. It never returns an error:
// every failure is logged, counted and reported as an empty, not-OK result.
func (f *Fetcher) Fetch(ctx context.Context, contentType, id, manifestURL string, class types.DeviceClass) Result {
	if !f.SupportsType(contentType) || id == "" {
		logger.Warn("{upstream - Fetch} unsupported request type=%q id=%q", contentType, id)
		metrics.UpstreamFetches.WithLabelValues("invalid").Inc()
		return Result{}
	}

	streamURL, err := BuildStreamURL(manifestURL, contentType, id)
	if err != nil {
		logger.Warn("{upstream - Fetch} bad source %s: %v", utils.LogURL(f.cfg, manifestURL), err)
		metrics.UpstreamFetches.WithLabelValues("invalid").Inc()
		return Result{}
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout(class))
	defer cancel()

	start := time.Now()
	entries, outcome, err := f.fetch(ctx, streamURL)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	metrics.UpstreamFetches.WithLabelValues(outcome).Inc()

	if err != nil {
		logger.Warn("{upstream - Fetch} %s failed (%s) after %s: %v", utils.LogURL(f.cfg, streamURL), outcome, time.Since(start).Round(time.Millisecond), err)
		return Result{}
	}

	logger.Debug("{upstream - Fetch} %s returned %d streams", utils.LogURL(f.cfg, streamURL), len(entries))
	return Result{Entries: entries, OK: true}
}

func (f *Fetcher) fetch(ctx context.Context, streamURL string) ([]types.StreamEntry, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, "invalid", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, "timeout", err
		}
		return nil, "network", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "status", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload types.UpstreamResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&payload); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, "timeout", err
		}
		return nil, "decode", fmt.Errorf("failed to decode stream list: %w", err)
	}

	entries := make([]types.StreamEntry, 0, len(payload.Streams))
	for _, s := range payload.Streams {
		entry := s.ToEntry()
		if entry.SourceURL == "" && entry.InfoHash == "" {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, "ok", nil
}
