package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"stream-renamer/work/cache"
	"stream-renamer/work/client"
	"stream-renamer/work/config"
	"stream-renamer/work/database"
	"stream-renamer/work/device"
	"stream-renamer/work/filter"
	"stream-renamer/work/logger"
	"stream-renamer/work/metrics"
	"stream-renamer/work/namer"
	"stream-renamer/work/patterns"
	"stream-renamer/work/probe"
	"stream-renamer/work/redirect"
	"stream-renamer/work/rewrite"
	"stream-renamer/work/types"
	"stream-renamer/work/upstream"
	"stream-renamer/work/utils"
)

// FallbackLabel names the single entry restricted clients get when nothing
// else is playable.
const FallbackLabel = "Fallback MP4"

// Request is one inbound stream-list request after the HTTP layer has
// extracted its parameters.
type Request struct {
	Type         string // content type, e.g. movie or series
	ID           string // content id, e.g. tt0111161 or tt0944947:1:2
	SourceURL    string // configured upstream manifest, may be empty
	UserAgent    string // raw User-Agent header, empty when absent
	PlatformHint string // optional platform hint from query, header or extra
	ClientID     string // stable client identifier used for remembered sources
}

// StreamProxy wires the pipeline stages together. It holds no per-request
// state; the cache and the pattern sets are the only shared mutable parts.
type StreamProxy struct {
	Config       *config.Config
	Classifier   *device.Classifier
	Fetcher      *upstream.Fetcher
	Shaper       *filter.Shaper
	Rewriter     *rewrite.Rewriter
	Namer        *namer.Namer
	Prober       *probe.Prober // nil unless HLS probing is enabled
	Cache        *cache.Cache  // nil when caching is disabled
	DB           *database.DB  // nil when persistence is disabled
	WorkerPool   *ants.Pool
	Placeholders *patterns.Set
	AllowedHosts *patterns.Set
	AllowList    *redirect.AllowList
	StartTime    time.Time
}

// New assembles a StreamProxy. httpClient is used for stream-list fetches and
// HLS probes, resolveClient must not follow redirects. cacheInstance and db may
// be nil.
func New(cfg *config.Config, httpClient, resolveClient *client.HeaderSettingClient, workerPool *ants.Pool, cacheInstance *cache.Cache, db *database.DB) (*StreamProxy, error) {
	placeholders, _ := patterns.NewSet(nil)
	allowedHosts, _ := patterns.NewSet(nil)

	shaper, err := filter.NewShaper(filter.Options{
		Placeholders:         placeholders,
		FallbackURL:          cfg.FallbackURL,
		DirectOnly:           cfg.DirectOnly,
		RestrictedMaxStreams: cfg.RestrictedMaxStreams,
		DebridMarker:         cfg.DebridMarker,
		Expression:           cfg.FilterExpr,
	})
	if err != nil {
		return nil, err
	}

	sp := &StreamProxy{
		Config:       cfg,
		Classifier:   device.NewClassifier(device.RulesFromPatterns(cfg.RestrictedAgents), cfg.RestrictedPlatforms),
		Fetcher:      upstream.NewFetcher(httpClient, cfg),
		Shaper:       shaper,
		Rewriter:     rewrite.New(cfg, resolveClient, workerPool),
		Namer:        namer.New(cfg.DebridMarker, cfg.DebridTag),
		Cache:        cacheInstance,
		DB:           db,
		WorkerPool:   workerPool,
		Placeholders: placeholders,
		AllowedHosts: allowedHosts,
		AllowList:    redirect.NewAllowList(allowedHosts, redirect.HostOf(cfg.FallbackURL)),
		StartTime:    time.Now(),
	}

	if cfg.ProbeHLS {
		sp.Prober = probe.New(httpClient, cfg.ResolveTimeout)
	}

	if err := sp.ReloadPatterns(context.Background()); err != nil {
		return nil, err
	}

	return sp, nil
}

// ReloadPatterns rebuilds the placeholder and allowed-host sets from the
// configured defaults plus the database tables. Invalid patterns are logged
// and skipped.
func (sp *StreamProxy) ReloadPatterns(ctx context.Context) error {
	placeholders := append([]string{}, sp.Config.PlaceholderPatterns...)
	hosts := append([]string{}, sp.Config.AllowedRedirectHosts...)

	if sp.DB != nil {
		stored, err := sp.DB.PatternStrings(ctx, database.PlaceholderPatterns)
		if err != nil {
			return fmt.Errorf("failed to load placeholder patterns: %w", err)
		}
		placeholders = append(placeholders, stored...)

		stored, err = sp.DB.PatternStrings(ctx, database.AllowedHosts)
		if err != nil {
			return fmt.Errorf("failed to load allowed hosts: %w", err)
		}
		hosts = append(hosts, stored...)
	}

	for _, err := range sp.Placeholders.Replace(placeholders) {
		logger.Warn("{proxy - ReloadPatterns} placeholder: %v", err)
	}
	for _, err := range sp.AllowedHosts.Replace(hosts) {
		logger.Warn("{proxy - ReloadPatterns} allowed host: %v", err)
	}

	logger.Debug("{proxy - ReloadPatterns} %d placeholder patterns, %d allowed hosts", sp.Placeholders.Len(), sp.AllowedHosts.Len())
	return nil
}

// Streams runs the full pipeline for one request. It never fails: upstream,
// resolution and probe errors all degrade to fewer or no entries.
func (sp *StreamProxy) Streams(ctx context.Context, req Request) *types.StreamResponse {
	class := sp.Classifier.Classify(req.UserAgent, req.PlatformHint)
	metrics.StreamRequests.WithLabelValues(class.String()).Inc()

	if !sp.Fetcher.SupportsType(req.Type) || req.ID == "" {
		logger.Debug("{proxy - Streams} ignoring type=%q id=%q", req.Type, req.ID)
		return types.EmptyResponse()
	}

	source := sp.selectSource(ctx, req)

	// loads are shared between callers, so they must outlive any single one
	loadCtx := context.WithoutCancel(ctx)
	load := func() (*types.StreamResponse, bool) {
		return sp.build(loadCtx, req.Type, req.ID, source, class)
	}

	var resp *types.StreamResponse
	if sp.Cache == nil {
		resp, _ = load()
	} else {
		key := cache.Key{Type: req.Type, ID: req.ID, Source: source}
		if sp.Config.CacheIncludeDevice {
			key.Device = class.String()
		}

		var result string
		resp, result = sp.Cache.Load(key, load)
		metrics.CacheLookups.WithLabelValues(result).Inc()
	}

	if resp == nil {
		resp = types.EmptyResponse()
	}

	metrics.StreamsEmitted.WithLabelValues(class.String()).Observe(float64(len(resp.Streams)))
	logger.Debug("{proxy - Streams} %s/%s %s client: %d streams", req.Type, req.ID, class, len(resp.Streams))
	return resp
}

// selectSource picks the request's own source, then a remembered one, then the
// configured default. The result is always a normalized manifest URL.
func (sp *StreamProxy) selectSource(ctx context.Context, req Request) string {
	remember := sp.Config.RememberSource && sp.DB != nil && req.ClientID != ""

	if req.SourceURL != "" {
		source, err := upstream.NormalizeManifestURL(req.SourceURL)
		if err == nil {
			if remember {
				if err := sp.DB.SaveSession(ctx, req.ClientID, source); err != nil {
					logger.Warn("{proxy - selectSource} %v", err)
				}
			}
			return source
		}
		logger.Warn("{proxy - selectSource} ignoring configured source %s: %v", utils.LogURL(sp.Config, req.SourceURL), err)
	}

	if remember {
		stored, err := sp.DB.LoadSession(ctx, req.ClientID)
		switch {
		case err == nil:
			if source, err := upstream.NormalizeManifestURL(stored); err == nil {
				return source
			}
		case !errors.Is(err, database.ErrNotFound):
			logger.Warn("{proxy - selectSource} %v", err)
		}
	}

	source, err := upstream.NormalizeManifestURL(sp.Config.DefaultSourceURL)
	if err != nil {
		logger.Error("{proxy - selectSource} default source is invalid: %v", err)
		return config.DefaultSourceURL
	}
	return source
}

// build fetches, shapes, rewrites and names one list. The boolean reports
// whether the result may be cached; failed fetches are never cached.
func (sp *StreamProxy) build(ctx context.Context, contentType, id, source string, class types.DeviceClass) (*types.StreamResponse, bool) {
	fetched := sp.Fetcher.Fetch(ctx, contentType, id, source, class)
	candidates := sp.Shaper.Shape(fetched.Entries, class)

	targets := sp.playbackTargets(ctx, candidates)
	hints := sp.probeAll(ctx, targets, class)

	resp := types.EmptyResponse()
	for i, c := range candidates {
		label, filename := sp.Namer.Name(i+1, c.Entry, targets[i])

		stream := types.TransformedStream{
			Name:        label,
			Title:       label,
			Description: label,
			BehaviorHints: types.BehaviorHints{
				Filename:    filename,
				BingeGroup:  c.Entry.Hints.BingeGroup,
				VideoSize:   c.Entry.Hints.VideoSize,
				NotWebReady: c.Entry.Hints.NotWebReady,
				Container:   hints[i].Container,
				VideoCodec:  hints[i].VideoCodec,
			},
		}

		if c.Entry.IsDirect() {
			stream.URL = targets[i]
			if class == types.Restricted {
				stream.URL = sp.Rewriter.Wrap(targets[i])
			}
		} else {
			stream.InfoHash = c.Entry.InfoHash
			stream.FileIdx = c.Entry.FileIdx
			stream.Sources = c.Entry.Sources
		}

		resp.Streams = append(resp.Streams, stream)
	}

	if len(resp.Streams) == 0 && class == types.Restricted {
		resp.Streams = append(resp.Streams, sp.fallbackStream())
	}

	return resp, fetched.OK
}

// playbackTargets returns, per candidate, the direct URL before any /proxy
// wrapping: the first redirect hop when resolution applies, the upstream URL
// otherwise. Restricted clients are resolved too, so /proxy only ever sees the
// provider host and never the upstream resolver. Torrent-only candidates get "".
func (sp *StreamProxy) playbackTargets(ctx context.Context, candidates []filter.Candidate) []string {
	targets := make([]string, len(candidates))
	for i, c := range candidates {
		if c.Entry.IsDirect() {
			targets[i] = c.Entry.SourceURL
		}
	}

	// substituted entries already point at the fallback video
	toResolve := make([]string, len(candidates))
	for i, c := range candidates {
		if !c.Substituted {
			toResolve[i] = targets[i]
		}
	}

	resolved := sp.Rewriter.ResolveAll(ctx, toResolve)
	for i, u := range resolved {
		if u == "" || u == targets[i] {
			continue
		}
		if sp.Shaper.IsPlaceholder(u) {
			metrics.PlaceholderSubstitutions.Inc()
			u = sp.Config.FallbackURL
		}
		targets[i] = u
	}

	return targets
}

// probeAll collects HLS hints for unrestricted clients when probing is enabled.
func (sp *StreamProxy) probeAll(ctx context.Context, targets []string, class types.DeviceClass) []probe.Info {
	hints := make([]probe.Info, len(targets))
	if sp.Prober == nil || class == types.Restricted {
		return hints
	}

	var wg sync.WaitGroup
	for i, target := range targets {
		if target == "" || !probe.IsHLS(target) {
			continue
		}

		wg.Add(1)
		task := func() {
			defer wg.Done()
			if info, ok := sp.Prober.Probe(ctx, target); ok {
				hints[i] = info
			}
		}
		if sp.WorkerPool == nil || sp.WorkerPool.Submit(task) != nil {
			task()
		}
	}

	wg.Wait()
	return hints
}

// fallbackStream is the single playable entry offered to restricted clients
// when the list would otherwise be empty.
func (sp *StreamProxy) fallbackStream() types.TransformedStream {
	return types.TransformedStream{
		Name:        FallbackLabel,
		Title:       FallbackLabel,
		Description: FallbackLabel,
		URL:         sp.Rewriter.Wrap(sp.Config.FallbackURL),
		BehaviorHints: types.BehaviorHints{
			Filename: "Fallback." + namer.Container(sp.Config.FallbackURL, ""),
		},
	}
}

// StartMaintenance purges stale remembered sources until ctx is done.
func (sp *StreamProxy) StartMaintenance(ctx context.Context, interval time.Duration) {
	if sp.DB == nil || !sp.Config.RememberSource {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sp.DB.CleanupSessions(ctx, sp.Config.SessionTTL)
			if err != nil {
				logger.Warn("{proxy - StartMaintenance} %v", err)
				continue
			}
			if removed > 0 {
				logger.Info("{proxy - StartMaintenance} removed %d stale sessions", removed)
			}
		}
	}
}
