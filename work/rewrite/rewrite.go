package rewrite

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"stream-renamer/work/config"
	"stream-renamer/work/logger"
	"stream-renamer/work/metrics"
	"stream-renamer/work/upstream"
	"stream-renamer/work/utils"
)

// ProxyPath is the same-origin redirect endpoint restricted clients are sent to.
const ProxyPath = "/proxy"

// Rewriter produces the playback URL of each direct entry.
type Rewriter struct {
	client  upstream.Doer // must not follow redirects
	pool    *ants.Pool
	cfg     *config.Config
	baseURL string
}

// New creates a rewriter. client must stop at the first response; pool bounds
// concurrent resolutions and may be nil to resolve inline.
func New(cfg *config.Config, client upstream.Doer, pool *ants.Pool) *Rewriter {
	return &Rewriter{
		client:  client,
		pool:    pool,
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Wrap returns the same-origin /proxy URL for target, upgrading http to https
// first so casting receivers do not reject mixed content.
func (rw *Rewriter) Wrap(target string) string {
	if len(target) >= 7 && strings.EqualFold(target[:7], "http://") {
		target = "https://" + target[7:]
	}
	return rw.baseURL + ProxyPath + "?u=" + url.QueryEscape(target)
}

// ShouldResolve reports whether the configured mode issues a HEAD for rawURL.
func (rw *Rewriter) ShouldResolve(rawURL string) bool {
	switch rw.cfg.ResolveMode {
	case config.ResolveAll:
		return true
	case config.ResolveDebrid:
		return rw.cfg.DebridMarker != "" && strings.Contains(rawURL, rw.cfg.DebridMarker)
	default:
		return false
	}
}

// Resolve issues one HEAD request with redirects disabled and returns the
// Location of a redirect response. Any failure returns rawURL unchanged.
func (rw *Rewriter) Resolve(ctx context.Context, rawURL string) string {
	ctx, cancel := context.WithTimeout(ctx, rw.cfg.ResolveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		metrics.Resolutions.WithLabelValues("failed").Inc()
		return rawURL
	}

	resp, err := rw.client.Do(req)
	if err != nil {
		logger.Debug("{rewrite - Resolve} HEAD %s failed: %v", utils.LogURL(rw.cfg, rawURL), err)
		metrics.Resolutions.WithLabelValues("failed").Inc()
		return rawURL
	}
	resp.Body.Close()

	location := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode > 399 || location == "" {
		metrics.Resolutions.WithLabelValues("unchanged").Inc()
		return rawURL
	}

	// relative Location headers are resolved against the request URL
	target, err := req.URL.Parse(location)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		metrics.Resolutions.WithLabelValues("failed").Inc()
		return rawURL
	}

	metrics.Resolutions.WithLabelValues("redirected").Inc()
	return target.String()
}

// ResolveAll resolves every URL that ShouldResolve selects, concurrently on the
// worker pool, and waits for all of them. The result has the same order and
// length as urls.
func (rw *Rewriter) ResolveAll(ctx context.Context, urls []string) []string {
	out := make([]string, len(urls))
	copy(out, urls)

	var wg sync.WaitGroup
	for i, u := range urls {
		if u == "" || !rw.ShouldResolve(u) {
			continue
		}

		wg.Add(1)
		task := func() {
			defer wg.Done()
			out[i] = rw.Resolve(ctx, u)
		}

		if rw.pool == nil {
			task()
			continue
		}
		if err := rw.pool.Submit(task); err != nil {
			// pool closed or saturated in non-blocking mode; resolve inline
			task()
		}
	}

	wg.Wait()
	return out
}

