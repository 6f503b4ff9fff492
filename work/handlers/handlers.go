package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"stream-renamer/work/logger"
	"stream-renamer/work/metrics"
	"stream-renamer/work/proxy"
	"stream-renamer/work/redirect"
	"stream-renamer/work/utils"
)

// PlatformHeader lets a front-end or player announce its platform explicitly.
const PlatformHeader = "X-Stremio-Platform"

// userConfig is the per-install configuration carried in the URL.
type userConfig struct {
	SourceAddonURL string `json:"sourceAddonUrl"`
	Platform       string `json:"platform"`
}

// HandleStreams serves /stream/{type}/{id}.json and its configured variants.
func HandleStreams(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		contentType := unescape(vars["type"])
		id := unescape(vars["id"])
		cfg := parseUserConfig(vars["config"])
		extra := parseExtra(vars["extra"])

		query := r.URL.Query()
		if cfg.SourceAddonURL == "" {
			cfg.SourceAddonURL = query.Get("sourceAddonUrl")
		}

		req := proxy.Request{
			Type:         contentType,
			ID:           id,
			SourceURL:    cfg.SourceAddonURL,
			UserAgent:    r.Header.Get("User-Agent"),
			PlatformHint: platformHint(r, query, extra, cfg),
			ClientID:     utils.ClientID(r),
		}

		resp := sp.Streams(r.Context(), req)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if sp.Cache != nil {
			w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", int(sp.Cache.TTL().Seconds())))
		} else {
			w.Header().Set("Cache-Control", "no-store")
		}

		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Debug("{handlers - HandleStreams} failed to write response: %v", err)
		}
	}
}

// HandleProxyRedirect validates the u parameter against the allow-list and
// answers with a 302 to it. Rejections are plain-text 400s.
func HandleProxyRedirect(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := sp.AllowList.Check(r.URL.Query().Get("u"))
		if err != nil {
			outcome := "invalid"
			switch {
			case errors.Is(err, redirect.ErrBlockedTarget):
				outcome = "blocked"
				logger.Warn("{handlers - HandleProxyRedirect} blocked redirect to host %q from %s", redirect.HostOf(r.URL.Query().Get("u")), utils.ClientIP(r))
			case errors.Is(err, redirect.ErrMissingTarget):
				outcome = "missing"
			}
			metrics.ProxyRedirects.WithLabelValues(outcome).Inc()

			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(err.Error()))
			return
		}

		metrics.ProxyRedirects.WithLabelValues("redirected").Inc()
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Location", target.String())
		w.WriteHeader(http.StatusFound)
	}
}

// HandleRoot sends visitors to the configuration page.
func HandleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/configure", http.StatusFound)
}

// HandleHealth reports liveness for container orchestration.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// parseUserConfig decodes the optional {config} path segment. Three forms are
// accepted: URL-encoded JSON, a sourceAddonUrl=... query form, and a bare
// encoded manifest URL. The query form is parsed while still encoded so that
// separators inside the encoded manifest URL stay part of the value.
func parseUserConfig(segment string) userConfig {
	var cfg userConfig

	segment = strings.TrimSpace(segment)
	if segment == "" {
		return cfg
	}

	if isQueryForm(segment) {
		return parseQueryConfig(segment)
	}

	raw := strings.TrimSpace(unescape(segment))
	switch {
	case raw == "":
	case strings.HasPrefix(raw, "{"):
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			logger.Debug("{handlers - parseUserConfig} ignoring malformed config: %v", err)
		}
	case isQueryForm(raw):
		// the whole query form was encoded once more as a path segment
		return parseQueryConfig(raw)
	default:
		cfg.SourceAddonURL = raw
	}

	return cfg
}

func isQueryForm(s string) bool {
	if strings.HasPrefix(s, "{") || strings.HasPrefix(strings.ToUpper(s), "%7B") {
		return false
	}
	return strings.HasPrefix(s, "sourceAddonUrl=") || strings.Contains(s, "&sourceAddonUrl=")
}

func parseQueryConfig(form string) userConfig {
	values, err := url.ParseQuery(form)
	if err != nil {
		logger.Debug("{handlers - parseQueryConfig} ignoring malformed config: %v", err)
		return userConfig{}
	}
	return userConfig{
		SourceAddonURL: values.Get("sourceAddonUrl"),
		Platform:       values.Get("platform"),
	}
}

// parseExtra decodes the optional {extra} segment, e.g. "platform=tv".
func parseExtra(segment string) url.Values {
	if segment == "" {
		return url.Values{}
	}
	values, err := url.ParseQuery(unescape(segment))
	if err != nil {
		return url.Values{}
	}
	return values
}

// platformHint collects an explicit platform from query, header, extra or
// install config, in that order.
func platformHint(r *http.Request, query, extra url.Values, cfg userConfig) string {
	if v := query.Get("platform"); v != "" {
		return v
	}
	if v := query.Get("cast"); v != "" && v != "0" && !strings.EqualFold(v, "false") {
		return "cast"
	}
	if v := r.Header.Get(PlatformHeader); v != "" {
		return v
	}
	if v := extra.Get("platform"); v != "" {
		return v
	}
	return cfg.Platform
}

// unescape undoes path encoding; the router matches on the encoded path so that
// configuration segments may contain encoded slashes.
func unescape(s string) string {
	if out, err := url.PathUnescape(s); err == nil {
		return out
	}
	return s
}
