package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"stream-renamer/work/database"
	"stream-renamer/work/logger"
	"stream-renamer/work/middleware"
	"stream-renamer/work/proxy"
	"stream-renamer/work/utils"
)

// StatsResponse is the operational snapshot served by /api/stats.
type StatsResponse struct {
	Uptime          string                 `json:"uptime"`
	MemoryUsage     string                 `json:"memoryUsage"`
	Goroutines      int                    `json:"goroutines"`
	CacheStatus     string                 `json:"cacheStatus"`
	CacheEntries    int                    `json:"cacheEntries"`
	CacheInFlight   int                    `json:"cacheInFlight"`
	WorkerThreads   int                    `json:"workerThreads"`
	WorkersRunning  int                    `json:"workersRunning"`
	Placeholders    int                    `json:"placeholders"`
	AllowedHosts    int                    `json:"allowedHosts"`
	ResolveMode     string                 `json:"resolveMode"`
	DatabaseEnabled bool                   `json:"databaseEnabled"`
	Database        map[string]interface{} `json:"database,omitempty"`
}

// ConfigResponse is the sanitized view of the running configuration.
type ConfigResponse struct {
	Port                 int      `json:"port"`
	BaseURL              string   `json:"baseURL"`
	DefaultSourceURL     string   `json:"defaultSourceURL"`
	FallbackURL          string   `json:"fallbackURL"`
	StreamTypes          []string `json:"streamTypes"`
	FetchTimeout         string   `json:"fetchTimeout"`
	RestrictedTimeout    string   `json:"restrictedFetchTimeout"`
	ResolveTimeout       string   `json:"resolveTimeout"`
	ResolveMode          string   `json:"resolveMode"`
	DirectOnly           bool     `json:"directOnly"`
	RestrictedMaxStreams int      `json:"restrictedMaxStreams"`
	FilterExpr           string   `json:"filterExpr"`
	ProbeHLS             bool     `json:"probeHLS"`
	CacheEnabled         bool     `json:"cacheEnabled"`
	CacheDuration        string   `json:"cacheDuration"`
	RememberSource       bool     `json:"rememberSource"`
	LogLevel             string   `json:"logLevel"`
}

type patternRequest struct {
	Pattern string `json:"pattern"`
	Note    string `json:"note"`
}

// setupAdminRoutes registers the /api endpoints behind basic auth.
func setupAdminRoutes(router *mux.Router, sp *proxy.StreamProxy) {
	guard := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.CORSMiddleware(middleware.BasicAuthMiddleware(sp.Config.AdminPasswordHash, middleware.GzipMiddleware(h)))
	}

	router.HandleFunc("/api/stats", guard(handleGetStats(sp))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/config", guard(handleGetConfig(sp))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/cache/flush", guard(handleFlushCache(sp))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/reload", guard(handleReload(sp))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/logs", guard(handleGetLogs)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/logs", guard(handleClearLogs)).Methods("DELETE")

	for prefix, table := range map[string]database.PatternTable{
		"/api/placeholders": database.PlaceholderPatterns,
		"/api/hosts":        database.AllowedHosts,
	} {
		router.HandleFunc(prefix, guard(handleListPatterns(sp, table))).Methods("GET", "OPTIONS")
		router.HandleFunc(prefix, guard(handleAddPattern(sp, table))).Methods("POST")
		router.HandleFunc(prefix+"/{id:[0-9]+}", guard(handleDeletePattern(sp, table))).Methods("DELETE", "OPTIONS")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("{admin - writeJSON} %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleGetStats reports uptime, memory, cache and pattern counts
func handleGetStats(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		stats := StatsResponse{
			Uptime:          formatDuration(time.Since(sp.StartTime)),
			MemoryUsage:     formatBytes(m.Alloc),
			Goroutines:      runtime.NumGoroutine(),
			CacheStatus:     "Disabled",
			WorkerThreads:   sp.Config.WorkerThreads,
			WorkersRunning:  sp.WorkerPool.Running(),
			Placeholders:    sp.Placeholders.Len(),
			AllowedHosts:    sp.AllowedHosts.Len(),
			ResolveMode:     sp.Config.ResolveMode,
			DatabaseEnabled: sp.DB != nil,
		}

		if sp.Cache != nil {
			stats.CacheStatus = "Enabled"
			stats.CacheEntries = sp.Cache.Len()
			stats.CacheInFlight = sp.Cache.InFlight()
		}

		if sp.DB != nil {
			dbStats, err := sp.DB.GetStats(r.Context())
			if err != nil {
				logger.Warn("{admin - handleGetStats} %v", err)
			} else {
				stats.Database = dbStats
			}
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

// handleGetConfig returns the configuration with secrets and URL tokens removed
func handleGetConfig(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := sp.Config
		writeJSON(w, http.StatusOK, ConfigResponse{
			Port:                 cfg.Port,
			BaseURL:              cfg.BaseURL,
			DefaultSourceURL:     utils.ObfuscateURL(cfg.DefaultSourceURL),
			FallbackURL:          cfg.FallbackURL,
			StreamTypes:          cfg.StreamTypes,
			FetchTimeout:         cfg.FetchTimeout.String(),
			RestrictedTimeout:    cfg.RestrictedFetchTimeout.String(),
			ResolveTimeout:       cfg.ResolveTimeout.String(),
			ResolveMode:          cfg.ResolveMode,
			DirectOnly:           cfg.DirectOnly,
			RestrictedMaxStreams: cfg.RestrictedMaxStreams,
			FilterExpr:           cfg.FilterExpr,
			ProbeHLS:             cfg.ProbeHLS,
			CacheEnabled:         cfg.CacheEnabled,
			CacheDuration:        cfg.CacheDuration.String(),
			RememberSource:       cfg.RememberSource,
			LogLevel:             logger.GetLogLevel(),
		})
	}
}

// handleFlushCache drops every cached stream list
func handleFlushCache(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sp.Cache == nil {
			writeError(w, http.StatusConflict, "cache disabled")
			return
		}

		flushed := sp.Cache.Len()
		sp.Cache.Flush()
		logger.Info("{admin - handleFlushCache} flushed %d cached responses", flushed)

		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "flushed": flushed})
	}
}

// handleReload re-reads pattern tables from the database
func handleReload(sp *proxy.StreamProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sp.ReloadPatterns(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":       "success",
			"placeholders": sp.Placeholders.Len(),
			"allowedHosts": sp.AllowedHosts.Len(),
		})
	}
}

func handleListPatterns(sp *proxy.StreamProxy, table database.PatternTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sp.DB == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"builtin": builtinPatterns(sp, table), "stored": []database.PatternRow{}})
			return
		}

		rows, err := sp.DB.ListPatterns(r.Context(), table)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rows == nil {
			rows = []database.PatternRow{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"builtin": builtinPatterns(sp, table), "stored": rows})
	}
}

func handleAddPattern(sp *proxy.StreamProxy, table database.PatternTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sp.DB == nil {
			writeError(w, http.StatusConflict, "database disabled")
			return
		}

		var req patternRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}

		row, err := sp.DB.AddPattern(r.Context(), table, req.Pattern, req.Note)
		switch {
		case errors.Is(err, database.ErrInvalidRegex):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, database.ErrPatternExists):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if err := sp.ReloadPatterns(r.Context()); err != nil {
			logger.Warn("{admin - handleAddPattern} reload failed: %v", err)
		}
		logger.Info("{admin - handleAddPattern} added %s pattern %q", table, row.Pattern)

		writeJSON(w, http.StatusCreated, row)
	}
}

func handleDeletePattern(sp *proxy.StreamProxy, table database.PatternTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sp.DB == nil {
			writeError(w, http.StatusConflict, "database disabled")
			return
		}

		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}

		if err := sp.DB.DeletePattern(r.Context(), table, id); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if err := sp.ReloadPatterns(r.Context()); err != nil {
			logger.Warn("{admin - handleDeletePattern} reload failed: %v", err)
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func builtinPatterns(sp *proxy.StreamProxy, table database.PatternTable) []string {
	if table == database.AllowedHosts {
		return sp.Config.AllowedRedirectHosts
	}
	return sp.Config.PlaceholderPatterns
}

// handleGetLogs returns the recent log ring, oldest first
func handleGetLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logger.Recent())
}

// handleClearLogs empties the log ring
func handleClearLogs(w http.ResponseWriter, r *http.Request) {
	logger.ClearRecent()
	logger.Info("{admin - handleClearLogs} log entries cleared via admin API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
