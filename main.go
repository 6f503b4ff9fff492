package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/ratelimit"

	"stream-renamer/work/cache"
	"stream-renamer/work/client"
	"stream-renamer/work/config"
	"stream-renamer/work/database"
	"stream-renamer/work/handlers"
	"stream-renamer/work/logger"
	"stream-renamer/work/proxy"
	"stream-renamer/work/utils"
)

var (
	Version = "v0.1.0" // default version
)

const sessionCleanupInterval = time.Hour

// our main app worker
func main() {

	// load our config
	cfg := config.LoadConfig()

	// set up logging
	if cfg.Debug {
		logger.SetLogLevel("debug")
	} else {
		logger.SetLogLevel(cfg.LogLevel)
	}

	// open the store when persistence is on
	var db *database.DB
	if cfg.DatabasePath != "" {
		var err error
		db, err = database.Open(cfg.DatabasePath)
		if err != nil {
			logger.Error("{main} failed to open database %s: %v", cfg.DatabasePath, err)
			os.Exit(1)
		}
		defer db.Close()
	}

	// outbound pacing shared by fetches, resolutions and probes
	limiter := ratelimit.NewUnlimited()
	if cfg.UpstreamRateLimit > 0 {
		limiter = ratelimit.New(cfg.UpstreamRateLimit)
	}
	httpClient := client.NewHeaderSettingClient(cfg, limiter)
	resolveClient := client.NewNoRedirectClient(cfg, limiter)

	// initialize worker pool
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		logger.Error("{main} failed to create worker pool: %v", err)
		os.Exit(1)
	}
	defer workerPool.Release()

	// initialize cache
	var cacheInstance *cache.Cache
	if cfg.CacheEnabled {
		cacheInstance = cache.New(cfg.CacheDuration, cfg.CacheMaxEntries)
	}

	// create proxy instance
	proxyInstance, err := proxy.New(cfg, httpClient, resolveClient, workerPool, cacheInstance, db)
	if err != nil {
		logger.Error("{main} %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// stored patterns were merged by proxy.New
	if db != nil {
		go proxyInstance.StartMaintenance(ctx, sessionCleanupInterval)
	}

	// setup HTTP routes
	router := handlers.NewRouter(proxyInstance)
	if cfg.AdminPasswordHash != "" {
		setupAdminRoutes(router, proxyInstance)
	} else {
		logger.Info("{main} ADMIN_PASSWORD_HASH not set, admin API disabled")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// show info
	logger.Info("Starting Stream Renamer %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Listen: %s", server.Addr)
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Default Source: %s", utils.LogURL(cfg, cfg.DefaultSourceURL))
	logger.Info("  - Resolve Mode: %s", cfg.ResolveMode)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Cache Enabled: %v", cfg.CacheEnabled)
	logger.Info("  - Cache Duration: %s", cfg.CacheDuration)
	logger.Info("  - Database: %s", cfg.DatabasePath)
	logger.Info("  - Debug Enabled: %v", cfg.Debug)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// SIGHUP reloads stored patterns, SIGINT/SIGTERM shut down
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for sig := range signals {
			if sig == syscall.SIGHUP {
				if err := proxyInstance.ReloadPatterns(ctx); err != nil {
					logger.Warn("{main} pattern reload failed: %v", err)
				} else {
					logger.Info("{main} patterns reloaded")
				}
				continue
			}

			logger.Info("{main} received %s, shutting down", sig)
			cancel()

			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("{main} shutdown: %v", err)
			}
			done()
			return
		}
	}()

	// fire us up
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("{main} server failed to start: %v", err)
		os.Exit(1)
	}
}
