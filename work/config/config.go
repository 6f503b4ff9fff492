package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultSourceURL is the upstream addon used when a request carries no configuration.
	DefaultSourceURL = "https://torrentio.strem.fun/manifest.json"

	// DefaultFallbackURL is a public sample video served in place of upstream status videos.
	DefaultFallbackURL = "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4"

	// DefaultConfigPath is where the JSON settings file is read from.
	DefaultConfigPath = "/settings/config.json"
)

// Resolve modes control which direct URLs get a single HEAD request so the
// first redirect hop can be handed to unrestricted clients.
const (
	ResolveDebrid = "debrid" // Only URLs carrying the debrid marker
	ResolveAll    = "all"    // Every direct URL
	ResolveOff    = "off"    // Never issue HEAD requests
)

// Config holds all application configuration values for the stream renamer.
// It covers the listener, the upstream fetch policy, list shaping, the response
// cache and the optional persistence and admin layers.
type Config struct {
	Port                   int           `json:"port"`                   // TCP port the HTTP server listens on
	BaseURL                string        `json:"baseURL"`                // Public origin used to build /proxy links, empty for relative links
	DefaultSourceURL       string        `json:"defaultSourceURL"`       // Upstream manifest used when a request has no configuration
	FallbackURL            string        `json:"fallbackURL"`            // Replacement for placeholder videos and empty TV results
	StreamTypes            []string      `json:"streamTypes"`            // Content types forwarded upstream
	FetchTimeout           time.Duration `json:"fetchTimeout"`           // Upstream timeout for unrestricted clients
	RestrictedFetchTimeout time.Duration `json:"restrictedFetchTimeout"` // Upstream timeout for restricted clients
	ResolveTimeout         time.Duration `json:"resolveTimeout"`         // Timeout of a single HEAD resolution
	ResolveMode            string        `json:"resolveMode"`            // debrid, all or off
	UpstreamRateLimit      int           `json:"upstreamRateLimit"`      // Outbound requests per second, 0 for unlimited
	UserAgent              string        `json:"userAgent"`              // User-Agent sent upstream
	DirectOnly             bool          `json:"directOnly"`             // Drop torrent-only entries from every reply
	RestrictedMaxStreams   int           `json:"restrictedMaxStreams"`   // List cap for restricted clients, 0 disables the cap
	DebridMarker           string        `json:"debridMarker"`           // Path fragment identifying debrid resolver URLs
	DebridTag              string        `json:"debridTag"`              // Label prefix used when upstream names carry no tag
	PlaceholderPatterns    []string      `json:"placeholderPatterns"`    // Regexes matching upstream status or placeholder videos
	AllowedRedirectHosts   []string      `json:"allowedRedirectHosts"`   // Regexes of hostnames the /proxy endpoint redirects to
	RestrictedAgents       []string      `json:"restrictedAgents"`       // Regexes of User-Agents classified as restricted
	RestrictedPlatforms    []string      `json:"restrictedPlatforms"`    // Platform hints classified as restricted
	FilterExpr             string        `json:"filterExpr"`             // Optional boolean expression entries must satisfy
	ProbeHLS               bool          `json:"probeHLS"`               // Probe direct HLS playlists for codec hints
	CacheEnabled           bool          `json:"cacheEnabled"`           // Whether the response cache is used
	CacheDuration          time.Duration `json:"cacheDuration"`          // Time-to-live of cached responses
	CacheMaxEntries        int           `json:"cacheMaxEntries"`        // Upper bound of cached responses
	CacheIncludeDevice     bool          `json:"cacheIncludeDevice"`     // Partition cache entries by device class
	WorkerThreads          int           `json:"workerThreads"`          // Size of the resolution worker pool
	DatabasePath           string        `json:"databasePath"`           // SQLite file, empty disables persistence
	RememberSource         bool          `json:"rememberSource"`         // Persist the last source per client
	SessionTTL             time.Duration `json:"sessionTTL"`             // Age after which remembered sources are purged
	AdminPasswordHash      string        `json:"-"`                      // bcrypt hash guarding /api, empty disables the admin API
	LogLevel               string        `json:"logLevel"`               // DEBUG, INFO, WARN or ERROR
	Debug                  bool          `json:"debug"`                  // Enable debug logging
	ObfuscateUrls          bool          `json:"obfuscateUrls"`          // Obfuscate URLs in logs, tokens live in query strings
}

// ConfigFile represents the JSON file structure for marshaling/unmarshaling configuration.
// String duration fields (e.g., "10s") are parsed into time.Duration values, and
// pointer booleans distinguish an explicit false from a missing key.
type ConfigFile struct {
	Port                   int      `json:"port"`
	BaseURL                string   `json:"baseURL"`
	DefaultSourceURL       string   `json:"defaultSourceURL"`
	FallbackURL            string   `json:"fallbackURL"`
	StreamTypes            []string `json:"streamTypes"`
	FetchTimeout           string   `json:"fetchTimeout"`           // Duration as string (e.g., "4s")
	RestrictedFetchTimeout string   `json:"restrictedFetchTimeout"` // Duration as string (e.g., "10s")
	ResolveTimeout         string   `json:"resolveTimeout"`         // Duration as string (e.g., "4s")
	ResolveMode            string   `json:"resolveMode"`
	UpstreamRateLimit      int      `json:"upstreamRateLimit"`
	UserAgent              string   `json:"userAgent"`
	DirectOnly             bool     `json:"directOnly"`
	RestrictedMaxStreams   *int     `json:"restrictedMaxStreams"`
	DebridMarker           string   `json:"debridMarker"`
	DebridTag              string   `json:"debridTag"`
	PlaceholderPatterns    []string `json:"placeholderPatterns"`
	AllowedRedirectHosts   []string `json:"allowedRedirectHosts"`
	RestrictedAgents       []string `json:"restrictedAgents"`
	RestrictedPlatforms    []string `json:"restrictedPlatforms"`
	FilterExpr             string   `json:"filterExpr"`
	ProbeHLS               bool     `json:"probeHLS"`
	CacheEnabled           *bool    `json:"cacheEnabled"`
	CacheDuration          string   `json:"cacheDuration"` // Duration as string (e.g., "2m")
	CacheMaxEntries        int      `json:"cacheMaxEntries"`
	CacheIncludeDevice     *bool    `json:"cacheIncludeDevice"`
	WorkerThreads          int      `json:"workerThreads"`
	DatabasePath           *string  `json:"databasePath"`
	RememberSource         bool     `json:"rememberSource"`
	SessionTTL             string   `json:"sessionTTL"` // Duration as string (e.g., "720h")
	AdminPasswordHash      string   `json:"adminPasswordHash"`
	LogLevel               string   `json:"logLevel"`
	Debug                  bool     `json:"debug"`
	ObfuscateUrls          bool     `json:"obfuscateUrls"`
}

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Mutex for safe concurrent access to configCache
)

// LoadConfig loads the configuration from file or returns the cached instance.
//
// Process:
//   - Uses double-checked locking to avoid redundant reloads.
//   - Reads the file named by CONFIG_PATH, or `/settings/config.json`.
//   - Falls back to default config if file is missing or invalid.
//   - Applies environment overrides and validation.
//
// Returns:
//   - *Config: fully validated configuration object
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check under write lock
	if configCache != nil {
		return configCache
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	config, err := LoadFrom(configPath)
	if err != nil {
		log.Printf("Failed to load config from %s: %v", configPath, err)
		log.Printf("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	applyEnvOverrides(config, os.Getenv)
	validateAndSetDefaults(config)

	configCache = config

	if config.Debug {
		log.Printf("Configuration loaded:")
		log.Printf("  Port: %d", config.Port)
		log.Printf("  Base URL: %q", config.BaseURL)
		log.Printf("  Default source: %s", obfuscateURL(config.DefaultSourceURL))
		log.Printf("  Resolve mode: %s", config.ResolveMode)
		log.Printf("  Cache: %v (%s, include device: %v)", config.CacheEnabled, config.CacheDuration, config.CacheIncludeDevice)
		log.Printf("  Database: %q", config.DatabasePath)
	}

	return config
}

// LoadFrom reads and parses the configuration from a JSON file without touching
// the cached singleton or the environment.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config,
// parsing duration strings into time.Duration. Missing keys keep their defaults.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := getDefaultConfig()

	config.Port = cf.Port
	config.BaseURL = cf.BaseURL
	config.DefaultSourceURL = cf.DefaultSourceURL
	config.FallbackURL = cf.FallbackURL
	config.ResolveMode = cf.ResolveMode
	config.UpstreamRateLimit = cf.UpstreamRateLimit
	config.UserAgent = cf.UserAgent
	config.DirectOnly = cf.DirectOnly
	config.DebridMarker = cf.DebridMarker
	config.DebridTag = cf.DebridTag
	config.FilterExpr = cf.FilterExpr
	config.ProbeHLS = cf.ProbeHLS
	config.CacheMaxEntries = cf.CacheMaxEntries
	config.WorkerThreads = cf.WorkerThreads
	config.RememberSource = cf.RememberSource
	config.AdminPasswordHash = cf.AdminPasswordHash
	config.LogLevel = cf.LogLevel
	config.Debug = cf.Debug
	config.ObfuscateUrls = cf.ObfuscateUrls

	if cf.StreamTypes != nil {
		config.StreamTypes = cf.StreamTypes
	}
	if cf.PlaceholderPatterns != nil {
		config.PlaceholderPatterns = cf.PlaceholderPatterns
	}
	if cf.AllowedRedirectHosts != nil {
		config.AllowedRedirectHosts = cf.AllowedRedirectHosts
	}
	if cf.RestrictedAgents != nil {
		config.RestrictedAgents = cf.RestrictedAgents
	}
	if cf.RestrictedPlatforms != nil {
		config.RestrictedPlatforms = cf.RestrictedPlatforms
	}
	if cf.RestrictedMaxStreams != nil {
		config.RestrictedMaxStreams = *cf.RestrictedMaxStreams
	}
	if cf.CacheEnabled != nil {
		config.CacheEnabled = *cf.CacheEnabled
	}
	if cf.CacheIncludeDevice != nil {
		config.CacheIncludeDevice = *cf.CacheIncludeDevice
	}
	if cf.DatabasePath != nil {
		config.DatabasePath = *cf.DatabasePath
	}

	// Parse duration fields
	durations := []struct {
		name   string
		raw    string
		target *time.Duration
	}{
		{"fetchTimeout", cf.FetchTimeout, &config.FetchTimeout},
		{"restrictedFetchTimeout", cf.RestrictedFetchTimeout, &config.RestrictedFetchTimeout},
		{"resolveTimeout", cf.ResolveTimeout, &config.ResolveTimeout},
		{"cacheDuration", cf.CacheDuration, &config.CacheDuration},
		{"sessionTTL", cf.SessionTTL, &config.SessionTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.target = parsed
	}

	return config, nil
}

// applyEnvOverrides lets container deployments override the handful of values
// that differ per environment.
func applyEnvOverrides(config *Config, getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Port = port
		} else {
			log.Printf("Ignoring invalid PORT %q: %v", v, err)
		}
	}
	if v := getenv("BASE_URL"); v != "" {
		config.BaseURL = v
	}
	if v := getenv("SOURCE_MANIFEST"); v != "" {
		config.DefaultSourceURL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v, ok := lookup(getenv, "DATABASE_PATH"); ok {
		config.DatabasePath = v
	}
	if v := getenv("ADMIN_PASSWORD_HASH"); v != "" {
		config.AdminPasswordHash = v
	}
}

// lookup treats the literal value "none" as an explicit empty setting.
func lookup(getenv func(string) string, key string) (string, bool) {
	v := getenv(key)
	if v == "" {
		return "", false
	}
	if strings.EqualFold(v, "none") {
		return "", true
	}
	return v, true
}

// getDefaultConfig returns a baseline configuration
// with sensible defaults when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		Port:                   7000,
		BaseURL:                "",
		DefaultSourceURL:       DefaultSourceURL,
		FallbackURL:            DefaultFallbackURL,
		StreamTypes:            []string{"movie", "series"},
		FetchTimeout:           4 * time.Second,
		RestrictedFetchTimeout: 10 * time.Second,
		ResolveTimeout:         4 * time.Second,
		ResolveMode:            ResolveDebrid,
		UpstreamRateLimit:      0,
		UserAgent:              "stream-renamer/1.0",
		DirectOnly:             false,
		RestrictedMaxStreams:   10,
		DebridMarker:           "/resolve/realdebrid/",
		DebridTag:              "[RD]",
		PlaceholderPatterns:    DefaultPlaceholderPatterns(),
		AllowedRedirectHosts:   DefaultAllowedRedirectHosts(),
		RestrictedAgents:       nil, // nil keeps the classifier's built-in rules
		RestrictedPlatforms:    nil,
		CacheEnabled:           true,
		CacheDuration:          2 * time.Minute,
		CacheMaxEntries:        5000,
		CacheIncludeDevice:     true,
		WorkerThreads:          16,
		DatabasePath:           "/settings/renamer.db",
		RememberSource:         false,
		SessionTTL:             30 * 24 * time.Hour,
		LogLevel:               "INFO",
	}
}

// DefaultPlaceholderPatterns matches the static status videos Torrentio serves
// instead of a real stream when a debrid download is not ready or failed.
func DefaultPlaceholderPatterns() []string {
	return []string{
		`(?i)/videos/(failed|blocked|limits_exceeded|downloading|no_results|infringing|access_denied|unavailable)[^/]*\.mp4$`,
		`(?i)/static/videos/[^/]+\.mp4$`,
	}
}

// DefaultAllowedRedirectHosts lists the debrid download hosts /proxy may send
// clients to, plus the default upstream whose resolver links restricted clients
// receive unresolved.
func DefaultAllowedRedirectHosts() []string {
	return []string{
		`(?i)(^|\.)real-debrid\.com$`,
		`(?i)(^|\.)rdeb\.io$`,
		`(?i)(^|\.)debrid-link\.(com|fr)$`,
		`(?i)(^|\.)alldebrid\.com$`,
		`(?i)(^|\.)premiumize\.me$`,
		`(?i)(^|\.)torbox\.app$`,
		`(?i)^torrentio\.strem\.fun$`,
	}
}

// validateAndSetDefaults ensures all config values are valid,
// filling in defaults for missing/invalid ones.
func validateAndSetDefaults(config *Config) {
	if config.Port <= 0 || config.Port > 65535 {
		config.Port = 7000
	}
	config.BaseURL = strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if config.DefaultSourceURL == "" {
		config.DefaultSourceURL = DefaultSourceURL
	}
	if config.FallbackURL == "" {
		config.FallbackURL = DefaultFallbackURL
	}
	if len(config.StreamTypes) == 0 {
		config.StreamTypes = []string{"movie", "series"}
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 4 * time.Second
	}
	if config.RestrictedFetchTimeout <= 0 {
		config.RestrictedFetchTimeout = 10 * time.Second
	}
	if config.ResolveTimeout <= 0 {
		config.ResolveTimeout = 4 * time.Second
	}

	switch strings.ToLower(config.ResolveMode) {
	case ResolveDebrid, ResolveAll, ResolveOff:
		config.ResolveMode = strings.ToLower(config.ResolveMode)
	default:
		config.ResolveMode = ResolveDebrid
	}

	if config.UpstreamRateLimit < 0 {
		config.UpstreamRateLimit = 0
	}
	if config.UserAgent == "" {
		config.UserAgent = "stream-renamer/1.0"
	}
	if config.RestrictedMaxStreams < 0 {
		config.RestrictedMaxStreams = 0
	}
	if config.DebridMarker == "" {
		config.DebridMarker = "/resolve/realdebrid/"
	}
	if config.DebridTag == "" {
		config.DebridTag = "[RD]"
	}
	if config.PlaceholderPatterns == nil {
		config.PlaceholderPatterns = DefaultPlaceholderPatterns()
	}
	if config.AllowedRedirectHosts == nil {
		config.AllowedRedirectHosts = DefaultAllowedRedirectHosts()
	}
	if config.CacheDuration <= 0 {
		config.CacheDuration = 2 * time.Minute
	}
	if config.CacheMaxEntries <= 0 {
		config.CacheMaxEntries = 5000
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = 16
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 30 * 24 * time.Hour
	}
	if config.Debug {
		config.LogLevel = "DEBUG"
	}
	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}
}

// ClearConfigCache drops the cached configuration so the next LoadConfig
// re-reads the file and environment.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// obfuscateURL keeps scheme and host of a URL and hides the rest, since
// upstream configuration often embeds debrid API keys in path or query.
func obfuscateURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	return result
}
