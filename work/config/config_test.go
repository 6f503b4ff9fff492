package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"port": 8080}`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	validateAndSetDefaults(cfg)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DefaultSourceURL, cfg.DefaultSourceURL)
	assert.Equal(t, DefaultFallbackURL, cfg.FallbackURL)
	assert.Equal(t, 4*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 10*time.Second, cfg.RestrictedFetchTimeout)
	assert.Equal(t, 10, cfg.RestrictedMaxStreams)
	assert.True(t, cfg.CacheEnabled)
	assert.True(t, cfg.CacheIncludeDevice)
	assert.Equal(t, ResolveDebrid, cfg.ResolveMode)
	assert.Equal(t, []string{"movie", "series"}, cfg.StreamTypes)
	assert.NotEmpty(t, cfg.PlaceholderPatterns)
	assert.NotEmpty(t, cfg.AllowedRedirectHosts)
}

func TestLoadFromParsesDurationsAndExplicitFalse(t *testing.T) {
	path := writeConfig(t, `{
		"fetchTimeout": "1500ms",
		"cacheDuration": "30s",
		"cacheEnabled": false,
		"cacheIncludeDevice": false,
		"restrictedMaxStreams": 0,
		"databasePath": "",
		"resolveMode": "ALL"
	}`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	validateAndSetDefaults(cfg)

	assert.Equal(t, 1500*time.Millisecond, cfg.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.CacheDuration)
	assert.False(t, cfg.CacheEnabled)
	assert.False(t, cfg.CacheIncludeDevice)
	assert.Equal(t, 0, cfg.RestrictedMaxStreams)
	assert.Empty(t, cfg.DatabasePath)
	assert.Equal(t, ResolveAll, cfg.ResolveMode)
}

func TestLoadFromRejectsBadInput(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, `{"fetchTimeout": "soon"}`))
	assert.ErrorContains(t, err, "invalid fetchTimeout")

	_, err = LoadFrom(writeConfig(t, `{not json`))
	assert.ErrorContains(t, err, "failed to parse config JSON")

	_, err = LoadFrom(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"PORT":            "9001",
		"BASE_URL":        "https://renamer.example/",
		"SOURCE_MANIFEST": "https://upstream.example/manifest.json",
		"DATABASE_PATH":   "none",
		"LOG_LEVEL":       "warn",
	}
	cfg := getDefaultConfig()

	applyEnvOverrides(cfg, func(k string) string { return env[k] })
	validateAndSetDefaults(cfg)

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "https://renamer.example", cfg.BaseURL)
	assert.Equal(t, "https://upstream.example/manifest.json", cfg.DefaultSourceURL)
	assert.Empty(t, cfg.DatabasePath)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigCachesUntilCleared(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, `{"port": 7100}`))
	ClearConfigCache()
	t.Cleanup(ClearConfigCache)

	first := LoadConfig()
	assert.Equal(t, 7100, first.Port)
	assert.Same(t, first, LoadConfig())

	ClearConfigCache()
	assert.NotSame(t, first, LoadConfig())
}

func TestObfuscateURL(t *testing.T) {
	assert.Equal(t, "https://upstream.example/***?***", obfuscateURL("https://upstream.example/realdebrid=KEY/manifest.json?token=abc"))
	assert.Equal(t, "***", obfuscateURL("not a url"))
}
