package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stream-renamer/work/client"
	"stream-renamer/work/config"
	"stream-renamer/work/types"
)

func testConfig() *config.Config {
	return &config.Config{
		UserAgent:              "renamer-test",
		StreamTypes:            []string{"movie", "series"},
		FetchTimeout:           200 * time.Millisecond,
		RestrictedFetchTimeout: time.Second,
	}
}

func newFetcher(cfg *config.Config) *Fetcher {
	return NewFetcher(client.NewHeaderSettingClient(cfg, nil), cfg)
}

func TestFetchParsesStreams(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"streams":[
			{"name":"[RD+] Torrentio\n4k","title":"Movie.2160p.mkv","url":"https://torrentio.example/resolve/realdebrid/KEY/hash/null/0/Movie.mkv","behaviorHints":{"bingeGroup":"torrentio|4k","filename":"Movie.mkv"}},
			{"name":"Torrentio\n1080p","title":"Movie.1080p","infoHash":"abcdef","fileIdx":2,"sources":["tracker:udp://t.example"]},
			{"name":"empty"}
		]}`))
	}))
	defer srv.Close()

	f := newFetcher(testConfig())
	res := f.Fetch(context.Background(), "movie", "tt0111161", srv.URL+"/manifest.json?token=abc", types.Unrestricted)

	require.True(t, res.OK)
	assert.Equal(t, "/stream/movie/tt0111161.json", gotPath)
	assert.Equal(t, "token=abc", gotQuery)
	require.Len(t, res.Entries, 2)

	assert.True(t, res.Entries[0].IsDirect())
	assert.Equal(t, "[RD+] Torrentio\n4k", res.Entries[0].DisplayName)
	assert.Equal(t, "torrentio|4k", res.Entries[0].Hints.BingeGroup)

	assert.False(t, res.Entries[1].IsDirect())
	assert.Equal(t, "abcdef", res.Entries[1].InfoHash)
	require.NotNil(t, res.Entries[1].FileIdx)
	assert.Equal(t, 2, *res.Entries[1].FileIdx)
}

func TestFetchFailuresYieldEmptyList(t *testing.T) {
	for _, tc := range []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"streams":[`)) }},
		{"slow upstream", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			start := time.Now()
			res := newFetcher(testConfig()).Fetch(context.Background(), "movie", "tt1", srv.URL+"/manifest.json", types.Unrestricted)

			assert.False(t, res.OK)
			assert.Empty(t, res.Entries)
			assert.Less(t, time.Since(start), 1500*time.Millisecond)
		})
	}
}

func TestFetchRejectsUnsupportedType(t *testing.T) {
	res := newFetcher(testConfig()).Fetch(context.Background(), "tv", "tt1", "https://upstream.example/manifest.json", types.Unrestricted)
	assert.False(t, res.OK)
	assert.Empty(t, res.Entries)
}

func TestFetchUnreachableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	res := newFetcher(testConfig()).Fetch(context.Background(), "movie", "tt1", addr+"/manifest.json", types.Restricted)
	assert.False(t, res.OK)
}

func TestTimeoutPerClass(t *testing.T) {
	f := newFetcher(testConfig())
	assert.Equal(t, time.Second, f.Timeout(types.Restricted))
	assert.Equal(t, 200*time.Millisecond, f.Timeout(types.Unrestricted))
}
