package rewrite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stream-renamer/work/client"
	"stream-renamer/work/config"
)

func newRewriter(t *testing.T, cfg *config.Config) *Rewriter {
	t.Helper()
	if cfg.ResolveTimeout == 0 {
		cfg.ResolveTimeout = time.Second
	}
	if cfg.DebridMarker == "" {
		cfg.DebridMarker = "/resolve/realdebrid/"
	}
	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return New(cfg, client.NewNoRedirectClient(cfg, nil), pool)
}

func TestWrap(t *testing.T) {
	for _, tc := range []struct {
		name    string
		baseURL string
		in      string
		want    string
	}{
		{"relative", "", "https://cdn.example/a b.mkv?x=1&y=2", "/proxy?u=https%3A%2F%2Fcdn.example%2Fa+b.mkv%3Fx%3D1%26y%3D2"},
		{"upgrades http", "", "http://cdn.example/v.mp4", "/proxy?u=https%3A%2F%2Fcdn.example%2Fv.mp4"},
		{"upgrades mixed case", "", "HTTP://cdn.example/v.mp4", "/proxy?u=https%3A%2F%2Fcdn.example%2Fv.mp4"},
		{"absolute", "https://renamer.example/", "https://cdn.example/v.mp4", "https://renamer.example/proxy?u=https%3A%2F%2Fcdn.example%2Fv.mp4"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rw := newRewriter(t, &config.Config{BaseURL: tc.baseURL})
			assert.Equal(t, tc.want, rw.Wrap(tc.in))
		})
	}
}

func TestShouldResolve(t *testing.T) {
	rd := "https://torrentio.example/resolve/realdebrid/KEY/hash/null/0/x.mkv"
	plain := "https://cdn.example/x.mkv"

	debrid := newRewriter(t, &config.Config{ResolveMode: config.ResolveDebrid})
	assert.True(t, debrid.ShouldResolve(rd))
	assert.False(t, debrid.ShouldResolve(plain))

	all := newRewriter(t, &config.Config{ResolveMode: config.ResolveAll})
	assert.True(t, all.ShouldResolve(plain))

	off := newRewriter(t, &config.Config{ResolveMode: config.ResolveOff})
	assert.False(t, off.ShouldResolve(rd))
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/redirect":
			w.Header().Set("Location", "https://download.real-debrid.com/d/ABC/Movie.mkv")
			w.WriteHeader(http.StatusFound)
		case "/relative":
			w.Header().Set("Location", "/final/file.mp4")
			w.WriteHeader(http.StatusMovedPermanently)
		case "/slow":
			time.Sleep(300 * time.Millisecond)
			w.WriteHeader(http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	rw := newRewriter(t, &config.Config{ResolveTimeout: 100 * time.Millisecond})
	ctx := context.Background()

	assert.Equal(t, "https://download.real-debrid.com/d/ABC/Movie.mkv", rw.Resolve(ctx, srv.URL+"/redirect"))
	assert.Equal(t, srv.URL+"/final/file.mp4", rw.Resolve(ctx, srv.URL+"/relative"))
	assert.Equal(t, srv.URL+"/plain", rw.Resolve(ctx, srv.URL+"/plain"))
	assert.Equal(t, srv.URL+"/slow", rw.Resolve(ctx, srv.URL+"/slow"))
	assert.Equal(t, "http://127.0.0.1:1/nothing", rw.Resolve(ctx, "http://127.0.0.1:1/nothing"))
}

func TestResolveAllPreservesOrderAndRunsConcurrently(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.Header().Set("Location", "https://cdn.example"+r.URL.Path+".final")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	rw := newRewriter(t, &config.Config{ResolveMode: config.ResolveDebrid})
	urls := []string{
		srv.URL + "/resolve/realdebrid/a",
		"https://cdn.example/untouched",
		srv.URL + "/resolve/realdebrid/b",
		srv.URL + "/resolve/realdebrid/c",
	}

	out := rw.ResolveAll(context.Background(), urls)

	assert.Equal(t, []string{
		"https://cdn.example/resolve/realdebrid/a.final",
		"https://cdn.example/untouched",
		"https://cdn.example/resolve/realdebrid/b.final",
		"https://cdn.example/resolve/realdebrid/c.final",
	}, out)
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}
