package client

import (
	"context"
	"net/http"
	"sync/atomic"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/ratelimit"

	"stream-renamer/work/config"
)

func TestDoSetsDefaultHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotAccept = r.Header.Get("Accept")
	}))
	defer srv.Close()

	c := NewHeaderSettingClient(&config.Config{UserAgent: "renamer-test"}, nil)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "renamer-test", gotUA)
	assert.Equal(t, "application/json, */*", gotAccept)
}

func TestNoRedirectClientStopsAtFirstHop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://download.example/file.mkv", http.StatusFound)
	}))
	defer srv.Close()

	c := NewNoRedirectClient(&config.Config{}, nil)
	req, err := http.NewRequest(http.MethodHead, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://download.example/file.mkv", resp.Header.Get("Location"))
}

func TestDoSkipsRequestCancelledWhileWaiting(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewHeaderSettingClient(&config.Config{}, ratelimit.New(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hits.Load())
}
