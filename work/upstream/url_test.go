package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeManifestURL(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
		want string
	}{
		{"plain", "https://torrentio.strem.fun/manifest.json", "https://torrentio.strem.fun/manifest.json"},
		{"stremio scheme", "stremio://torrentio.strem.fun/manifest.json", "https://torrentio.strem.fun/manifest.json"},
		{"encoded", "https%3A%2F%2Ftorrentio.strem.fun%2Fmanifest.json", "https://torrentio.strem.fun/manifest.json"},
		{"no scheme", "torrentio.strem.fun/manifest.json", "https://torrentio.strem.fun/manifest.json"},
		{"whitespace", "  https://a.example/manifest.json \n", "https://a.example/manifest.json"},
		{"options path kept", "https://torrentio.strem.fun/providers=yts|debridoptions=nodownloadlinks/manifest.json", "https://torrentio.strem.fun/providers=yts|debridoptions=nodownloadlinks/manifest.json"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeManifestURL(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeManifestURLRejects(t *testing.T) {
	_, err := NormalizeManifestURL("   ")
	assert.ErrorIs(t, err, ErrEmptySource)

	_, err = NormalizeManifestURL("ftp://files.example/manifest.json")
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = NormalizeManifestURL("https:///manifest.json")
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestBuildStreamURL(t *testing.T) {
	for _, tc := range []struct {
		name     string
		manifest string
		typ      string
		id       string
		want     string
	}{
		{"query preserved", "https://upstream.example/manifest.json?token=abc", "movie", "tt0111161", "https://upstream.example/stream/movie/tt0111161.json?token=abc"},
		{"no query", "https://torrentio.strem.fun/manifest.json", "series", "tt0944947:1:2", "https://torrentio.strem.fun/stream/series/tt0944947:1:2.json"},
		{"path options", "https://torrentio.strem.fun/sort=qualitysize|realdebrid=KEY/manifest.json", "movie", "tt1", "https://torrentio.strem.fun/sort=qualitysize|realdebrid=KEY/stream/movie/tt1.json"},
		{"bare origin", "https://addon.example/", "movie", "tt1", "https://addon.example/stream/movie/tt1.json"},
		{"multi query and fragment", "https://a.example/manifest.json?x=1&y=%2F#frag", "movie", "tt1", "https://a.example/stream/movie/tt1.json?x=1&y=%2F"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BuildStreamURL(tc.manifest, tc.typ, tc.id)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
