package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1280x720,CODECS="avc1.4d401f,mp4a.40.2"
720p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,CODECS="avc1.640028,mp4a.40.2"
1080p.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,
seg0.ts
#EXT-X-ENDLIST
`

func TestDecodeMasterPicksBestVariant(t *testing.T) {
	info, err := Decode(strings.NewReader(masterPlaylist))
	require.NoError(t, err)

	assert.Equal(t, "hls", info.Container)
	assert.Equal(t, "avc1.640028,mp4a.40.2", info.VideoCodec)
	assert.Equal(t, "1920x1080", info.Resolution)
	assert.Equal(t, uint32(5000000), info.Bandwidth)
}

func TestDecodeMedia(t *testing.T) {
	info, err := Decode(strings.NewReader(mediaPlaylist))
	require.NoError(t, err)
	assert.Equal(t, Info{Container: "hls"}, info)
}

func TestIsHLS(t *testing.T) {
	assert.True(t, IsHLS("https://cdn.example/live/index.M3U8?token=x"))
	assert.False(t, IsHLS("https://cdn.example/movie.mkv"))
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.m3u8" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(masterPlaylist))
	}))
	defer srv.Close()

	p := New(http.DefaultClient, time.Second)

	info, ok := p.Probe(context.Background(), srv.URL+"/master.m3u8")
	require.True(t, ok)
	assert.Equal(t, "1920x1080", info.Resolution)

	_, ok = p.Probe(context.Background(), srv.URL+"/missing.m3u8")
	assert.False(t, ok)
}
