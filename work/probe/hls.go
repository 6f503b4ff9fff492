package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grafov/m3u8"

	"stream-renamer/work/logger"
	"stream-renamer/work/metrics"
	"stream-renamer/work/upstream"
)

// maxPlaylistSize caps how much of a playlist is read.
const maxPlaylistSize = 1 << 20

// Info holds the hints extracted from an HLS playlist.
type Info struct {
	Container  string // always "hls" for a decoded playlist
	VideoCodec string // CODECS attribute of the best variant
	Resolution string // RESOLUTION attribute of the best variant
	Bandwidth  uint32 // BANDWIDTH attribute of the best variant
}

// Prober fetches and decodes HLS playlists.
type Prober struct {
	client  upstream.Doer
	timeout time.Duration
}

// New creates a prober with a per-request timeout.
func New(client upstream.Doer, timeout time.Duration) *Prober {
	return &Prober{client: client, timeout: timeout}
}

// IsHLS reports whether a URL path looks like an HLS playlist.
func IsHLS(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

// Probe fetches the playlist at rawURL and returns hints from the highest
// bandwidth variant of a master playlist. Media playlists only yield the
// container. Failures return ok=false.
func (p *Prober) Probe(ctx context.Context, rawURL string) (Info, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	info, err := p.probe(ctx, rawURL)
	if err != nil {
		logger.Debug("{probe - Probe} %v", err)
		metrics.Probes.WithLabelValues("failed").Inc()
		return Info{}, false
	}

	metrics.Probes.WithLabelValues("ok").Inc()
	return info, true
}

func (p *Prober) probe(ctx context.Context, rawURL string) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Info{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("playlist returned status %d", resp.StatusCode)
	}

	return Decode(io.LimitReader(resp.Body, maxPlaylistSize))
}

// Decode parses a playlist body into Info.
func Decode(r io.Reader) (Info, error) {
	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(r), false)
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode playlist: %w", err)
	}

	info := Info{Container: "hls"}
	if listType != m3u8.MASTER {
		return info, nil
	}

	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return info, nil
	}

	var best *m3u8.Variant
	for _, variant := range master.Variants {
		if variant == nil {
			break
		}
		if best == nil || variant.Bandwidth > best.Bandwidth {
			best = variant
		}
	}

	if best != nil {
		info.VideoCodec = best.Codecs
		info.Resolution = best.Resolution
		info.Bandwidth = best.Bandwidth
	}

	return info, nil
}
