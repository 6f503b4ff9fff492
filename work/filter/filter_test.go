package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stream-renamer/work/config"
	"stream-renamer/work/patterns"
	"stream-renamer/work/types"
)

const fallback = "https://fallback.example/video.mp4"

func direct(n int) types.StreamEntry {
	return types.StreamEntry{SourceURL: fmt.Sprintf("https://cdn.example/%d.mkv", n), DisplayName: fmt.Sprintf("d%d", n)}
}

func torrent(n int) types.StreamEntry {
	return types.StreamEntry{InfoHash: fmt.Sprintf("hash%d", n), DisplayName: fmt.Sprintf("t%d", n)}
}

func newShaper(t *testing.T, opts Options) *Shaper {
	t.Helper()
	if opts.Placeholders == nil {
		set, errs := patterns.NewSet(config.DefaultPlaceholderPatterns())
		require.Empty(t, errs)
		opts.Placeholders = set
	}
	if opts.FallbackURL == "" {
		opts.FallbackURL = fallback
	}
	s, err := NewShaper(opts)
	require.NoError(t, err)
	return s
}

func names(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Entry.DisplayName
	}
	return out
}

func TestPartition(t *testing.T) {
	d, tor := Partition([]types.StreamEntry{torrent(1), direct(1), {SourceURL: "HTTP://X.example/a"}, torrent(2), {SourceURL: "magnet:?xt=1"}})
	assert.Len(t, d, 2)
	assert.Len(t, tor, 3)
}

func TestShapeOrdersDirectFirst(t *testing.T) {
	s := newShaper(t, Options{RestrictedMaxStreams: 10})
	out := s.Shape([]types.StreamEntry{torrent(1), direct(1), torrent(2), direct(2), direct(3)}, types.Unrestricted)

	assert.Equal(t, []string{"d1", "d2", "d3", "t1", "t2"}, names(out))
}

func TestShapeDirectOnly(t *testing.T) {
	s := newShaper(t, Options{DirectOnly: true})
	out := s.Shape([]types.StreamEntry{torrent(1), direct(1)}, types.Unrestricted)

	assert.Equal(t, []string{"d1"}, names(out))
}

func TestShapeCapsRestrictedOnly(t *testing.T) {
	var entries []types.StreamEntry
	for i := 0; i < 15; i++ {
		entries = append(entries, direct(i))
	}
	s := newShaper(t, Options{RestrictedMaxStreams: 10})

	assert.Len(t, s.Shape(entries, types.Restricted), 10)
	assert.Len(t, s.Shape(entries, types.Unrestricted), 15)

	uncapped := newShaper(t, Options{RestrictedMaxStreams: 0})
	assert.Len(t, uncapped.Shape(entries, types.Restricted), 15)
}

func TestShapeSubstitutesPlaceholders(t *testing.T) {
	s := newShaper(t, Options{})
	entries := []types.StreamEntry{
		{SourceURL: "https://torrentio.strem.fun/videos/downloading_v2.mp4", DisplayName: "p"},
		direct(1),
	}

	out := s.Shape(entries, types.Unrestricted)
	require.Len(t, out, 2)
	assert.Equal(t, fallback, out[0].Entry.SourceURL)
	assert.True(t, out[0].Substituted)
	assert.False(t, out[1].Substituted)
	assert.Equal(t, "https://torrentio.strem.fun/videos/downloading_v2.mp4", entries[0].SourceURL)
}

func TestShapeExpression(t *testing.T) {
	s := newShaper(t, Options{Expression: `Direct && Size < 1000`})
	small := direct(1)
	small.Hints.VideoSize = 10
	big := direct(2)
	big.Hints.VideoSize = 5000

	out := s.Shape([]types.StreamEntry{small, big, torrent(1)}, types.Unrestricted)
	assert.Equal(t, []string{"d1"}, names(out))
}

func TestNewShaperRejectsBadExpression(t *testing.T) {
	_, err := NewShaper(Options{Expression: `Size +`})
	assert.ErrorContains(t, err, "failed to compile filter expression")

	_, err = NewShaper(Options{Expression: `Size`})
	assert.Error(t, err)
}

func TestShapeEmpty(t *testing.T) {
	s := newShaper(t, Options{})
	assert.Empty(t, s.Shape(nil, types.Restricted))
}
