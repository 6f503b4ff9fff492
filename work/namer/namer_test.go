package namer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stream-renamer/work/types"
)

const marker = "/resolve/realdebrid/"

func TestName(t *testing.T) {
	n := New(marker, "[RD]")

	for _, tc := range []struct {
		name         string
		position     int
		entry        types.StreamEntry
		playback     string
		wantLabel    string
		wantFilename string
	}{
		{
			name:         "plain direct",
			position:     1,
			entry:        types.StreamEntry{SourceURL: "https://cdn.example/movie.mkv", DisplayName: "Torrentio\n1080p"},
			playback:     "https://cdn.example/movie.mkv",
			wantLabel:    "Stream 1",
			wantFilename: "Stream_1.mkv",
		},
		{
			name:         "debrid with upstream tag",
			position:     2,
			entry:        types.StreamEntry{SourceURL: "https://torrentio.example/resolve/realdebrid/K/h/null/0/x", DisplayName: "[RD+] Torrentio\n4k"},
			playback:     "https://download.real-debrid.com/d/ABC/Movie.2160p.MKV",
			wantLabel:    "[RD+] Stream 2",
			wantFilename: "RD+_Stream_2.mkv",
		},
		{
			name:         "debrid default tag",
			position:     1,
			entry:        types.StreamEntry{SourceURL: "https://torrentio.example/resolve/realdebrid/K/h/null/0/x", DisplayName: "Torrentio"},
			playback:     "/proxy?u=https%3A%2F%2Ftorrentio.example%2Fresolve",
			wantLabel:    "[RD] Stream 1",
			wantFilename: "RD_Stream_1.mp4",
		},
		{
			name:         "torrent uses upstream filename",
			position:     3,
			entry:        types.StreamEntry{InfoHash: "abc", DisplayName: "[RD] cached", Hints: types.FileHints{Filename: "Show.S01E01.avi"}},
			playback:     "",
			wantLabel:    "Stream 3",
			wantFilename: "Stream_3.avi",
		},
		{
			name:         "unknown extension",
			position:     4,
			entry:        types.StreamEntry{SourceURL: "https://cdn.example/play.php?id=1"},
			playback:     "https://cdn.example/play.php?id=1",
			wantLabel:    "Stream 4",
			wantFilename: "Stream_4.mp4",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			label, filename := n.Name(tc.position, tc.entry, tc.playback)
			assert.Equal(t, tc.wantLabel, label)
			assert.Equal(t, tc.wantFilename, filename)
		})
	}
}

func TestNameIsIdempotent(t *testing.T) {
	n := New(marker, "[RD]")
	e := types.StreamEntry{SourceURL: "https://t.example/resolve/realdebrid/x", DisplayName: "[RD download]"}

	l1, f1 := n.Name(5, e, e.SourceURL)
	l2, f2 := n.Name(5, e, e.SourceURL)
	assert.Equal(t, l1, l2)
	assert.Equal(t, f1, f2)
	assert.Equal(t, "[RD download] Stream 5", l1)
	assert.Equal(t, "RD_download_Stream_5.mp4", f1)
}

func TestContainer(t *testing.T) {
	assert.Equal(t, "m3u8", Container("https://cdn.example/live/index.m3u8?token=1", ""))
	assert.Equal(t, "webm", Container("not a url ::", "clip.webm"))
	assert.Equal(t, "mp4", Container("", ""))
}
