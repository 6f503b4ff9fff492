package types

import (
	"strings"
)

// DeviceClass describes how much the requesting client can be trusted to follow
// third-party redirects. Restricted clients (TVs, casting receivers, players that
// hide their identity) are handed same-origin URLs instead of upstream links.
type DeviceClass int

const (
	Unrestricted DeviceClass = iota // Desktop, mobile and web clients that follow redirects
	Restricted                      // TV-class clients that only play same-origin URLs
)

// String returns the lower-case label used in logs, metrics and cache keys.
func (d DeviceClass) String() string {
	if d == Restricted {
		return "restricted"
	}
	return "unrestricted"
}

// FileHints carries the optional playback hints attached to an upstream stream.
type FileHints struct {
	Filename    string // Upstream filename, usually the release name
	BingeGroup  string // Grouping key used by Stremio for auto-play of the next episode
	VideoSize   int64  // Size of the file in bytes, when reported
	NotWebReady bool   // Upstream marked the stream as not playable in a browser
	Container   string // Container hint, populated by the HLS probe
	VideoCodec  string // Codec hint, populated by the HLS probe
}

// StreamEntry is one stream option as returned by the upstream addon. Entries
// are created per fetch and never persisted.
type StreamEntry struct {
	SourceURL   string    // Playable URL, empty for torrent-only entries
	InfoHash    string    // Torrent info hash, present for torrent-only entries
	FileIdx     *int      // File index inside the torrent
	DisplayName string    // Upstream "name" field, e.g. "[RD+] Torrentio\n4k"
	Title       string    // Upstream "title"/"description" text
	Sources     []string  // Tracker/DHT sources for torrent-only entries
	Hints       FileHints // Playback hints copied from upstream behaviorHints
}

// IsDirect reports whether the entry carries an http(s) URL.
func (e StreamEntry) IsDirect() bool {
	u := strings.ToLower(e.SourceURL)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// BehaviorHints is the outbound hint object. Filename is always set so players
// show the renamed label instead of the upstream release name.
type BehaviorHints struct {
	Filename    string `json:"filename"`
	BingeGroup  string `json:"bingeGroup,omitempty"`
	VideoSize   int64  `json:"videoSize,omitempty"`
	NotWebReady bool   `json:"notWebReady,omitempty"`
	Container   string `json:"container,omitempty"`
	VideoCodec  string `json:"videoCodec,omitempty"`
}

// TransformedStream is the renamed entry sent back to the client.
type TransformedStream struct {
	Name          string        `json:"name"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	URL           string        `json:"url,omitempty"`
	InfoHash      string        `json:"infoHash,omitempty"`
	FileIdx       *int          `json:"fileIdx,omitempty"`
	Sources       []string      `json:"sources,omitempty"`
	BehaviorHints BehaviorHints `json:"behaviorHints"`
}

// StreamResponse is the body of a stream-list reply. Streams is never nil so
// the JSON form is always an array.
type StreamResponse struct {
	Streams []TransformedStream `json:"streams"`
}

// EmptyResponse returns a response with a zero-length, non-nil stream list.
func EmptyResponse() *StreamResponse {
	return &StreamResponse{Streams: []TransformedStream{}}
}

// UpstreamHints mirrors the behaviorHints object of the upstream payload.
type UpstreamHints struct {
	Filename    string `json:"filename"`
	BingeGroup  string `json:"bingeGroup"`
	VideoSize   int64  `json:"videoSize"`
	NotWebReady bool   `json:"notWebReady"`
}

// UpstreamStream mirrors one element of the upstream "streams" array.
type UpstreamStream struct {
	Name          string        `json:"name"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	URL           string        `json:"url"`
	InfoHash      string        `json:"infoHash"`
	FileIdx       *int          `json:"fileIdx"`
	Sources       []string      `json:"sources"`
	BehaviorHints UpstreamHints `json:"behaviorHints"`
}

// UpstreamResponse is the upstream stream-list payload.
type UpstreamResponse struct {
	Streams []UpstreamStream `json:"streams"`
}

// ToEntry converts the wire representation into a StreamEntry. Upstreams use
// either "title" or "description" for the long text; the first non-empty wins.
func (s UpstreamStream) ToEntry() StreamEntry {
	title := s.Title
	if title == "" {
		title = s.Description
	}

	return StreamEntry{
		SourceURL:   strings.TrimSpace(s.URL),
		InfoHash:    s.InfoHash,
		FileIdx:     s.FileIdx,
		DisplayName: s.Name,
		Title:       title,
		Sources:     s.Sources,
		Hints: FileHints{
			Filename:    s.BehaviorHints.Filename,
			BingeGroup:  s.BehaviorHints.BingeGroup,
			VideoSize:   s.BehaviorHints.VideoSize,
			NotWebReady: s.BehaviorHints.NotWebReady,
		},
	}
}
