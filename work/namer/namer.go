package namer

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/grafana/regexp"

	"stream-renamer/work/types"
	"stream-renamer/work/utils"
)

// tagPattern finds a debrid tag such as "[RD+]" or "[RD download]" in an
// upstream display name.
var tagPattern = regexp.MustCompile(`\[RD[^\]]*\]`)

// videoContainers are the extensions kept in filename hints.
var videoContainers = map[string]struct{}{
	"mp4": {}, "mkv": {}, "avi": {}, "webm": {}, "mov": {}, "m4v": {},
	"ts": {}, "m2ts": {}, "m3u8": {}, "flv": {}, "wmv": {}, "mpg": {}, "mpeg": {},
}

const defaultContainer = "mp4"

// Namer assigns sequential labels and filename hints.
type Namer struct {
	marker     string
	defaultTag string
}

// New creates a namer. marker identifies debrid resolver URLs, defaultTag is
// used when the upstream name carries no tag of its own.
func New(marker, defaultTag string) *Namer {
	return &Namer{marker: marker, defaultTag: defaultTag}
}

// Label returns "Stream <n>", prefixed with the debrid tag when the entry's
// pre-rewrite URL is a debrid resolver link.
func (n *Namer) Label(position int, entry types.StreamEntry) string {
	label := "Stream " + strconv.Itoa(position)
	if tag := n.Tag(entry); tag != "" {
		label = tag + " " + label
	}
	return label
}

// Tag returns the debrid tag for an entry or an empty string.
func (n *Namer) Tag(entry types.StreamEntry) string {
	if n.marker == "" || !strings.Contains(entry.SourceURL, n.marker) {
		return ""
	}
	if tag := tagPattern.FindString(entry.DisplayName); tag != "" {
		return tag
	}
	return n.defaultTag
}

// Filename builds the filename hint from a label: whitespace becomes "_",
// unsafe characters are dropped and a container extension is appended.
func (n *Namer) Filename(label string, entry types.StreamEntry, playbackURL string) string {
	return utils.SanitizeFilename(label) + "." + Container(playbackURL, entry.Hints.Filename)
}

// Name returns the label and filename of the entry at 1-based position.
func (n *Namer) Name(position int, entry types.StreamEntry, playbackURL string) (label, filename string) {
	label = n.Label(position, entry)
	return label, n.Filename(label, entry, playbackURL)
}

// Container infers a known video container from the URL path suffix, then from
// the upstream filename, and defaults to mp4.
func Container(rawURL, upstreamFilename string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := knownExt(u.Path); ext != "" {
			return ext
		}
	}
	if ext := knownExt(upstreamFilename); ext != "" {
		return ext
	}
	return defaultContainer
}

func knownExt(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if _, ok := videoContainers[ext]; ok {
		return ext
	}
	return ""
}
