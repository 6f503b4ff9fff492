package filter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"stream-renamer/work/logger"
	"stream-renamer/work/metrics"
	"stream-renamer/work/patterns"
	"stream-renamer/work/types"
)

// Candidate is a shaped entry waiting to be rewritten and named.
type Candidate struct {
	Entry       types.StreamEntry
	Substituted bool // SourceURL was a placeholder and now points at the fallback video
}

// Env is the variable set visible to filter expressions, for example
// `Direct && Size < 8e9` or `not (Name contains "CAM")`.
type Env struct {
	Direct   bool
	URL      string
	Name     string
	Title    string
	Filename string
	Size     int64
	Debrid   bool
}

// Options configures a Shaper.
type Options struct {
	Placeholders         *patterns.Set // Placeholder table, nil disables substitution
	FallbackURL          string        // Replacement for placeholder URLs
	DirectOnly           bool          // Drop torrent-only entries
	RestrictedMaxStreams int           // Cap for restricted clients, 0 disables
	DebridMarker         string        // Marker exposed to expressions as Debrid
	Expression           string        // Optional boolean filter expression
}

// Shaper turns a raw upstream list into the ordered candidate list.
type Shaper struct {
	opts    Options
	program *vm.Program
}

// NewShaper compiles the filter expression, if any, and returns the shaper.
func NewShaper(opts Options) (*Shaper, error) {
	s := &Shaper{opts: opts}

	if src := strings.TrimSpace(opts.Expression); src != "" {
		program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile filter expression: %w", err)
		}
		s.program = program
	}

	return s, nil
}

// Partition splits entries into direct and torrent-only lists, keeping the
// upstream order inside each.
func Partition(entries []types.StreamEntry) (direct, torrentOnly []types.StreamEntry) {
	for _, e := range entries {
		if e.IsDirect() {
			direct = append(direct, e)
		} else {
			torrentOnly = append(torrentOnly, e)
		}
	}
	return direct, torrentOnly
}

// IsPlaceholder reports whether a URL points at a known status video. Query
// and fragment are ignored so cache-busting parameters do not hide a match.
func (s *Shaper) IsPlaceholder(rawURL string) bool {
	if s.opts.Placeholders == nil || rawURL == "" {
		return false
	}

	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		rawURL = u.Scheme + "://" + u.Host + u.EscapedPath()
	}
	return s.opts.Placeholders.Match(rawURL)
}

// Shape applies placeholder substitution, the optional expression filter,
// direct-first ordering, the direct-only policy and the restricted-client cap,
// in that order.
func (s *Shaper) Shape(entries []types.StreamEntry, class types.DeviceClass) []Candidate {
	direct, torrentOnly := Partition(entries)

	out := make([]Candidate, 0, len(entries))
	for _, e := range direct {
		c := Candidate{Entry: e}
		if s.IsPlaceholder(e.SourceURL) {
			logger.Debug("{filter - Shape} substituting placeholder %q", e.SourceURL)
			metrics.PlaceholderSubstitutions.Inc()
			c.Entry.SourceURL = s.opts.FallbackURL
			c.Substituted = true
		}
		if s.keep(c.Entry) {
			out = append(out, c)
		}
	}

	if !s.opts.DirectOnly {
		for _, e := range torrentOnly {
			if s.keep(e) {
				out = append(out, Candidate{Entry: e})
			}
		}
	}

	if class == types.Restricted && s.opts.RestrictedMaxStreams > 0 && len(out) > s.opts.RestrictedMaxStreams {
		out = out[:s.opts.RestrictedMaxStreams]
	}

	return out
}

// keep evaluates the filter expression. Evaluation errors keep the entry so a
// bad expression degrades to no filtering instead of an empty list.
func (s *Shaper) keep(e types.StreamEntry) bool {
	if s.program == nil {
		return true
	}

	env := Env{
		Direct:   e.IsDirect(),
		URL:      e.SourceURL,
		Name:     e.DisplayName,
		Title:    e.Title,
		Filename: e.Hints.Filename,
		Size:     e.Hints.VideoSize,
		Debrid:   s.opts.DebridMarker != "" && strings.Contains(e.SourceURL, s.opts.DebridMarker),
	}

	result, err := expr.Run(s.program, env)
	if err != nil {
		logger.Warn("{filter - keep} expression failed for %q: %v", e.DisplayName, err)
		return true
	}

	keep, ok := result.(bool)
	return !ok || keep
}
