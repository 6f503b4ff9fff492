package patterns

import (
	"fmt"
	"sync"

	"github.com/grafana/regexp"
)

// Set is a concurrency-safe list of compiled regular expressions that can be
// swapped at runtime, for example after the admin API edits a table.
type Set struct {
	mu       sync.RWMutex
	compiled []*regexp.Regexp
	sources  []string
}

// NewSet compiles the given patterns. Invalid patterns are skipped and reported
// through the returned error slice so one typo does not disable the whole set.
func NewSet(patterns []string) (*Set, []error) {
	s := &Set{}
	errs := s.Replace(patterns)
	return s, errs
}

// Replace atomically swaps the set's contents for the compiled patterns.
func (s *Set) Replace(patterns []string) []error {
	var errs []error
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	sources := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid pattern %q: %w", p, err))
			continue
		}
		compiled = append(compiled, re)
		sources = append(sources, p)
	}

	s.mu.Lock()
	s.compiled = compiled
	s.sources = sources
	s.mu.Unlock()

	return errs
}

// Match reports whether any pattern matches value.
func (s *Set) Match(value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, re := range s.compiled {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// Patterns returns the source text of the active patterns.
func (s *Set) Patterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.sources))
	copy(out, s.sources)
	return out
}

// Len returns the number of active patterns.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.compiled)
}
