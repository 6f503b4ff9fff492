package upstream

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrEmptySource   = errors.New("empty source url")
	ErrInvalidSource = errors.New("invalid source url")
)

const manifestSuffix = "/manifest.json"

// NormalizeManifestURL cleans up a user-supplied addon URL. Values pasted from
// the Stremio UI are often percent-encoded or use the stremio:// scheme; both
// forms are turned into a plain https URL. The rest of the string, including
// the path and query, is kept verbatim because addons encode their options and
// tokens there.
func NormalizeManifestURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptySource
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http%3a") || strings.HasPrefix(lower, "https%3a") || strings.HasPrefix(lower, "stremio%3a") {
		decoded, err := url.PathUnescape(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		s = decoded
		lower = strings.ToLower(s)
	}

	switch {
	case strings.HasPrefix(lower, "stremio://"):
		s = "https://" + s[len("stremio://"):]
	case !strings.Contains(lower, "://"):
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidSource)
	}

	return s, nil
}

// BuildStreamURL derives the upstream stream-list endpoint from a manifest URL:
// the trailing /manifest.json is dropped, /stream/<type>/<id>.json is appended
// to the remaining origin and path, and the original query string is carried
// over unchanged.
func BuildStreamURL(manifestURL, contentType, id string) (string, error) {
	base, err := NormalizeManifestURL(manifestURL)
	if err != nil {
		return "", err
	}

	// fragments never reach the server
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}

	query := ""
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base, query = base[:i], base[i:]
	}

	if strings.HasSuffix(strings.ToLower(base), manifestSuffix) {
		base = base[:len(base)-len(manifestSuffix)]
	}
	base = strings.TrimRight(base, "/")

	return base + "/stream/" + url.PathEscape(contentType) + "/" + url.PathEscape(id) + ".json" + query, nil
}
