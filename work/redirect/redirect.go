package redirect

import (
	"errors"
	"net/url"
	"strings"

	"stream-renamer/work/patterns"
)

var (
	ErrMissingTarget = errors.New("missing target")
	ErrInvalidTarget = errors.New("bad url")
	ErrBlockedTarget = errors.New("blocked")
)

// AllowList decides which hosts the /proxy endpoint may redirect to. Hosts are
// matched against a replaceable pattern set plus a fixed list of exact hosts
// (the fallback video's host, for example).
type AllowList struct {
	hosts *patterns.Set
	exact map[string]struct{}
}

// NewAllowList wraps a host pattern set. exactHosts are always allowed.
func NewAllowList(hosts *patterns.Set, exactHosts ...string) *AllowList {
	exact := make(map[string]struct{}, len(exactHosts))
	for _, h := range exactHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			exact[h] = struct{}{}
		}
	}
	return &AllowList{hosts: hosts, exact: exact}
}

// HostOf returns the lower-case hostname of rawURL, or "" when it does not parse.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Allowed reports whether host may be redirected to.
func (a *AllowList) Allowed(host string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	if _, ok := a.exact[host]; ok {
		return true
	}
	return a.hosts != nil && a.hosts.Match(host)
}

// Check validates a decoded redirect target. The target must be an absolute
// http(s) URL whose host is on the allow-list.
func (a *AllowList) Check(target string) (*url.URL, error) {
	if strings.TrimSpace(target) == "" {
		return nil, ErrMissingTarget
	}

	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return nil, ErrInvalidTarget
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrBlockedTarget
	}
	if !a.Allowed(u.Hostname()) {
		return nil, ErrBlockedTarget
	}

	return u, nil
}
