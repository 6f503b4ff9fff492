package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/url"
	"strings"

	"stream-renamer/work/config"
)

// LogURL returns either the original URL or an obfuscated version for logging
func LogURL(cfg *config.Config, url string) string {
	if cfg != nil && cfg.ObfuscateUrls {
		return ObfuscateURL(url)
	}
	return url
}

// filenameReplacements maps characters players and file systems choke on.
var filenameReplacements = strings.NewReplacer(
	" ", "_",
	"\t", "_",
	"\n", "_",
	"\r", "_",
	",", "_",
	"\"", "",
	"'", "",
	"[", "",
	"]", "",
	"(", "",
	")", "",
	"/", "_",
	"\\", "_",
	"?", "_",
	"&", "_",
	"=", "_",
	":", "_",
	";", "_",
	"|", "_",
	"*", "_",
	"<", "_",
	">", "_",
	"#", "_",
	"%", "_",
)

// SanitizeFilename turns a label into a safe, whitespace-free file stem, for
// example "[RD] Stream 1" becomes "RD_Stream_1".
func SanitizeFilename(name string) string {
	sanitized := filenameReplacements.Replace(name)

	// Remove consecutive underscores
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}

	return strings.Trim(sanitized, "_")
}

// ObfuscateURL keeps scheme and host and masks path, query and fragment.
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "***OBFUSCATED***"
	}

	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}

	return result
}

var ipRequestHeaders = []string{
	"Cf-Connecting-Ip", // Cloudflare
	"True-Client-Ip",   // Akamai / Cloudflare
	"X-Real-Ip",        // nginx
	"X-Forwarded-For",  // Load-balancers / proxies
}

// ClientIP returns the best guess of the caller's address. Private addresses are
// accepted because the service commonly runs on a home LAN next to the TV.
func ClientIP(r *http.Request) string {
	for _, header := range ipRequestHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		for candidate := range strings.SplitSeq(value, ",") {
			if ip := net.ParseIP(strings.TrimSpace(candidate)); ip != nil {
				return ip.String()
			}
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ClientID derives a stable, non-reversible identifier from the caller's address
// and User-Agent, used to key remembered sources.
func ClientID(r *http.Request) string {
	sum := sha256.Sum256([]byte(ClientIP(r) + "|" + r.UserAgent()))
	return hex.EncodeToString(sum[:16])
}
