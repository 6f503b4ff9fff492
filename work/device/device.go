package device

import (
	"strings"

	"github.com/grafana/regexp"

	"stream-renamer/work/logger"
	"stream-renamer/work/types"
)

// Rule is one named User-Agent pattern that marks a client as restricted.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultRules covers the TV, casting and set-top players that refuse
// cross-origin redirects. Plain "Android" is deliberately absent so phones stay
// unrestricted; Android TV builds identify themselves separately.
var DefaultRules = []Rule{
	{"chromecast", regexp.MustCompile(`(?i)crkey|chromecast`)},
	{"smart-tv", regexp.MustCompile(`(?i)smart-?tv`)},
	{"android-tv", regexp.MustCompile(`(?i)android ?tv|googletv|google tv`)},
	{"fire-tv", regexp.MustCompile(`(?i)\baft[a-z]{1,3}\b|fire ?tv`)},
	{"bravia", regexp.MustCompile(`(?i)bravia`)},
	{"tizen", regexp.MustCompile(`(?i)tizen`)},
	{"webos", regexp.MustCompile(`(?i)web0s|webos|netcast`)},
	{"hbbtv", regexp.MustCompile(`(?i)hbbtv`)},
	{"vidaa", regexp.MustCompile(`(?i)vidaa`)},
	{"exoplayer", regexp.MustCompile(`(?i)exoplayer`)},
	{"apple-tv", regexp.MustCompile(`(?i)appletv|apple tv|tvos`)},
	{"roku", regexp.MustCompile(`(?i)roku`)},
	{"shield", regexp.MustCompile(`(?i)shield android tv|nvidia shield`)},
}

// DefaultPlatforms are the platform hints that force the restricted class.
var DefaultPlatforms = []string{
	"tv", "androidtv", "android-tv", "smarttv", "chromecast", "cast",
	"webos", "tizen", "firetv", "googletv", "appletv", "roku",
}

// Classifier decides the DeviceClass of a request. It holds no per-request
// state and is safe for concurrent use.
type Classifier struct {
	rules     []Rule
	platforms map[string]struct{}
}

// NewClassifier builds a classifier from explicit rule and platform tables.
// Nil tables select the defaults.
func NewClassifier(rules []Rule, platforms []string) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	if platforms == nil {
		platforms = DefaultPlatforms
	}

	set := make(map[string]struct{}, len(platforms))
	for _, p := range platforms {
		set[normalizeHint(p)] = struct{}{}
	}

	return &Classifier{rules: rules, platforms: set}
}

// RulesFromPatterns compiles User-Agent patterns from configuration. Invalid
// patterns are logged and skipped. A nil input returns nil so the defaults apply.
func RulesFromPatterns(patterns []string) []Rule {
	if patterns == nil {
		return nil
	}

	rules := make([]Rule, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			logger.Warn("{device - RulesFromPatterns} skipping invalid agent pattern %q: %v", p, err)
			continue
		}
		rules = append(rules, Rule{Name: p, Pattern: re})
	}
	return rules
}

// Classify returns Restricted when the platform hint names a TV-class
// platform, when the User-Agent matches a rule, or when no User-Agent was sent.
// Every other request is Unrestricted.
func (c *Classifier) Classify(userAgent, platformHint string) types.DeviceClass {
	if hint := normalizeHint(platformHint); hint != "" {
		if _, ok := c.platforms[hint]; ok {
			return types.Restricted
		}
	}

	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		return types.Restricted
	}

	if c.MatchedRule(ua) != "" {
		return types.Restricted
	}
	return types.Unrestricted
}

// MatchedRule returns the name of the first rule matching the User-Agent, or
// an empty string.
func (c *Classifier) MatchedRule(userAgent string) string {
	for _, r := range c.rules {
		if r.Pattern.MatchString(userAgent) {
			return r.Name
		}
	}
	return ""
}

func normalizeHint(hint string) string {
	return strings.ToLower(strings.TrimSpace(hint))
}
