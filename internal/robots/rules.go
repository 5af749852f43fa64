package robots

import (
	"net/url"
	"regexp"
	"strings"
)

// Rules is the parsed robots.txt of one origin. It is not modified after
// FetchRules or Parse returns it.
type Rules struct {
	// AllowedPaths are Allow patterns from the relevant groups.
	AllowedPaths []string `json:"allowedPaths"`

	// DisallowedPaths are Disallow patterns from the relevant groups.
	DisallowedPaths []string `json:"disallowedPaths"`

	// CrawlDelay is the Crawl-delay in seconds, nil when absent or out of range.
	CrawlDelay *float64 `json:"crawlDelay,omitempty"`

	// SitemapURLs are absolute sitemap locations announced by the site.
	SitemapURLs []string `json:"sitemapUrls"`
}

// Empty returns a rule set that allows every path.
func Empty() *Rules {
	return &Rules{
		AllowedPaths:    []string{},
		DisallowedPaths: []string{},
		SitemapURLs:     []string{},
	}
}

// CrawlDelaySeconds returns the crawl delay, or 0 when none was set.
func (r *Rules) CrawlDelaySeconds() float64 {
	if r == nil || r.CrawlDelay == nil {
		return 0
	}
	return *r.CrawlDelay
}

// IsAllowed reports whether rawURL may be crawled under rules.
// A nil rule set or an unparseable URL is allowed.
func IsAllowed(rules *Rules, rawURL string) bool {
	if rules == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	bestLen := -1
	allowed := true

	for _, p := range rules.AllowedPaths {
		if len(p) > bestLen && pathMatches(path, p) {
			bestLen = len(p)
			allowed = true
		}
	}
	for _, p := range rules.DisallowedPaths {
		if len(p) > bestLen && pathMatches(path, p) {
			bestLen = len(p)
			allowed = false
		}
	}
	return allowed
}

// pathMatches matches path against a robots.txt pattern. Without a
// wildcard the pattern is a prefix, or an exact path when it ends in "$".
func pathMatches(path, pattern string) bool {
	if pattern == "" {
		return false
	}

	anchored := strings.HasSuffix(pattern, "$")
	clean := strings.TrimSuffix(pattern, "$")

	if !strings.Contains(clean, "*") {
		if anchored {
			return path == clean
		}
		return strings.HasPrefix(path, clean)
	}

	parts := strings.Split(clean, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	expr := "^" + strings.Join(parts, ".*")
	if anchored {
		expr += "$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return strings.HasPrefix(path, strings.ReplaceAll(clean, "*", ""))
	}
	return re.MatchString(path)
}
