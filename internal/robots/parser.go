package robots

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/siteaudit/internal/urlnorm"
)

// maxCrawlDelay is the largest Crawl-delay, in seconds, that is honored.
const maxCrawlDelay = 120

// Parse builds Rules from a robots.txt body. It never fails; lines it does
// not understand are skipped.
func Parse(body []byte) *Rules {
	rules := Empty()
	body = normalizeNewlines(body)

	relevant := false
	inAgentRun := false

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), len(body)+1)
	for scanner.Scan() {
		directive, value, ok := splitLine(scanner.Text())
		if !ok {
			continue
		}

		switch directive {
		case "user-agent":
			// Consecutive User-agent lines share one group.
			if !inAgentRun {
				relevant = false
			}
			inAgentRun = true
			if isRelevantAgent(value) {
				relevant = true
			}
			continue
		case "sitemap":
			addSitemap(rules, value)
		}
		inAgentRun = false

		if !relevant {
			continue
		}
		switch directive {
		case "allow":
			if value != "" {
				rules.AllowedPaths = append(rules.AllowedPaths, value)
			}
		case "disallow":
			if value != "" {
				rules.DisallowedPaths = append(rules.DisallowedPaths, value)
			}
		case "crawl-delay":
			if d, err := strconv.ParseFloat(value, 64); err == nil && d >= 0 && d <= maxCrawlDelay {
				rules.CrawlDelay = &d
			}
		}
	}

	mergeSitemapHints(rules, body)
	return rules
}

func splitLine(line string) (string, string, bool) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", false
	}
	directive, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(directive)), strings.TrimSpace(value), true
}

func isRelevantAgent(agent string) bool {
	agent = strings.ToLower(agent)
	return agent == "*" ||
		strings.Contains(agent, "bot") ||
		strings.Contains(agent, "crawler") ||
		strings.Contains(agent, "spider")
}

func addSitemap(rules *Rules, raw string) {
	if raw == "" {
		return
	}
	if _, err := urlnorm.Normalize(raw); err != nil {
		return
	}
	for _, s := range rules.SitemapURLs {
		if s == raw {
			return
		}
	}
	rules.SitemapURLs = append(rules.SitemapURLs, raw)
}

// normalizeNewlines turns CRLF and bare CR line breaks into LF, since
// bufio.ScanLines only splits on LF.
func normalizeNewlines(body []byte) []byte {
	if bytes.IndexByte(body, '\r') < 0 {
		return body
	}
	body = bytes.ReplaceAll(body, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(body, []byte("\r"), []byte("\n"))
}

// mergeSitemapHints adds sitemap locations that robotstxt recognizes but the
// line scanner did not.
func mergeSitemapHints(rules *Rules, body []byte) {
	data, err := robotstxt.FromBytes(body)
	if err != nil || data == nil {
		return
	}
	for _, s := range data.Sitemaps {
		addSitemap(rules, strings.TrimSpace(s))
	}
}
