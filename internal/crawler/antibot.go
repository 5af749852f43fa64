package crawler

import (
	"net/http"
	"strings"
)

// challengeSignals are phrases found on bot-challenge and block pages.
var challengeSignals = []string{
	"checking your browser",
	"captcha",
	"cloudflare",
	"attention required",
	"just a moment",
	"verify you are human",
	"are you a robot",
	"access denied",
	"ddos protection",
	"security check",
	"please enable cookies",
	"enable javascript and cookies",
	"unusual traffic",
	"bot detection",
	"challenge-platform",
	"cf-browser-verification",
}

// countSignals returns how many distinct challenge phrases occur in html.
func countSignals(html string) int {
	lower := strings.ToLower(html)
	n := 0
	for _, s := range challengeSignals {
		if strings.Contains(lower, s) {
			n++
		}
	}
	return n
}

// contentBlocked applies the content rules: two or more signals, or one
// signal on a 403 or 503 response.
func contentBlocked(status int, html string) bool {
	n := countSignals(html)
	if n >= 2 {
		return true
	}
	return n >= 1 && (status == http.StatusForbidden || status == http.StatusServiceUnavailable)
}

// isChallenge reports whether a freshly loaded page is a bot challenge.
// A 403 from Cloudflare counts even without content signals.
func isChallenge(status int, server, html string) bool {
	if contentBlocked(status, html) {
		return true
	}
	return status == http.StatusForbidden && strings.Contains(strings.ToLower(server), "cloudflare")
}
