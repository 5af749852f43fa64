package crawler

import (
	"maps"
	"math/rand/v2"

	"github.com/nao1215/siteaudit/internal/browser"
)

// userAgents are current desktop browsers across Windows, macOS and Linux.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.7; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
}

var viewports = []browser.Viewport{
	{Width: 1366, Height: 768},
	{Width: 1920, Height: 1080},
	{Width: 1440, Height: 900},
}

const acceptLanguage = "en-US,en;q=0.9"

// browserHeaders go with every request of an attempt.
var browserHeaders = map[string]string{
	"Accept-Language": acceptLanguage,
	"Accept-Encoding": "gzip, deflate, br",
	"DNT":             "1",
}

// navigationHeaders mimic a top-level navigation typed into the address
// bar. Subresource requests keep the values Chrome gives them.
var navigationHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

// hideAutomationScript removes the markers headless Chrome exposes to page
// scripts.
const hideAutomationScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
`

// newIdentity picks the user agent and viewport for one attempt.
func newIdentity(rng *rand.Rand, extraHeaders map[string]string) browser.ContextOptions {
	headers := make(map[string]string, len(browserHeaders)+len(extraHeaders))
	for k, v := range browserHeaders {
		headers[k] = v
	}
	for k, v := range extraHeaders {
		headers[k] = v
	}
	return browser.ContextOptions{
		UserAgent:         userAgents[rng.IntN(len(userAgents))],
		Viewport:          viewports[rng.IntN(len(viewports))],
		Locale:            "en-US",
		AcceptLanguage:    acceptLanguage,
		Headers:           headers,
		NavigationHeaders: maps.Clone(navigationHeaders),
		InitScripts:       []string{hideAutomationScript},
	}
}
