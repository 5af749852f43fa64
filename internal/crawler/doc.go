// Package crawler audits a site by rendering its pages in a browser.
//
// # Architecture
//
// Crawler owns one crawl at a time. It fetches robots.txt, seeds a FIFO
// frontier from the site's sitemap and the base URL, then renders each
// queued page in a fresh browser context and hands the HTML to the
// analyzer. Pages are processed strictly one after another, with the
// robots.txt crawl delay (at least 500ms) between them.
//
// # Fetching
//
// Each page gets up to MaxRetries attempts. Every attempt uses a new
// browsing context with a rotated user agent and viewport. Failures are
// classified with ClassifyError; DNS, TLS and blocked errors end the page
// immediately, other kinds back off exponentially with jitter.
//
// Anti-bot challenge pages are recognized from their content and status
// and re-checked once after a short wait. Cookie banners are dismissed on
// a best-effort basis before the final HTML is captured.
//
// # Scope
//
// Only URLs on the base host are crawled. robots.txt rules and the
// configured ignore and follow patterns are applied before a URL is
// fetched.
//
// # Usage
//
//	c := crawler.New(engine, robotsFetcher, sitemapResolver, crawler.WithLogger(logger))
//	results := c.Crawl(ctx, "https://example.com", 3, 50, nil)
package crawler
