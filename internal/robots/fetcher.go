package robots

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/siteaudit/internal/webfetch"
)

const (
	// FetchTimeout bounds the robots.txt request.
	FetchTimeout = 10 * time.Second

	// MaxBodySize is the number of bytes of robots.txt that are parsed.
	MaxBodySize = 512 * 1024
)

// Getter is the subset of webfetch.Fetcher used here.
type Getter interface {
	Get(ctx context.Context, req webfetch.Request) (*webfetch.Response, error)
}

// Fetcher downloads and parses robots.txt.
type Fetcher struct {
	getter Getter
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. A nil logger means slog.Default().
func NewFetcher(getter Getter, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{getter: getter, logger: logger}
}

// FetchRules returns the rules published at <origin>/robots.txt for
// baseURL. Every failure results in Empty().
func (f *Fetcher) FetchRules(ctx context.Context, baseURL string) *Rules {
	robotsURL, err := robotsLocation(baseURL)
	if err != nil {
		f.logger.Debug("cannot build robots.txt url", "base_url", baseURL, "error", err)
		return Empty()
	}

	resp, err := f.getter.Get(ctx, webfetch.Request{
		URL:      robotsURL,
		Timeout:  FetchTimeout,
		MaxBytes: MaxBodySize,
	})
	if err != nil {
		f.logger.Warn("failed to fetch robots.txt", "url", robotsURL, "error", err)
		return Empty()
	}
	if !resp.OK() {
		f.logger.Debug("robots.txt not available", "url", robotsURL, "status", resp.StatusCode)
		return Empty()
	}
	if !isTextual(resp.MediaType()) {
		f.logger.Debug("robots.txt has unexpected content type", "url", robotsURL, "content_type", resp.MediaType())
		return Empty()
	}
	if resp.Truncated {
		f.logger.Warn("robots.txt is unusually large, truncating", "url", robotsURL, "limit", MaxBodySize)
	}

	rules := Parse(resp.Body)
	f.logger.Debug("parsed robots.txt",
		"url", robotsURL,
		"allow", len(rules.AllowedPaths),
		"disallow", len(rules.DisallowedPaths),
		"sitemaps", len(rules.SitemapURLs))
	return rules
}

func robotsLocation(baseURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	ref := &url.URL{Path: "/robots.txt"}
	return base.ResolveReference(ref).String(), nil
}

// isTextual accepts an absent content type, any text/* type and
// application/octet-stream, which some servers use for plain files.
func isTextual(mediaType string) bool {
	return mediaType == "" ||
		strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/octet-stream"
}
