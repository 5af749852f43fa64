package sitemap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/siteaudit/internal/urlnorm"
	"github.com/nao1215/siteaudit/internal/webfetch"
)

const (
	// FetchTimeout bounds each sitemap request.
	FetchTimeout = 15 * time.Second

	// MaxBodySize caps each sitemap body, after decompression.
	MaxBodySize = 10 * 1024 * 1024

	// MaxURLs caps the number of URLs collected in one resolution.
	MaxURLs = 50000

	// MaxDepth is the deepest document that is fetched. The first sitemap
	// fetched from a candidate location is at depth 1.
	MaxDepth = 3
)

// fallbackPaths are tried, in order, after the robots.txt hints.
var fallbackPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap/sitemap.xml",
	"/wp-sitemap.xml",
	"/sitemap.xml.gz",
}

// Getter is the subset of webfetch.Fetcher used here.
type Getter interface {
	Get(ctx context.Context, req webfetch.Request) (*webfetch.Response, error)
}

// Resolver turns a site's sitemaps into a list of page URLs.
type Resolver struct {
	getter  Getter
	limiter *rate.Limiter
	logger  *slog.Logger
	onURLs  func(n int)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRateLimit paces sitemap requests to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Resolver) {
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithDiscoveredHook registers a callback that receives the number of URLs
// each successful resolution returned.
func WithDiscoveredHook(fn func(n int)) Option {
	return func(r *Resolver) {
		r.onURLs = fn
	}
}

// NewResolver creates a Resolver that issues at most five requests per second.
func NewResolver(getter Getter, opts ...Option) *Resolver {
	r := &Resolver{
		getter:  getter,
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveURLs returns the page URLs of the first candidate sitemap that
// yields any. The result is normalized, deduplicated and in document order.
func (r *Resolver) ResolveURLs(ctx context.Context, baseURL string, hints []string) []string {
	for _, candidate := range candidates(baseURL, hints) {
		if ctx.Err() != nil {
			break
		}

		w := &walk{resolver: r, seen: make(map[string]struct{}), fetched: make(map[string]struct{})}
		w.visit(ctx, candidate, 1)
		if len(w.urls) == 0 {
			continue
		}

		r.logger.Info("sitemap resolved", "sitemap", candidate, "urls", len(w.urls))
		if r.onURLs != nil {
			r.onURLs(len(w.urls))
		}
		return w.urls
	}
	r.logger.Debug("no sitemap found", "base_url", baseURL)
	return []string{}
}

func candidates(baseURL string, hints []string) []string {
	out := make([]string, 0, len(hints)+len(fallbackPaths))
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, h := range hints {
		if h = strings.TrimSpace(h); h != "" {
			add(h)
		}
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return out
	}
	for _, p := range fallbackPaths {
		add(base.ResolveReference(&url.URL{Path: p}).String())
	}
	return out
}

// walk holds the state of resolving one candidate.
type walk struct {
	resolver *Resolver
	seen     map[string]struct{}
	fetched  map[string]struct{}
	urls     []string
}

func (w *walk) full() bool {
	return len(w.urls) >= MaxURLs
}

func (w *walk) visit(ctx context.Context, loc string, depth int) {
	if depth > MaxDepth || w.full() {
		return
	}
	if _, ok := w.fetched[loc]; ok {
		return
	}
	w.fetched[loc] = struct{}{}

	data, err := w.resolver.download(ctx, loc)
	if err != nil {
		w.resolver.logger.Debug("skipping sitemap", "sitemap", loc, "depth", depth, "error", err)
		return
	}

	doc := Parse(data)
	if doc.Kind == KindIndex {
		for _, child := range doc.Locs {
			if w.full() || ctx.Err() != nil {
				return
			}
			w.visit(ctx, child, depth+1)
		}
		return
	}

	for _, loc := range doc.Locs {
		if w.full() {
			w.resolver.logger.Warn("sitemap url cap reached", "limit", MaxURLs)
			return
		}
		if looksLikeSitemap(loc) {
			continue
		}
		n, err := urlnorm.Normalize(loc)
		if err != nil {
			continue
		}
		if _, ok := w.seen[n]; ok {
			continue
		}
		w.seen[n] = struct{}{}
		w.urls = append(w.urls, n)
	}
}

var errNotOK = errors.New("unexpected status")

// download fetches one sitemap and returns its decompressed body.
func (r *Resolver) download(ctx context.Context, loc string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := r.getter.Get(ctx, webfetch.Request{
		URL:            loc,
		Timeout:        FetchTimeout,
		MaxBytes:       MaxBodySize,
		StrictDecoding: true,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %d", errNotOK, resp.StatusCode)
	}
	if resp.Truncated {
		r.logger.Warn("sitemap truncated at size cap", "sitemap", loc, "limit", MaxBodySize)
	}

	body := resp.Body
	if webfetch.IsGzip(body) || isGzipName(loc) {
		body, err = webfetch.Gunzip(body, MaxBodySize)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func isGzipName(loc string) bool {
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".gz")
}
