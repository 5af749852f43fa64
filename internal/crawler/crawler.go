package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/nao1215/siteaudit/internal/browser"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/robots"
	"github.com/nao1215/siteaudit/internal/urlnorm"
)

const (
	// MaxRetries is the number of attempts made for one page.
	MaxRetries = 3

	// MinCrawlDelay is the shortest pause between two page fetches.
	MinCrawlDelay = 500 * time.Millisecond

	// NavigationTimeout bounds a single navigation.
	NavigationTimeout = 30 * time.Second

	// NetworkIdleTimeout bounds the optional wait for network idle.
	NetworkIdleTimeout = 10 * time.Second

	// ChallengeRecheckDelay is the wait before re-checking a challenge page.
	ChallengeRecheckDelay = 3 * time.Second
)

// RulesSource provides robots.txt rules. robots.Fetcher implements it.
type RulesSource interface {
	FetchRules(ctx context.Context, baseURL string) *robots.Rules
}

// SeedSource provides sitemap URLs. sitemap.Resolver implements it.
type SeedSource interface {
	ResolveURLs(ctx context.Context, baseURL string, hints []string) []string
}

// Recorder receives crawl measurements. metrics.Registry implements it.
type Recorder interface {
	PageCrawled(result *model.CrawlResult)
	AttemptFailed(kind model.ErrorKind)
	ChallengeDetected(resolved bool)
}

// ProgressFunc receives the crawl progress as a percentage and a status line.
type ProgressFunc func(percent int, message string)

// Sleeper pauses for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Crawler renders and analyzes the pages of one site at a time.
// It is not safe for concurrent Crawl calls.
type Crawler struct {
	engine   browser.Engine
	rules    RulesSource
	seeds    SeedSource
	launch   browser.LaunchOptions
	logger   *slog.Logger
	recorder Recorder
	rng      *rand.Rand
	sleep    Sleeper

	headers        map[string]string
	ignorePatterns []string
	followPatterns []string
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithLaunchOptions sets how the browser is started.
func WithLaunchOptions(opts browser.LaunchOptions) Option {
	return func(c *Crawler) {
		c.launch = opts
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Crawler) {
		c.recorder = r
	}
}

// WithRand sets the random source used for user agents, viewports and
// backoff jitter.
func WithRand(rng *rand.Rand) Option {
	return func(c *Crawler) {
		c.rng = rng
	}
}

// WithSleeper replaces the function used for every pause.
func WithSleeper(s Sleeper) Option {
	return func(c *Crawler) {
		c.sleep = s
	}
}

// WithHeaders adds headers to every page request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Crawler) {
		c.headers = headers
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are crawled.
func WithFollowPatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.followPatterns = patterns
	}
}

// New creates a Crawler.
func New(engine browser.Engine, rules RulesSource, seeds SeedSource, opts ...Option) *Crawler {
	now := uint64(time.Now().UnixNano())
	c := &Crawler{
		engine:   engine,
		rules:    rules,
		seeds:    seeds,
		launch:   browser.LaunchOptions{Headless: true},
		logger:   slog.Default(),
		recorder: nopRecorder{},
		rng:      rand.New(rand.NewPCG(now, now>>1|1)),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl visits up to maxPages pages of baseURL, following same-host links
// up to maxDepth hops from the seeds. It returns one result per visited
// URL in fetch order. Page failures are reported in the results; an
// unusable base URL yields a single parse_error result.
func (c *Crawler) Crawl(ctx context.Context, baseURL string, maxDepth, maxPages int, onProgress ProgressFunc) []model.CrawlResult {
	progress := newProgressReporter(onProgress)

	base, err := urlnorm.Normalize(baseURL)
	if err != nil {
		c.logger.Warn("invalid base url", "url", baseURL, "error", err)
		return []model.CrawlResult{model.NewFailedResult(baseURL, model.ErrorKindParseError,
			fmt.Sprintf("invalid base URL: %v", err))}
	}
	if maxPages <= 0 {
		return []model.CrawlResult{}
	}
	host, _ := urlnorm.Host(base)

	b, err := c.engine.Launch(ctx, c.launch)
	if err != nil {
		c.logger.Error("failed to launch browser", "error", err)
		return []model.CrawlResult{model.NewFailedResult(base, ClassifyError(err),
			fmt.Sprintf("failed to launch browser: %v", err))}
	}
	defer func() {
		if err := b.Close(); err != nil {
			c.logger.Warn("failed to close browser", "error", err)
		}
	}()

	progress.report(0, "Checking robots.txt")
	rules := c.rules.FetchRules(ctx, base)
	delay := crawlDelay(rules)

	progress.report(5, "Discovering sitemap")
	seeds := c.seeds.ResolveURLs(ctx, base, rules.SitemapURLs)

	q := newFrontier()
	q.push(base, 0)
	for i, seed := range seeds {
		if i >= 2*maxPages {
			break
		}
		c.enqueue(q, seed, 0, host)
	}
	c.logger.Info("crawl started",
		"base_url", base, "seeds", len(seeds), "queued", q.len(),
		"max_depth", maxDepth, "max_pages", maxPages, "delay", delay)
	if len(c.headers) > 0 {
		c.logger.Debug("extra request headers", "headers", c.headers)
	}

	progress.report(10, "Crawling pages")

	results := make([]model.CrawlResult, 0, min(maxPages, q.len()))
	for q.len() > 0 && len(results) < maxPages {
		if ctx.Err() != nil {
			c.logger.Warn("crawl cancelled", "pages", len(results), "error", ctx.Err())
			break
		}

		item := q.pop()
		if q.isVisited(item.url) || !urlnorm.SameHost(item.url, host) || !robots.IsAllowed(rules, item.url) {
			continue
		}
		q.markVisited(item.url)

		progress.report(10+70*len(results)/maxPages, "Crawling "+pathOf(item.url))
		result, links := c.fetchWithRetry(ctx, b, item.url, host)
		results = append(results, result)
		c.recorder.PageCrawled(&result)

		if item.depth < maxDepth && result.IsSuccess() {
			for _, link := range links {
				c.enqueue(q, link, item.depth+1, host)
			}
		}

		if q.len() > 0 && len(results) < maxPages {
			if err := c.sleep(ctx, delay); err != nil {
				break
			}
		}
	}

	progress.report(80, "Crawl complete")
	c.logger.Info("crawl finished", "base_url", base, "pages", len(results))
	return results
}

// enqueue normalizes a discovered URL and queues it when it is on the base
// host, unvisited and allowed by the crawl patterns.
func (c *Crawler) enqueue(q *frontier, raw string, depth int, host string) {
	u, err := urlnorm.Normalize(raw)
	if err != nil || !urlnorm.SameHost(u, host) || q.isVisited(u) {
		return
	}
	if !shouldCrawl(u, c.ignorePatterns, c.followPatterns) {
		return
	}
	q.push(u, depth)
}

// crawlDelay converts the robots.txt crawl delay into the pause between
// fetches, never shorter than MinCrawlDelay.
func crawlDelay(rules *robots.Rules) time.Duration {
	if rules == nil || rules.CrawlDelay == nil {
		return MinCrawlDelay
	}
	d := time.Duration(*rules.CrawlDelay * float64(time.Second))
	return max(d, MinCrawlDelay)
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// progressReporter forwards progress and never lets the percentage go down.
type progressReporter struct {
	fn   ProgressFunc
	last int
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (p *progressReporter) report(percent int, message string) {
	if p.fn == nil {
		return
	}
	percent = max(percent, p.last)
	p.last = percent
	p.fn(percent, message)
}

type nopRecorder struct{}

func (nopRecorder) PageCrawled(*model.CrawlResult) {}
func (nopRecorder) AttemptFailed(model.ErrorKind) {}
func (nopRecorder) ChallengeDetected(bool) {}
