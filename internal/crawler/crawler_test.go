package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/siteaudit/internal/browser/browsertest"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/robots"
)

const testBase = "https://example.com/"

// staticRules serves fixed robots.txt rules.
type staticRules struct {
	rules *robots.Rules
}

func (s staticRules) FetchRules(context.Context, string) *robots.Rules {
	if s.rules == nil {
		return robots.Empty()
	}
	return s.rules
}

// staticSeeds serves a fixed sitemap URL list and remembers the hints.
type staticSeeds struct {
	urls  []string
	hints *[]string
}

func (s staticSeeds) ResolveURLs(_ context.Context, _ string, hints []string) []string {
	if s.hints != nil {
		*s.hints = hints
	}
	return s.urls
}

// sleepLog records every pause instead of waiting.
type sleepLog struct {
	waits []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

type recordingRecorder struct {
	pages      int
	failures   []model.ErrorKind
	challenges []bool
}

func (r *recordingRecorder) PageCrawled(*model.CrawlResult) { r.pages++ }

func (r *recordingRecorder) AttemptFailed(k model.ErrorKind) { r.failures = append(r.failures, k) }

func (r *recordingRecorder) ChallengeDetected(resolved bool) {
	r.challenges = append(r.challenges, resolved)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCrawler(t *testing.T, engine *browsertest.Engine, rules *robots.Rules, seeds []string, opts ...Option) (*Crawler, *sleepLog) {
	t.Helper()

	sl := &sleepLog{}
	base := []Option{
		WithLogger(discardLogger()),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithSleeper(sl.sleep),
	}
	c := New(engine, staticRules{rules: rules}, staticSeeds{urls: seeds}, append(base, opts...)...)
	return c, sl
}

// page renders an HTML document with a title, the basics the analyzer
// expects and the given links.
func page(title string, links ...string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html lang="en"><head><title>` + title + `</title></head><body><h1>` + title + `</h1>`)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, l, l)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

// siteHandler serves pages from a path map and 404s everything else.
func siteHandler(pages map[string]string) func(string, int) browsertest.Response {
	return func(url string, _ int) browsertest.Response {
		path := strings.TrimPrefix(url, "https://example.com")
		html, ok := pages[path]
		if !ok {
			return browsertest.Response{Status: 404, HTML: page("Not found"), Title: "Not found"}
		}
		return browsertest.Response{Status: 200, HTML: html, Title: path}
	}
}

func resultURLs(results []model.CrawlResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.URL)
	}
	return out
}

func TestCrawl(t *testing.T) {
	t.Parallel()

	t.Run("stops at the page limit", func(t *testing.T) {
		t.Parallel()

		links := make([]string, 10)
		pages := map[string]string{}
		for i := range links {
			links[i] = fmt.Sprintf("/p%d", i)
			pages[links[i]] = page(links[i])
		}
		pages["/"] = page("Home", links...)
		engine := &browsertest.Engine{Handler: siteHandler(pages)}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 3, 3, nil)

		want := []string{"https://example.com/", "https://example.com/p0", "https://example.com/p1"}
		if got := resultURLs(results); !slices.Equal(got, want) {
			t.Errorf("crawled %v, want %v", got, want)
		}
	})

	t.Run("follows links up to the depth limit", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: siteHandler(map[string]string{
			"/":  page("Home", "/a"),
			"/a": page("A", "/b"),
			"/b": page("B", "/c"),
			"/c": page("C"),
		})}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 1, 10, nil)

		want := []string{"https://example.com/", "https://example.com/a"}
		if got := resultURLs(results); !slices.Equal(got, want) {
			t.Errorf("crawled %v, want %v", got, want)
		}
		if engine.Visits("https://example.com/b") != 0 {
			t.Error("page beyond the depth limit was fetched")
		}
	})

	t.Run("stays on the base host", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: siteHandler(map[string]string{
			"/":      page("Home", "https://other.example/x", "https://EXAMPLE.com/about/", "mailto:a@example.com"),
			"/about": page("About"),
		})}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 3, 10, nil)

		want := []string{"https://example.com/", "https://example.com/about"}
		if got := resultURLs(results); !slices.Equal(got, want) {
			t.Errorf("crawled %v, want %v", got, want)
		}
		for _, u := range engine.VisitOrder() {
			if strings.Contains(u, "other.example") {
				t.Errorf("visited off-host url %s", u)
			}
		}
	})

	t.Run("queues the base before sitemap seeds", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: siteHandler(map[string]string{
			"/":        page("Home"),
			"/seed":    page("Seed"),
			"/another": page("Another"),
		})}
		seeds := []string{"https://example.com/seed", "https://other.example/seed", "https://example.com/another#top"}
		c, _ := newTestCrawler(t, engine, nil, seeds)

		results := c.Crawl(context.Background(), testBase, 0, 10, nil)

		want := []string{"https://example.com/", "https://example.com/seed", "https://example.com/another"}
		if got := resultURLs(results); !slices.Equal(got, want) {
			t.Errorf("crawled %v, want %v", got, want)
		}
	})

	t.Run("passes robots sitemap hints to the seed source", func(t *testing.T) {
		t.Parallel()

		var hints []string
		engine := &browsertest.Engine{}
		rules := &robots.Rules{SitemapURLs: []string{"https://example.com/custom.xml"}}
		c := New(engine, staticRules{rules: rules}, staticSeeds{hints: &hints},
			WithLogger(discardLogger()), WithSleeper((&sleepLog{}).sleep))

		c.Crawl(context.Background(), testBase, 1, 1, nil)

		if !slices.Equal(hints, rules.SitemapURLs) {
			t.Errorf("hints = %v, want %v", hints, rules.SitemapURLs)
		}
	})

	t.Run("skips urls disallowed by robots.txt", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: siteHandler(map[string]string{
			"/":          page("Home", "/private/x", "/public"),
			"/private/x": page("Private"),
			"/public":    page("Public"),
		})}
		rules := &robots.Rules{DisallowedPaths: []string{"/private"}}
		c, _ := newTestCrawler(t, engine, rules, nil)

		results := c.Crawl(context.Background(), testBase, 2, 10, nil)

		want := []string{"https://example.com/", "https://example.com/public"}
		if got := resultURLs(results); !slices.Equal(got, want) {
			t.Errorf("crawled %v, want %v", got, want)
		}
		if engine.Visits("https://example.com/private/x") != 0 {
			t.Error("disallowed page was fetched")
		}
	})

	t.Run("applies ignore patterns to discovered links", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: siteHandler(map[string]string{
			"/":            page("Home", "/admin/users", "/files/a.pdf", "/blog"),
			"/blog":        page("Blog"),
			"/admin/users": page("Admin"),
		})}
		c, _ := newTestCrawler(t, engine, nil, nil, WithIgnorePatterns([]string{"/admin/*", "*.pdf"}))

		results := c.Crawl(context.Background(), testBase, 2, 10, nil)

		want := []string{"https://example.com/", "https://example.com/blog"}
		if got := resultURLs(results); !slices.Equal(got, want) {
			t.Errorf("crawled %v, want %v", got, want)
		}
	})

	t.Run("returns a parse error for an invalid base url", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), "not a url", 2, 10, nil)

		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		if results[0].ErrorType != model.ErrorKindParseError {
			t.Errorf("ErrorType = %q, want %q", results[0].ErrorType, model.ErrorKindParseError)
		}
		if engine.Launches() != 0 {
			t.Error("browser launched for an invalid base url")
		}
	})

	t.Run("zero page limit crawls nothing", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 2, 0, nil)

		if results == nil || len(results) != 0 {
			t.Errorf("got %v, want an empty slice", results)
		}
		if engine.Launches() != 0 {
			t.Error("browser launched with a zero page limit")
		}
	})

	t.Run("launch failure yields one failed result", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{LaunchErr: errors.New("chrome executable not found")}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 2, 10, nil)

		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		if results[0].URL != testBase || results[0].Error == "" {
			t.Errorf("unexpected result %+v", results[0])
		}
	})

	t.Run("cancelled context stops before fetching", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{}
		c, _ := newTestCrawler(t, engine, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := c.Crawl(ctx, testBase, 2, 10, nil)

		if len(results) != 0 {
			t.Errorf("got %d results, want 0", len(results))
		}
		if engine.BrowserCloses() != 1 {
			t.Errorf("browser closed %d times, want 1", engine.BrowserCloses())
		}
	})

	t.Run("closes every context and the browser", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: siteHandler(map[string]string{
			"/":  page("Home", "/a", "/b"),
			"/a": page("A"),
		})}
		c, _ := newTestCrawler(t, engine, nil, nil)

		c.Crawl(context.Background(), testBase, 2, 10, nil)

		if n := engine.OpenContexts(); n != 0 {
			t.Errorf("%d contexts left open", n)
		}
		if engine.BrowserCloses() != 1 {
			t.Errorf("browser closed %d times, want 1", engine.BrowserCloses())
		}
	})
}

func TestCrawlDelay(t *testing.T) {
	t.Parallel()

	site := map[string]string{
		"/":  page("Home", "/a"),
		"/a": page("A"),
	}
	delay := 2.0
	tiny := 0.1

	tests := []struct {
		name  string
		rules *robots.Rules
		want  time.Duration
	}{
		{"default minimum", nil, MinCrawlDelay},
		{"robots delay", &robots.Rules{CrawlDelay: &delay}, 2 * time.Second},
		{"robots delay below minimum", &robots.Rules{CrawlDelay: &tiny}, MinCrawlDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine := &browsertest.Engine{Handler: siteHandler(site)}
			c, sl := newTestCrawler(t, engine, tt.rules, nil)

			c.Crawl(context.Background(), testBase, 1, 10, nil)

			if !slices.Equal(sl.waits, []time.Duration{tt.want}) {
				t.Errorf("waits = %v, want [%v]", sl.waits, tt.want)
			}
		})
	}
}

func TestCrawlRetries(t *testing.T) {
	t.Parallel()

	t.Run("retryable failures back off then succeed", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(url string, attempt int) browsertest.Response {
			if attempt < 3 {
				return browsertest.Response{Err: errors.New("net::ERR_CONNECTION_REFUSED at " + url)}
			}
			return browsertest.Response{Status: 200, HTML: page("Home"), Title: "Home"}
		}}
		rec := &recordingRecorder{}
		c, sl := newTestCrawler(t, engine, nil, nil, WithRecorder(rec))

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if len(results) != 1 || !results[0].IsSuccess() {
			t.Fatalf("got %+v, want one successful result", results)
		}
		if results[0].Title != "Home" {
			t.Errorf("Title = %q, want Home", results[0].Title)
		}
		if n := engine.Visits(testBase); n != 3 {
			t.Errorf("visited %d times, want 3", n)
		}
		if len(sl.waits) != 2 {
			t.Fatalf("waits = %v, want two backoffs", sl.waits)
		}
		if w := sl.waits[0]; w < time.Second || w >= 2*time.Second {
			t.Errorf("first backoff %v outside [1s, 2s)", w)
		}
		if w := sl.waits[1]; w < 2*time.Second || w >= 3*time.Second {
			t.Errorf("second backoff %v outside [2s, 3s)", w)
		}
		wantFailures := []model.ErrorKind{model.ErrorKindConnectionRefused, model.ErrorKindConnectionRefused}
		if !slices.Equal(rec.failures, wantFailures) {
			t.Errorf("recorded failures %v, want %v", rec.failures, wantFailures)
		}
		if rec.pages != 1 {
			t.Errorf("recorded %d pages, want 1", rec.pages)
		}
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{Err: errors.New("net::ERR_CONNECTION_REFUSED")}
		}}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		r := results[0]
		if r.ErrorType != model.ErrorKindConnectionRefused || r.StatusCode != 0 {
			t.Errorf("unexpected result %+v", r)
		}
		if n := engine.Visits(testBase); n != MaxRetries {
			t.Errorf("visited %d times, want %d", n, MaxRetries)
		}
	})

	t.Run("dns failures are not retried", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{Err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
		}}
		c, sl := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if len(results) != 1 || results[0].ErrorType != model.ErrorKindDNS {
			t.Fatalf("got %+v, want one dns failure", results)
		}
		if n := engine.Visits(testBase); n != 1 {
			t.Errorf("visited %d times, want 1", n)
		}
		if len(sl.waits) != 0 {
			t.Errorf("waits = %v, want none", sl.waits)
		}
	})

	t.Run("content capture failure is a parse error", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{Status: 200, ContentErr: errors.New("target closed")}
		}}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if len(results) != 1 || results[0].ErrorType != model.ErrorKindParseError {
			t.Fatalf("got %+v, want one parse error", results)
		}
	})

	t.Run("falls back to commit when the dom never loads", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{Status: 200, HTML: page("Slow"), Title: "Slow", CommitOnly: true}
		}}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if len(results) != 1 || !results[0].IsSuccess() {
			t.Fatalf("got %+v, want one successful result", results)
		}
		if n := engine.Visits(testBase); n != 2 {
			t.Errorf("navigated %d times, want 2", n)
		}
	})
}

func TestCrawlResults(t *testing.T) {
	t.Parallel()

	t.Run("http errors are recorded and their links ignored", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{Status: 404, HTML: page("Missing", "/elsewhere"), Title: "Missing"}
		}}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 3, 10, nil)

		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		r := results[0]
		if r.StatusCode != 404 || r.Error != "HTTP 404" || r.ErrorType != model.ErrorKindHTTPError {
			t.Errorf("unexpected result %+v", r)
		}
		if r.Analysis == nil {
			t.Error("http error page was not analyzed")
		}
	})

	t.Run("successful pages carry analysis and timing", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: siteHandler(map[string]string{"/": page("Home")})}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		r := results[0]
		if r.Analysis == nil || r.ResponseTimeMs == nil {
			t.Fatalf("missing analysis or timing: %+v", r)
		}
		if got := r.Analysis.Headings.H1; !slices.Equal(got, []string{"Home"}) {
			t.Errorf("H1 = %v, want [Home]", got)
		}
		if r.FinalURL != "" {
			t.Errorf("FinalURL = %q, want empty", r.FinalURL)
		}
	})

	t.Run("records the final url after a redirect", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{Status: 200, HTML: page("Home"), FinalURL: "https://example.com/en/"}
		}}
		c, _ := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if got := results[0].FinalURL; got != "https://example.com/en/" {
			t.Errorf("FinalURL = %q, want https://example.com/en/", got)
		}
	})

	t.Run("uses a fresh identity per attempt", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: siteHandler(map[string]string{
			"/":  page("Home", "/a"),
			"/a": page("A"),
		})}
		c, _ := newTestCrawler(t, engine, nil, nil, WithHeaders(map[string]string{"X-Audit": "1"}))

		c.Crawl(context.Background(), testBase, 1, 10, nil)

		opts := engine.ContextOptions()
		if len(opts) != 2 {
			t.Fatalf("opened %d contexts, want 2", len(opts))
		}
		for _, o := range opts {
			if !slices.Contains(userAgents, o.UserAgent) {
				t.Errorf("unexpected user agent %q", o.UserAgent)
			}
			if !slices.Contains(viewports, o.Viewport) {
				t.Errorf("unexpected viewport %+v", o.Viewport)
			}
			if o.Headers["X-Audit"] != "1" || o.Headers["Accept-Language"] != acceptLanguage {
				t.Errorf("headers = %v", o.Headers)
			}
			for k := range o.Headers {
				if strings.HasPrefix(k, "Sec-Fetch-") || k == "Accept" {
					t.Errorf("navigation header %q would go with every request", k)
				}
			}
			if o.NavigationHeaders["Sec-Fetch-Dest"] != "document" || o.NavigationHeaders["Sec-Fetch-Mode"] != "navigate" {
				t.Errorf("navigation headers = %v", o.NavigationHeaders)
			}
		}
	})
}

func TestCrawlAntiBot(t *testing.T) {
	t.Parallel()

	challenge := `<html><head><title>Just a moment...</title></head><body>Checking your browser before accessing. Cloudflare</body></html>`

	t.Run("persistent challenge is reported without retry", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{Status: 403, HTML: challenge}
		}}
		rec := &recordingRecorder{}
		c, sl := newTestCrawler(t, engine, nil, nil, WithRecorder(rec))

		results := c.Crawl(context.Background(), testBase, 1, 10, nil)

		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		r := results[0]
		if r.ErrorType != model.ErrorKindAntiBot || r.StatusCode != 0 || r.Analysis != nil {
			t.Errorf("unexpected result %+v", r)
		}
		if !strings.Contains(r.Error, "HTTP 403") {
			t.Errorf("Error = %q, want the blocked status", r.Error)
		}
		if n := engine.Visits(testBase); n != 1 {
			t.Errorf("visited %d times, want 1", n)
		}
		if !slices.Contains(sl.waits, ChallengeRecheckDelay) {
			t.Errorf("waits = %v, want a recheck delay", sl.waits)
		}
		if !slices.Equal(rec.challenges, []bool{false}) {
			t.Errorf("challenges = %v, want [false]", rec.challenges)
		}
	})

	t.Run("challenge that clears is crawled normally", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{
				Status:  200,
				HTML:    challenge,
				Reloads: []string{page("Welcome")},
				Title:   "Welcome",
			}
		}}
		rec := &recordingRecorder{}
		c, _ := newTestCrawler(t, engine, nil, nil, WithRecorder(rec))

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if len(results) != 1 || !results[0].IsSuccess() {
			t.Fatalf("got %+v, want one successful result", results)
		}
		if results[0].Title != "Welcome" {
			t.Errorf("Title = %q, want Welcome", results[0].Title)
		}
		if !slices.Equal(rec.challenges, []bool{true}) {
			t.Errorf("challenges = %v, want [true]", rec.challenges)
		}
	})

	t.Run("cloudflare 403 without signals stays blocked", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{
				Status:  403,
				Headers: map[string]string{"Server": "cloudflare"},
				HTML:    "<html><body>Forbidden</body></html>",
			}
		}}
		rec := &recordingRecorder{}
		c, sl := newTestCrawler(t, engine, nil, nil, WithRecorder(rec))

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if len(results) != 1 {
			t.Fatalf("got %d results, want 1", len(results))
		}
		r := results[0]
		if r.ErrorType != model.ErrorKindAntiBot || r.StatusCode != 0 || r.Analysis != nil {
			t.Errorf("got %+v, want an anti_bot failure", r)
		}
		if !slices.Equal(sl.waits, []time.Duration{ChallengeRecheckDelay}) {
			t.Errorf("waits = %v, want one recheck delay", sl.waits)
		}
		if !slices.Equal(rec.challenges, []bool{false}) {
			t.Errorf("challenges = %v, want [false]", rec.challenges)
		}
	})

	t.Run("plain 403 is an http error", func(t *testing.T) {
		t.Parallel()

		engine := &browsertest.Engine{Handler: func(string, int) browsertest.Response {
			return browsertest.Response{
				Status:  403,
				Headers: map[string]string{"Server": "nginx"},
				HTML:    "<html><body>Forbidden</body></html>",
			}
		}}
		c, sl := newTestCrawler(t, engine, nil, nil)

		results := c.Crawl(context.Background(), testBase, 0, 1, nil)

		if len(results) != 1 || results[0].ErrorType != model.ErrorKindHTTPError || results[0].StatusCode != 403 {
			t.Fatalf("got %+v, want one http error", results)
		}
		if len(sl.waits) != 0 {
			t.Errorf("waits = %v, want none", sl.waits)
		}
	})
}

func TestCrawlProgress(t *testing.T) {
	t.Parallel()

	engine := &browsertest.Engine{Handler: siteHandler(map[string]string{
		"/":  page("Home", "/a", "/b"),
		"/a": page("A"),
		"/b": page("B"),
	})}
	c, _ := newTestCrawler(t, engine, nil, nil)

	var (
		percents []int
		messages []string
	)
	c.Crawl(context.Background(), testBase, 1, 3, func(p int, msg string) {
		percents = append(percents, p)
		messages = append(messages, msg)
	})

	if len(percents) == 0 {
		t.Fatal("no progress reported")
	}
	if percents[0] != 0 || percents[len(percents)-1] != 80 {
		t.Errorf("progress = %v, want to start at 0 and end at 80", percents)
	}
	if !slices.IsSorted(percents) {
		t.Errorf("progress went backwards: %v", percents)
	}
	for _, want := range []int{5, 10} {
		if !slices.Contains(percents, want) {
			t.Errorf("progress %v is missing %d", percents, want)
		}
	}
	if !slices.Contains(messages, "Crawling /a") {
		t.Errorf("messages %v lack a per-page line", messages)
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	c := New(&browsertest.Engine{}, nil, nil, WithRand(rand.New(rand.NewPCG(3, 4))))
	for attempt := range 4 {
		low := time.Duration(1<<attempt) * time.Second
		for range 20 {
			d := c.backoff(attempt)
			if d < low || d >= low+time.Second {
				t.Fatalf("backoff(%d) = %v, want within [%v, %v)", attempt, d, low, low+time.Second)
			}
		}
	}
}

func TestFrontier(t *testing.T) {
	t.Parallel()

	q := newFrontier()
	q.push("https://example.com/a", 0)
	q.push("https://example.com/b", 1)
	q.push("https://example.com/a", 2)

	if q.len() != 2 {
		t.Fatalf("len = %d, want 2", q.len())
	}
	first := q.pop()
	if first.url != "https://example.com/a" || first.depth != 0 {
		t.Errorf("pop = %+v, want /a at depth 0", first)
	}
	q.markVisited(first.url)
	if !q.isVisited(first.url) || q.isVisited("https://example.com/b") {
		t.Error("visited set is wrong")
	}
	q.push("https://example.com/a", 3)
	if q.len() != 2 {
		t.Errorf("len = %d, want 2 after re-queueing a popped url", q.len())
	}
}

// TestMatchPattern tests glob pattern matching for URL paths.
func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"admin prefix match", "/admin/*", "/admin/dashboard", true},
		{"admin prefix exact", "/admin/*", "/admin", true},
		{"admin prefix no match", "/admin/*", "/user/profile", false},
		{"admin prefix partial no match", "/admin/*", "/administrator", false},
		{"nested admin", "/admin/*", "/admin/users/edit", true},
		{"pdf extension", "*.pdf", "/docs/file.pdf", true},
		{"pdf extension nested", "*.pdf", "/a/b/c/report.pdf", true},
		{"pdf extension no match", "*.pdf", "/docs/file.txt", false},
		{"exact match", "/logout", "/logout", true},
		{"exact no match", "/logout", "/login", false},
		{"single character wildcard", "/api/v?/users", "/api/v1/users", true},
		{"single character wildcard no match", "/api/v?/users", "/api/v10/users", false},
		{"root path", "/", "/", true},
		{"root no match prefix", "/admin/*", "/", false},
		{"tag pages", "/tag/*", "/tag/go", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

// TestShouldCrawl tests URL filtering based on patterns.
func TestShouldCrawl(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ignore []string
		follow []string
		url    string
		want   bool
	}{
		{"no patterns allows all", nil, nil, "https://example.com/any/path", true},
		{"ignore blocks", []string{"/admin/*", "*.pdf"}, nil, "https://example.com/admin/users", false},
		{"ignore blocks extension", []string{"/admin/*", "*.pdf"}, nil, "https://example.com/docs/file.pdf", false},
		{"ignore passes others", []string{"/admin/*"}, nil, "https://example.com/public/page", true},
		{"follow restricts", nil, []string{"/blog/*"}, "https://example.com/shop", false},
		{"follow matches", nil, []string{"/blog/*"}, "https://example.com/blog/post", true},
		{"ignore wins over follow", []string{"/blog/drafts/*"}, []string{"/blog/*"}, "https://example.com/blog/drafts/x", false},
		{"empty path treated as root", nil, []string{"/"}, "https://example.com", true},
		{"invalid url", nil, nil, "://invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := shouldCrawl(tt.url, tt.ignore, tt.follow); got != tt.want {
				t.Errorf("shouldCrawl(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}
