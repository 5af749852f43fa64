package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/siteaudit/internal/webfetch"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("captures only relevant groups", func(t *testing.T) {
		t.Parallel()

		body := `
User-agent: Googlebot-News
Disallow: /news-only

User-agent: SomeBrowser
Disallow: /browser-only

User-agent: *
Disallow: /private # trailing comment
Allow: /private/ok
Disallow:
`
		rules := Parse([]byte(body))

		want := []string{"/news-only", "/private"}
		if strings.Join(rules.DisallowedPaths, ",") != strings.Join(want, ",") {
			t.Errorf("DisallowedPaths = %v, want %v", rules.DisallowedPaths, want)
		}
		if len(rules.AllowedPaths) != 1 || rules.AllowedPaths[0] != "/private/ok" {
			t.Errorf("AllowedPaths = %v", rules.AllowedPaths)
		}
	})

	t.Run("consecutive user agents form one group", func(t *testing.T) {
		t.Parallel()

		body := "User-agent: mybot\nUser-agent: other\nDisallow: /shared\n"
		rules := Parse([]byte(body))
		if len(rules.DisallowedPaths) != 1 || rules.DisallowedPaths[0] != "/shared" {
			t.Errorf("DisallowedPaths = %v", rules.DisallowedPaths)
		}
	})

	t.Run("sitemaps are global and validated", func(t *testing.T) {
		t.Parallel()

		body := `
User-agent: Mozilla
Sitemap: https://example.com/sitemap-a.xml
Sitemap: not a url
SITEMAP: https://example.com/sitemap-b.xml
Sitemap: ftp://example.com/sitemap.xml
`
		rules := Parse([]byte(body))
		want := []string{"https://example.com/sitemap-a.xml", "https://example.com/sitemap-b.xml"}
		if strings.Join(rules.SitemapURLs, ",") != strings.Join(want, ",") {
			t.Errorf("SitemapURLs = %v, want %v", rules.SitemapURLs, want)
		}
	})

	t.Run("line endings", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			sep  string
		}{
			{"lf", "\n"},
			{"crlf", "\r\n"},
			{"bare cr", "\r"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				body := strings.Join([]string{
					"User-agent: *",
					"Disallow: /admin",
					"Allow: /admin/public",
					"Crawl-delay: 2",
					"Sitemap: https://example.com/sitemap.xml",
				}, tt.sep)
				rules := Parse([]byte(body))

				if len(rules.DisallowedPaths) != 1 || rules.DisallowedPaths[0] != "/admin" {
					t.Errorf("DisallowedPaths = %v", rules.DisallowedPaths)
				}
				if len(rules.AllowedPaths) != 1 || rules.AllowedPaths[0] != "/admin/public" {
					t.Errorf("AllowedPaths = %v", rules.AllowedPaths)
				}
				if rules.CrawlDelaySeconds() != 2 {
					t.Errorf("CrawlDelaySeconds() = %v, want 2", rules.CrawlDelaySeconds())
				}
				if len(rules.SitemapURLs) != 1 || rules.SitemapURLs[0] != "https://example.com/sitemap.xml" {
					t.Errorf("SitemapURLs = %v", rules.SitemapURLs)
				}
			})
		}
	})

	t.Run("crawl delay bounds", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name  string
			value string
			want  float64
			isSet bool
		}{
			{name: "in range", value: "2.5", want: 2.5, isSet: true},
			{name: "zero", value: "0", want: 0, isSet: true},
			{name: "upper bound", value: "120", want: 120, isSet: true},
			{name: "too large", value: "121", isSet: false},
			{name: "negative", value: "-1", isSet: false},
			{name: "garbage", value: "soon", isSet: false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				rules := Parse([]byte("User-agent: *\nCrawl-delay: " + tt.value + "\n"))
				if (rules.CrawlDelay != nil) != tt.isSet {
					t.Fatalf("CrawlDelay set = %v, want %v", rules.CrawlDelay != nil, tt.isSet)
				}
				if tt.isSet && rules.CrawlDelaySeconds() != tt.want {
					t.Errorf("CrawlDelaySeconds() = %v, want %v", rules.CrawlDelaySeconds(), tt.want)
				}
			})
		}
	})
}

func TestIsAllowed(t *testing.T) {
	t.Parallel()

	rules := &Rules{
		AllowedPaths:    []string{"/a/public", "/same"},
		DisallowedPaths: []string{"/a", "/*.pdf$", "/tmp/*/cache", "/exact$", "/same"},
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "longer allow wins", url: "https://x/a/public/page", want: true},
		{name: "shorter disallow applies", url: "https://x/a/private", want: false},
		{name: "unmatched path", url: "https://x/b", want: true},
		{name: "wildcard with anchor", url: "https://x/docs/file.pdf", want: false},
		{name: "anchor rejects suffix", url: "https://x/docs/file.pdf.html", want: true},
		{name: "inner wildcard", url: "https://x/tmp/123/cache/item", want: false},
		{name: "exact anchor", url: "https://x/exact", want: false},
		{name: "exact anchor longer path", url: "https://x/exact/more", want: true},
		{name: "tie goes to allow", url: "https://x/same/page", want: true},
		{name: "invalid url", url: "http://[::1", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsAllowed(rules, tt.url); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}

	t.Run("nil rules allow everything", func(t *testing.T) {
		t.Parallel()

		if !IsAllowed(nil, "https://x/anything") {
			t.Error("expected nil rules to allow")
		}
	})
}

func TestFetchRules(t *testing.T) {
	t.Parallel()

	newServer := func(t *testing.T, contentType string, status int, body string) *httptest.Server {
		t.Helper()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/robots.txt" {
				http.NotFound(w, r)
				return
			}
			if contentType != "" {
				w.Header().Set("Content-Type", contentType)
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(server.Close)
		return server
	}

	t.Run("parses text robots", func(t *testing.T) {
		t.Parallel()

		server := newServer(t, "text/plain", http.StatusOK, "User-agent: *\nDisallow: /admin\nCrawl-delay: 1\n")
		f := NewFetcher(webfetch.New(server.Client()), nil)

		rules := f.FetchRules(context.Background(), server.URL+"/some/page?q=1")
		if IsAllowed(rules, server.URL+"/admin/users") {
			t.Error("expected /admin to be disallowed")
		}
		if rules.CrawlDelaySeconds() != 1 {
			t.Errorf("CrawlDelaySeconds() = %v, want 1", rules.CrawlDelaySeconds())
		}
	})

	t.Run("octet stream is treated as text", func(t *testing.T) {
		t.Parallel()

		server := newServer(t, "application/octet-stream", http.StatusOK, "User-agent: *\nDisallow: /x\n")
		rules := NewFetcher(webfetch.New(server.Client()), nil).FetchRules(context.Background(), server.URL)
		if len(rules.DisallowedPaths) != 1 {
			t.Errorf("DisallowedPaths = %v", rules.DisallowedPaths)
		}
	})

	t.Run("only textual content types are parsed", func(t *testing.T) {
		t.Parallel()

		server := newServer(t, "text/html", http.StatusOK, "User-agent: *\nDisallow: /\n")
		server2 := newServer(t, "application/json", http.StatusOK, "User-agent: *\nDisallow: /\n")

		html := NewFetcher(webfetch.New(server.Client()), nil).FetchRules(context.Background(), server.URL)
		if len(html.DisallowedPaths) != 1 {
			t.Errorf("text/html should be parsed, got %v", html.DisallowedPaths)
		}
		jsonRules := NewFetcher(webfetch.New(server2.Client()), nil).FetchRules(context.Background(), server2.URL)
		if len(jsonRules.DisallowedPaths) != 0 {
			t.Errorf("application/json should be ignored, got %v", jsonRules.DisallowedPaths)
		}
	})

	t.Run("not found yields empty rules", func(t *testing.T) {
		t.Parallel()

		server := newServer(t, "text/plain", http.StatusNotFound, "User-agent: *\nDisallow: /\n")
		rules := NewFetcher(webfetch.New(server.Client()), nil).FetchRules(context.Background(), server.URL)
		if !IsAllowed(rules, server.URL+"/anything") {
			t.Error("expected everything to be allowed")
		}
	})

	t.Run("unreachable host yields empty rules", func(t *testing.T) {
		t.Parallel()

		server := newServer(t, "text/plain", http.StatusOK, "")
		addr := server.URL
		server.Close()

		rules := NewFetcher(webfetch.New(nil), nil).FetchRules(context.Background(), addr)
		if rules == nil || len(rules.DisallowedPaths) != 0 {
			t.Errorf("expected empty rules, got %+v", rules)
		}
	})

	t.Run("oversized body is truncated", func(t *testing.T) {
		t.Parallel()

		padding := strings.Repeat("# filler line\n", MaxBodySize/14+10)
		body := "User-agent: *\nDisallow: /early\n" + padding + "Disallow: /late\n"
		server := newServer(t, "text/plain", http.StatusOK, body)

		rules := NewFetcher(webfetch.New(server.Client()), nil).FetchRules(context.Background(), server.URL)
		if IsAllowed(rules, server.URL+"/early") {
			t.Error("expected /early to be disallowed")
		}
		if !IsAllowed(rules, server.URL+"/late") {
			t.Error("expected /late to be cut off by truncation")
		}
	})
}
