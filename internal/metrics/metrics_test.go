package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/siteaudit/internal/model"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := New()
	ms := int64(1500)
	r.PageCrawled(&model.CrawlResult{URL: "https://example.com/", StatusCode: 200, ResponseTimeMs: &ms})
	r.PageCrawled(&model.CrawlResult{URL: "https://example.com/a", StatusCode: 200, ResponseTimeMs: &ms})
	r.PageCrawled(&model.CrawlResult{URL: "https://example.com/x", ErrorType: model.ErrorKindDNS, Error: "no such host"})
	r.AttemptFailed(model.ErrorKindTimeout)
	r.AttemptFailed(model.ErrorKindTimeout)
	r.ChallengeDetected(true)
	r.ChallengeDetected(false)
	r.SitemapDiscovered(42)
	r.AuditFinished(&model.AuditReport{URL: "https://example.com", Status: model.AuditStatusComplete, Score: 87}, 3*time.Second)

	body := scrape(t, r)

	wants := []string{
		`siteaudit_pages_crawled_total{outcome="success"} 2`,
		`siteaudit_pages_crawled_total{outcome="dns"} 1`,
		`siteaudit_page_response_seconds_count 2`,
		`siteaudit_fetch_attempt_failures_total{kind="timeout"} 2`,
		`siteaudit_antibot_challenges_total{resolved="true"} 1`,
		`siteaudit_antibot_challenges_total{resolved="false"} 1`,
		`siteaudit_sitemap_urls_discovered_total 42`,
		`siteaudit_audits_total{status="complete"} 1`,
		`siteaudit_audit_duration_seconds_count 1`,
		`siteaudit_health_score{site="https://example.com"} 87`,
		`go_goroutines`,
	}
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

func TestRegistryFailedAuditKeepsScore(t *testing.T) {
	t.Parallel()

	r := New()
	r.AuditFinished(&model.AuditReport{URL: "https://example.com", Status: model.AuditStatusFailed}, time.Second)

	body := scrape(t, r)
	if !strings.Contains(body, `siteaudit_audits_total{status="failed"} 1`) {
		t.Error("failed audit not counted")
	}
	if strings.Contains(body, `siteaudit_health_score{`) {
		t.Error("failed audit must not set a health score")
	}
}

func TestServe(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := New()
	r.SitemapDiscovered(3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.serve(ctx, ln, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "siteaudit_sitemap_urls_discovered_total 3") {
		t.Errorf("unexpected body:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
