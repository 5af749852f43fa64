package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/crawler"
	"github.com/nao1215/siteaudit/internal/model"
)

// fakeCrawler returns canned results and reports a few progress values.
type fakeCrawler struct {
	results  []model.CrawlResult
	gotDepth int
	gotPages int
	gotURL   string
	cancel   context.CancelFunc
}

func (f *fakeCrawler) Crawl(_ context.Context, baseURL string, maxDepth, maxPages int, onProgress crawler.ProgressFunc) []model.CrawlResult {
	f.gotURL, f.gotDepth, f.gotPages = baseURL, maxDepth, maxPages
	if onProgress != nil {
		onProgress(0, "Checking robots.txt")
		onProgress(80, "Crawl complete")
	}
	if f.cancel != nil {
		f.cancel()
	}
	return f.results
}

// fakeAuditor returns a fixed result or error.
type fakeAuditor struct {
	result *model.LighthouseResult
	err    error
	calls  int
}

func (f *fakeAuditor) Analyze(context.Context, string) (*model.LighthouseResult, error) {
	f.calls++
	return f.result, f.err
}

func okPage(url string, issues ...model.Issue) model.CrawlResult {
	return model.CrawlResult{
		URL:        url,
		StatusCode: 200,
		Analysis:   &model.PageAnalysis{Issues: issues},
	}
}

func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("stores pages and budgets", func(t *testing.T) {
		t.Parallel()

		c := &fakeCrawler{results: []model.CrawlResult{okPage("https://example.com/"), okPage("https://example.com/a")}}
		progress := &progressLog{}
		step := NewCrawlStep(c, WithCrawlMaxDepth(2), WithCrawlMaxPages(7),
			WithCrawlProgress(progress.record), WithCrawlLogger(discardLogger()))

		report := model.NewAuditReport("https://example.com/")
		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if c.gotURL != "https://example.com/" || c.gotDepth != 2 || c.gotPages != 7 {
			t.Errorf("crawl called with %q/%d/%d", c.gotURL, c.gotDepth, c.gotPages)
		}
		if len(report.Pages) != 2 || report.PagesAnalyzed != 2 {
			t.Errorf("pages = %d, analyzed = %d", len(report.Pages), report.PagesAnalyzed)
		}
		if report.MaxDepth != 2 || report.MaxPages != 7 {
			t.Errorf("budgets = %d/%d", report.MaxDepth, report.MaxPages)
		}
		if !slices.Equal(progress.percents, []int{0, 80}) {
			t.Errorf("progress = %v", progress.percents)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(&fakeCrawler{})
		if step.maxDepth != config.DefaultMaxDepth || step.maxPages != config.DefaultMaxPages {
			t.Errorf("defaults = %d/%d", step.maxDepth, step.maxPages)
		}
		if step.Name() != "crawl" {
			t.Errorf("Name() = %q", step.Name())
		}
	})

	t.Run("cancellation keeps partial pages and fails", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c := &fakeCrawler{results: []model.CrawlResult{okPage("https://example.com/")}, cancel: cancel}

		report := model.NewAuditReport("https://example.com/")
		err := NewCrawlStep(c, WithCrawlLogger(discardLogger())).Do(ctx, report)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
		if len(report.Pages) != 1 {
			t.Errorf("partial pages lost: %d", len(report.Pages))
		}
	})
}

func TestPerformanceStep(t *testing.T) {
	t.Parallel()

	lh := &model.LighthouseResult{Performance: 90, Accessibility: 80, SEO: 70}

	tests := []struct {
		name      string
		pages     []model.CrawlResult
		auditor   *fakeAuditor
		want      *model.LighthouseResult
		wantCalls int
	}{
		{
			name:      "stores the result",
			pages:     []model.CrawlResult{okPage("https://example.com/")},
			auditor:   &fakeAuditor{result: lh},
			want:      lh,
			wantCalls: 1,
		},
		{
			name:      "failure leaves no result",
			pages:     []model.CrawlResult{okPage("https://example.com/")},
			auditor:   &fakeAuditor{err: errors.New("chrome crashed")},
			want:      nil,
			wantCalls: 1,
		},
		{
			name:      "skipped without a loaded page",
			pages:     []model.CrawlResult{model.NewFailedResult("https://example.com/", model.ErrorKindDNS, "no such host")},
			auditor:   &fakeAuditor{result: lh},
			want:      nil,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			report := model.NewAuditReport("https://example.com/")
			report.Pages = tt.pages
			step := NewPerformanceStep(tt.auditor, WithPerformanceLogger(discardLogger()))

			if err := step.Do(context.Background(), report); err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			if report.Lighthouse != tt.want {
				t.Errorf("Lighthouse = %+v, want %+v", report.Lighthouse, tt.want)
			}
			if tt.auditor.calls != tt.wantCalls {
				t.Errorf("auditor calls = %d, want %d", tt.auditor.calls, tt.wantCalls)
			}
		})
	}
}

func TestScoreAndInsightSteps(t *testing.T) {
	t.Parallel()

	missingTitle := model.Issue{Severity: model.SeverityError, Message: "Missing page title"}
	noAlt := model.Issue{Severity: model.SeverityWarning, Message: "Image without alt text"}

	report := model.NewAuditReport("https://example.com/")
	report.Pages = []model.CrawlResult{
		okPage("https://example.com/", missingTitle, noAlt),
		okPage("https://example.com/a", missingTitle),
	}
	report.Lighthouse = &model.LighthouseResult{Performance: 90, Accessibility: 90, SEO: 90}

	if err := NewScoreStep().Do(context.Background(), report); err != nil {
		t.Fatalf("score: %v", err)
	}
	// 100 - 2*5 - 1 = 89, averaged with 90.
	if report.Score != 90 {
		t.Errorf("Score = %d, want 90", report.Score)
	}
	if report.Errors != 2 || report.Warnings != 1 {
		t.Errorf("errors/warnings = %d/%d, want 2/1", report.Errors, report.Warnings)
	}

	if err := NewInsightStep().Do(context.Background(), report); err != nil {
		t.Fatalf("insights: %v", err)
	}
	if len(report.Insights) != 2 {
		t.Fatalf("insights = %d, want 2", len(report.Insights))
	}
	if report.Insights[0].Title != "Fix: Missing page title" {
		t.Errorf("first insight = %q", report.Insights[0].Title)
	}
}

func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	t.Run("standard steps", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(&fakeCrawler{}, &fakeAuditor{}, nil, nil)
		want := []string{"crawl", "performance", "score", "insights"}
		if got := p.StepNames(); !slices.Equal(got, want) {
			t.Errorf("StepNames() = %v, want %v", got, want)
		}
	})

	t.Run("site settings skip performance", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(&fakeCrawler{}, &fakeAuditor{}, nil, nil,
			WithSite(config.Site{MaxDepth: 1, MaxPages: 5, SkipPerformance: true}))
		want := []string{"crawl", "score", "insights"}
		if got := p.StepNames(); !slices.Equal(got, want) {
			t.Errorf("StepNames() = %v, want %v", got, want)
		}
	})

	t.Run("nil auditor", func(t *testing.T) {
		t.Parallel()

		p := DefaultPipeline(&fakeCrawler{}, nil, nil, nil)
		if slices.Contains(p.StepNames(), "performance") {
			t.Error("performance step added without an auditor")
		}
	})

	t.Run("full audit", func(t *testing.T) {
		t.Parallel()

		c := &fakeCrawler{results: []model.CrawlResult{
			okPage("https://example.com/", model.Issue{Severity: model.SeverityWarning, Message: "Meta description too short"}),
		}}
		auditor := &fakeAuditor{result: &model.LighthouseResult{Performance: 100, Accessibility: 100, SEO: 100}}
		progress := &progressLog{}
		rec := &auditRecorder{}

		p := DefaultPipeline(c, auditor, progress.record,
			[]Option{WithLogger(discardLogger()), WithRecorder(rec)},
			WithPipelineSkipPerformance(false))

		report := model.NewAuditReport("https://example.com/")
		if err := p.Execute(context.Background(), report); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		if report.Status != model.AuditStatusComplete {
			t.Errorf("status = %q", report.Status)
		}
		// (99 + 100) / 2 rounds to 100.
		if report.Score != 100 {
			t.Errorf("score = %d, want 100", report.Score)
		}
		if len(report.Insights) != 1 {
			t.Errorf("insights = %d, want 1", len(report.Insights))
		}
		if !slices.Equal(progress.percents, []int{0, 80, 85, 92, 100}) {
			t.Errorf("progress = %v, want [0 80 85 92 100]", progress.percents)
		}
		if len(rec.reports) != 1 {
			t.Error("audit not recorded")
		}
	})
}
