package pipeline

import (
	"context"
	"log/slog"
	"slices"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/crawler"
	"github.com/nao1215/siteaudit/internal/model"
)

// SiteCrawler crawls one site. crawler.Crawler implements it.
type SiteCrawler interface {
	Crawl(ctx context.Context, baseURL string, maxDepth, maxPages int, onProgress crawler.ProgressFunc) []model.CrawlResult
}

// PerformanceAuditor scores a single page. perf.Auditor implements it.
type PerformanceAuditor interface {
	Analyze(ctx context.Context, pageURL string) (*model.LighthouseResult, error)
}

// CrawlStep crawls the audited site and stores the results in report.Pages.
// It reports progress from 0 to 80 percent.
type CrawlStep struct {
	crawler  SiteCrawler
	maxDepth int
	maxPages int
	progress ProgressFunc
	logger   *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlMaxDepth sets the maximum crawl depth.
func WithCrawlMaxDepth(depth int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxDepth = depth
	}
}

// WithCrawlMaxPages sets the maximum pages to crawl.
func WithCrawlMaxPages(maxPages int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxPages = maxPages
	}
}

// WithCrawlProgress sets the receiver of crawl progress.
func WithCrawlProgress(fn ProgressFunc) CrawlStepOption {
	return func(s *CrawlStep) {
		s.progress = fn
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a new crawling step.
func NewCrawlStep(c SiteCrawler, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		crawler:  c,
		maxDepth: config.DefaultMaxDepth,
		maxPages: config.DefaultMaxPages,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step. A crawl interrupted by cancellation keeps the
// pages fetched so far and fails the step.
func (s *CrawlStep) Do(ctx context.Context, report *model.AuditReport) error {
	report.MaxDepth = s.maxDepth
	report.MaxPages = s.maxPages

	var onProgress crawler.ProgressFunc
	if s.progress != nil {
		onProgress = crawler.ProgressFunc(s.progress)
	}

	report.Pages = s.crawler.Crawl(ctx, report.URL, s.maxDepth, s.maxPages, onProgress)
	report.PagesAnalyzed = len(report.Pages)

	s.logger.Info("crawl completed",
		"url", report.URL,
		"pages", len(report.Pages),
		"successful", report.SuccessfulPages(),
	)

	return ctx.Err()
}

// PerformanceStep runs the performance audit on the site's home page.
// A failed audit leaves report.Lighthouse nil and does not fail the step.
type PerformanceStep struct {
	auditor PerformanceAuditor
	logger  *slog.Logger
}

// PerformanceStepOption configures a PerformanceStep.
type PerformanceStepOption func(*PerformanceStep)

// WithPerformanceLogger sets a custom logger for the performance step.
func WithPerformanceLogger(logger *slog.Logger) PerformanceStepOption {
	return func(s *PerformanceStep) {
		s.logger = logger
	}
}

// NewPerformanceStep creates a new performance step.
func NewPerformanceStep(auditor PerformanceAuditor, opts ...PerformanceStepOption) *PerformanceStep {
	s := &PerformanceStep{
		auditor: auditor,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *PerformanceStep) Name() string {
	return "performance"
}

// Milestone implements the progress announcement.
func (s *PerformanceStep) Milestone() (int, string) {
	return 85, "Running performance analysis"
}

// Do executes the performance step.
func (s *PerformanceStep) Do(ctx context.Context, report *model.AuditReport) error {
	report.Lighthouse = nil
	if report.SuccessfulPages() == 0 {
		s.logger.Debug("skipping performance audit, no page loaded", "url", report.URL)
		return nil
	}

	result, err := s.auditor.Analyze(ctx, report.URL)
	if err != nil {
		s.logger.Warn("performance audit failed", "url", report.URL, "error", err)
		return nil
	}
	report.Lighthouse = result
	return nil
}

// ScoreStep recomputes the issue counters and the health score.
type ScoreStep struct{}

// NewScoreStep creates a new scoring step.
func NewScoreStep() *ScoreStep {
	return &ScoreStep{}
}

// Name returns the step name.
func (s *ScoreStep) Name() string {
	return "score"
}

// Do executes the scoring step.
func (s *ScoreStep) Do(_ context.Context, report *model.AuditReport) error {
	report.Summarize()
	return nil
}

// InsightStep derives rule-based recommendations from the crawl.
type InsightStep struct{}

// NewInsightStep creates a new insight step.
func NewInsightStep() *InsightStep {
	return &InsightStep{}
}

// Name returns the step name.
func (s *InsightStep) Name() string {
	return "insights"
}

// Milestone implements the progress announcement.
func (s *InsightStep) Milestone() (int, string) {
	return 92, "Generating insights"
}

// Do executes the insight step.
func (s *InsightStep) Do(_ context.Context, report *model.AuditReport) error {
	report.Insights = model.BuildInsights(report.Pages)
	return nil
}

// DefaultPipelineConfig holds the per-site settings of the default pipeline.
type DefaultPipelineConfig struct {
	// MaxDepth is the maximum number of link hops from the seeds.
	MaxDepth int

	// MaxPages is the maximum number of pages to crawl.
	MaxPages int

	// SkipPerformance disables the performance step.
	SkipPerformance bool
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithSite applies the budgets of a resolved site configuration.
func WithSite(site config.Site) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxDepth = site.MaxDepth
		c.MaxPages = site.MaxPages
		c.SkipPerformance = site.SkipPerformance
	}
}

// WithPipelineSkipPerformance disables the performance step.
func WithPipelineSkipPerformance(skip bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.SkipPerformance = skip
	}
}

// DefaultPipeline creates a pipeline with the standard audit steps:
// crawl, performance (unless skipped, or when auditor is nil), score and
// insights. The crawl progress is forwarded to the pipeline's WithProgress
// receiver through progress.
func DefaultPipeline(c SiteCrawler, auditor PerformanceAuditor, progress ProgressFunc, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	cfg := &DefaultPipelineConfig{
		MaxDepth: config.DefaultMaxDepth,
		MaxPages: config.DefaultMaxPages,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	p := New(append(slices.Clone(pipelineOpts), WithProgress(progress))...)

	p.AddStep(NewCrawlStep(c,
		WithCrawlMaxDepth(cfg.MaxDepth),
		WithCrawlMaxPages(cfg.MaxPages),
		WithCrawlProgress(progress),
		WithCrawlLogger(p.logger),
	))
	if auditor != nil && !cfg.SkipPerformance {
		p.AddStep(NewPerformanceStep(auditor, WithPerformanceLogger(p.logger)))
	}
	p.AddSteps(NewScoreStep(), NewInsightStep())

	return p
}
