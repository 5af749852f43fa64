package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// AuditStatus is the lifecycle state of an audit.
type AuditStatus string

const (
	AuditStatusPending  AuditStatus = "pending"
	AuditStatusRunning  AuditStatus = "running"
	AuditStatusComplete AuditStatus = "complete"
	AuditStatusFailed   AuditStatus = "failed"
)

// Score deductions per analyzer issue.
const (
	errorPenalty   = 5
	warningPenalty = 1
	maxScore       = 100
)

// LighthouseMetrics are the lab timings reported by the performance auditor.
// Durations are in milliseconds; CLS is unitless.
type LighthouseMetrics struct {
	FCP        float64 `json:"fcp"`
	LCP        float64 `json:"lcp"`
	CLS        float64 `json:"cls"`
	TBT        float64 `json:"tbt"`
	SpeedIndex float64 `json:"speedIndex"`
}

// LighthouseResult is the category scores (0-100) of a performance audit.
type LighthouseResult struct {
	Performance   int               `json:"performance"`
	Accessibility int               `json:"accessibility"`
	BestPractices int               `json:"bestPractices"`
	SEO           int               `json:"seo"`
	Metrics       LighthouseMetrics `json:"metrics"`
}

// AuditReport aggregates everything produced for one audited site.
type AuditReport struct {
	ID     string      `json:"id"`
	URL    string      `json:"url"`
	Status AuditStatus `json:"status"`

	Score         int `json:"score"`
	PagesAnalyzed int `json:"pagesAnalyzed"`
	Errors        int `json:"errors"`
	Warnings      int `json:"warnings"`
	Infos         int `json:"infos"`

	Pages      []CrawlResult     `json:"pages"`
	Lighthouse *LighthouseResult `json:"lighthouse"`
	Insights   []Insight         `json:"insights"`

	MaxDepth int `json:"maxDepth"`
	MaxPages int `json:"maxPages"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitzero"`

	// Error is set when the audit itself failed rather than individual pages.
	Error string `json:"error,omitempty"`

	// Steps lists the pipeline steps that ran, in order.
	Steps []string `json:"steps,omitempty"`
}

// NewAuditReport creates a pending report for siteURL with a fresh ID.
func NewAuditReport(siteURL string) *AuditReport {
	return &AuditReport{
		ID:        uuid.NewString(),
		URL:       siteURL,
		Status:    AuditStatusPending,
		Pages:     []CrawlResult{},
		Insights:  []Insight{},
		StartedAt: time.Now(),
	}
}

// Summarize recomputes the issue counters and the health score from Pages
// and Lighthouse.
func (r *AuditReport) Summarize() {
	r.PagesAnalyzed = len(r.Pages)
	r.Errors, r.Warnings, r.Infos = 0, 0, 0
	for i := range r.Pages {
		r.Errors += r.Pages[i].IssueCount(SeverityError)
		r.Warnings += r.Pages[i].IssueCount(SeverityWarning)
		r.Infos += r.Pages[i].IssueCount(SeverityInfo)
	}
	r.Score = HealthScore(r.Pages, r.Lighthouse)
}

// SuccessfulPages returns the number of pages that loaded successfully.
func (r *AuditReport) SuccessfulPages() int {
	n := 0
	for i := range r.Pages {
		if r.Pages[i].IsSuccess() {
			n++
		}
	}
	return n
}

// HealthScore computes the 0-100 site score.
//
// Every error issue costs 5 points and every warning 1 point, starting from
// 100. With a performance report the result is averaged with the mean of its
// performance, accessibility and SEO scores. A crawl without a single
// successful page scores 0.
func HealthScore(pages []CrawlResult, lighthouse *LighthouseResult) int {
	successful := 0
	score := maxScore
	for i := range pages {
		if pages[i].IsSuccess() {
			successful++
		}
		score -= errorPenalty * pages[i].IssueCount(SeverityError)
		score -= warningPenalty * pages[i].IssueCount(SeverityWarning)
	}
	if successful == 0 {
		return 0
	}

	result := float64(score)
	if lighthouse != nil {
		avg := float64(lighthouse.Performance+lighthouse.Accessibility+lighthouse.SEO) / 3
		result = math.Round((result + avg) / 2)
	}

	return clampScore(int(result))
}

func clampScore(score int) int {
	return max(0, min(maxScore, score))
}
