package perf

import (
	"math"
	"net/url"
	"slices"
	"strings"

	"github.com/nao1215/siteaudit/internal/model"
)

// threshold is the good/poor boundary pair of one metric and its weight in
// the performance score.
type threshold struct {
	good   float64
	poor   float64
	weight float64
}

var (
	fcpThreshold        = threshold{good: 1800, poor: 3000, weight: 0.10}
	speedIndexThreshold = threshold{good: 3400, poor: 5800, weight: 0.10}
	lcpThreshold        = threshold{good: 2500, poor: 4000, weight: 0.25}
	tbtThreshold        = threshold{good: 200, poor: 600, weight: 0.30}
	clsThreshold        = threshold{good: 0.1, poor: 0.25, weight: 0.25}
)

// metricScore maps value onto 0..1 between the thresholds.
func metricScore(value float64, t threshold) float64 {
	switch {
	case value <= t.good:
		return 1
	case value >= t.poor:
		return 0
	default:
		return (t.poor - value) / (t.poor - t.good)
	}
}

// PerformanceScore returns the weighted performance score of m.
func PerformanceScore(m model.LighthouseMetrics) int {
	parts := []struct {
		value float64
		t     threshold
	}{
		{m.FCP, fcpThreshold},
		{m.SpeedIndex, speedIndexThreshold},
		{m.LCP, lcpThreshold},
		{m.TBT, tbtThreshold},
		{m.CLS, clsThreshold},
	}
	var sum, weights float64
	for _, p := range parts {
		sum += metricScore(p.value, p.t) * p.t.weight
		weights += p.t.weight
	}
	return int(math.Round(sum / weights * 100))
}

// pageFacts is what the category checks look at.
type pageFacts struct {
	url      string
	status   int
	html     string
	analysis *model.PageAnalysis
}

type check func(p *pageFacts) bool

var accessibilityChecks = []check{
	func(p *pageFacts) bool { return p.analysis.Lang != "" },
	func(p *pageFacts) bool { return p.analysis.Meta.Title != "" },
	func(p *pageFacts) bool { return p.analysis.Images.WithoutAltCount == 0 },
	func(p *pageFacts) bool { return p.analysis.Accessibility.UnlabeledInputs == 0 },
	func(p *pageFacts) bool { return p.analysis.Accessibility.NegativeTabindex == 0 },
	func(p *pageFacts) bool {
		return len(p.analysis.Headings.H1) > 0 || len(p.analysis.Headings.H2) == 0
	},
	func(p *pageFacts) bool { return slices.Contains(p.analysis.Accessibility.Landmarks, "main") },
}

var bestPracticeChecks = []check{
	func(p *pageFacts) bool {
		u, err := url.Parse(p.url)
		return err == nil && u.Scheme == "https"
	},
	func(p *pageFacts) bool {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(p.html)), "<!doctype html")
	},
	func(p *pageFacts) bool {
		return strings.Contains(strings.ToLower(p.html), "charset")
	},
	func(p *pageFacts) bool { return p.analysis.HasViewport },
	func(p *pageFacts) bool { return p.analysis.HasFavicon },
}

var seoChecks = []check{
	func(p *pageFacts) bool { return p.status >= 200 && p.status < 400 },
	func(p *pageFacts) bool { return p.analysis.Meta.Title != "" },
	func(p *pageFacts) bool { return p.analysis.Meta.Description != "" },
	func(p *pageFacts) bool { return p.analysis.HasViewport },
	func(p *pageFacts) bool { return p.analysis.Meta.Canonical != "" },
	func(p *pageFacts) bool { return p.analysis.Images.WithoutAltCount == 0 },
	func(p *pageFacts) bool { return len(p.analysis.Links.Broken) == 0 },
	func(p *pageFacts) bool {
		return !strings.Contains(strings.ToLower(p.analysis.Meta.Robots), "noindex")
	},
}

// passRate returns the percentage of checks p passes.
func passRate(p *pageFacts, checks []check) int {
	passed := 0
	for _, c := range checks {
		if c(p) {
			passed++
		}
	}
	return int(math.Round(float64(passed) * 100 / float64(len(checks))))
}

// categoryScores fills every category of the result from the metrics and
// the rendered page.
func categoryScores(p *pageFacts, m model.LighthouseMetrics) *model.LighthouseResult {
	return &model.LighthouseResult{
		Performance:   PerformanceScore(m),
		Accessibility: passRate(p, accessibilityChecks),
		BestPractices: passRate(p, bestPracticeChecks),
		SEO:           passRate(p, seoChecks),
		Metrics:       m,
	}
}
