package model

import (
	"fmt"
	"sort"
)

// InsightPriority ranks how urgently an insight should be acted on.
type InsightPriority string

const (
	PriorityHigh   InsightPriority = "high"
	PriorityMedium InsightPriority = "medium"
	PriorityLow    InsightPriority = "low"
)

// Insight is an actionable recommendation derived from the crawl.
type Insight struct {
	Type          string          `json:"type"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Priority      InsightPriority `json:"priority"`
	AffectedPages []string        `json:"affectedPages,omitempty"`
}

const (
	maxInsights             = 5
	maxAffectedPages        = 5
	highPriorityThreshold   = 5
	mediumPriorityThreshold = 2
)

// IssueAggregate is one issue message with the pages that reported it.
type IssueAggregate struct {
	Message       string
	Severity      Severity
	Count         int
	AffectedPages []string
}

// AggregateIssues groups the analyzer issues of all pages by message, most
// frequent first. Ties are broken by severity and then by message so the
// order is stable. At most five affected pages are kept per message.
func AggregateIssues(pages []CrawlResult) []IssueAggregate {
	index := make(map[string]int)
	aggregates := make([]IssueAggregate, 0)

	for i := range pages {
		if pages[i].Analysis == nil {
			continue
		}
		for _, issue := range pages[i].Analysis.Issues {
			pos, ok := index[issue.Message]
			if !ok {
				pos = len(aggregates)
				index[issue.Message] = pos
				aggregates = append(aggregates, IssueAggregate{
					Message:  issue.Message,
					Severity: issue.Severity,
				})
			}
			agg := &aggregates[pos]
			agg.Count++
			if issue.Severity > agg.Severity {
				agg.Severity = issue.Severity
			}
			if len(agg.AffectedPages) < maxAffectedPages {
				agg.AffectedPages = append(agg.AffectedPages, pages[i].URL)
			}
		}
	}

	sort.SliceStable(aggregates, func(i, j int) bool {
		a, b := aggregates[i], aggregates[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		return a.Message < b.Message
	})

	return aggregates
}

// BuildInsights returns rule-based suggestions for the five most frequent
// issues of the crawl.
func BuildInsights(pages []CrawlResult) []Insight {
	aggregates := AggregateIssues(pages)
	if len(aggregates) > maxInsights {
		aggregates = aggregates[:maxInsights]
	}

	insights := make([]Insight, 0, len(aggregates))
	for _, agg := range aggregates {
		insights = append(insights, Insight{
			Type:  "suggestion",
			Title: "Fix: " + agg.Message,
			Description: fmt.Sprintf(
				"This issue affects %d page(s). Consider reviewing and fixing this across your site.",
				agg.Count,
			),
			Priority:      priorityFor(agg.Count),
			AffectedPages: agg.AffectedPages,
		})
	}
	return insights
}

func priorityFor(count int) InsightPriority {
	switch {
	case count > highPriorityThreshold:
		return PriorityHigh
	case count > mediumPriorityThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
