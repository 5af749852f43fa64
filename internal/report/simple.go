package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/siteaudit/internal/model"
)

const (
	lineWidth    = 70
	maxTopIssues = 10
)

// SimpleWriter outputs human-readable text reports.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections without content are shown.
	showEmpty bool

	// verbose lists every page and issue details.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.AuditReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writePerformance(&sb, report)
	w.writeIssues(&sb, report)
	w.writeInsights(&sb, report)
	w.writePages(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", lineWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", lineWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.AuditReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", lineWidth))
	sb.WriteString("\n")
	sb.WriteString("                         SITEAUDIT REPORT\n")
	sb.WriteString(strings.Repeat("=", lineWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Site:           %s\n", report.URL)
	fmt.Fprintf(sb, "Audit ID:       %s\n", report.ID)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if !report.CompletedAt.IsZero() {
		fmt.Fprintf(sb, "Duration:       %s\n", report.CompletedAt.Sub(report.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(sb, "Pages Crawled:  %d (%d loaded)\n", report.PagesAnalyzed, report.SuccessfulPages())
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.AuditReport) {
	section(sb, "SUMMARY")

	fmt.Fprintf(sb, "  HEALTH SCORE: %d/100\n\n", report.Score)
	fmt.Fprintf(sb, "  ERRORS:   %d\n", report.Errors)
	fmt.Fprintf(sb, "  WARNINGS: %d\n", report.Warnings)
	fmt.Fprintf(sb, "  INFO:     %d\n", report.Infos)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePerformance(sb *strings.Builder, report *model.AuditReport) {
	lh := report.Lighthouse
	if lh == nil && !w.showEmpty {
		return
	}

	section(sb, "PERFORMANCE")
	if lh == nil {
		sb.WriteString("  No performance audit\n\n")
		return
	}

	fmt.Fprintf(sb, "  Performance:    %3d\n", lh.Performance)
	fmt.Fprintf(sb, "  Accessibility:  %3d\n", lh.Accessibility)
	fmt.Fprintf(sb, "  Best Practices: %3d\n", lh.BestPractices)
	fmt.Fprintf(sb, "  SEO:            %3d\n\n", lh.SEO)

	m := lh.Metrics
	fmt.Fprintf(sb, "  FCP %.0fms  LCP %.0fms  CLS %.3f  TBT %.0fms  SI %.0fms\n\n",
		m.FCP, m.LCP, m.CLS, m.TBT, m.SpeedIndex)
}

func (w *SimpleWriter) writeIssues(sb *strings.Builder, report *model.AuditReport) {
	aggregates := model.AggregateIssues(report.Pages)
	if len(aggregates) == 0 && !w.showEmpty {
		return
	}

	section(sb, "TOP ISSUES")
	if len(aggregates) == 0 {
		sb.WriteString("  No issues found\n\n")
		return
	}

	for i, agg := range aggregates {
		if i == maxTopIssues && !w.verbose {
			fmt.Fprintf(sb, "  ... and %d more\n", len(aggregates)-maxTopIssues)
			break
		}
		fmt.Fprintf(sb, "  [%s] %s (%d page(s))\n", severityIndicator(agg.Severity), agg.Message, agg.Count)
		if w.verbose {
			for _, page := range agg.AffectedPages {
				fmt.Fprintf(sb, "        %s\n", page)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeInsights(sb *strings.Builder, report *model.AuditReport) {
	if len(report.Insights) == 0 && !w.showEmpty {
		return
	}

	section(sb, "INSIGHTS")
	if len(report.Insights) == 0 {
		sb.WriteString("  No insights\n\n")
		return
	}

	for _, insight := range report.Insights {
		fmt.Fprintf(sb, "  * [%s] %s\n", label(string(insight.Priority)), insight.Title)
		fmt.Fprintf(sb, "    %s\n", insight.Description)
	}
	sb.WriteString("\n")
}

// writePages lists failed pages always and every page in verbose mode.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.AuditReport) {
	var failed []model.CrawlResult
	for _, p := range report.Pages {
		if !p.IsSuccess() {
			failed = append(failed, p)
		}
	}

	pages := failed
	title := "FAILED PAGES"
	if w.verbose {
		pages = report.Pages
		title = "PAGES"
	}
	if len(pages) == 0 && !w.showEmpty {
		return
	}

	section(sb, title)
	if len(pages) == 0 {
		sb.WriteString("  No pages\n\n")
		return
	}

	for _, p := range pages {
		if p.Error != "" {
			fmt.Fprintf(sb, "  %3d %s\n      %s: %s\n", p.StatusCode, p.URL, p.ErrorType, p.Error)
			continue
		}
		fmt.Fprintf(sb, "  %3d %s\n", p.StatusCode, p.URL)
		if p.Title != "" {
			fmt.Fprintf(sb, "      %s\n", truncateString(p.Title, 60))
		}
		if p.Redirected() {
			fmt.Fprintf(sb, "      -> %s\n", p.FinalURL)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", lineWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by siteaudit\n")
	sb.WriteString("https://github.com/nao1215/siteaudit\n")
	sb.WriteString(strings.Repeat("=", lineWidth))
	sb.WriteString("\n")
}

// severityIndicator returns a visual indicator for the severity level.
func severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityError:
		return "!!"
	case model.SeverityWarning:
		return "!"
	case model.SeverityInfo:
		return "i"
	default:
		return "?"
	}
}
