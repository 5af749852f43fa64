package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/siteaudit/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.AuditReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writePerformance(md, report)
	w.writeIssues(md, report)
	w.writeInsights(md, report)
	w.writePages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.AuditReport) {
	md.H1("SiteAudit Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + report.URL + "`"},
			{"Audit ID", "`" + report.ID + "`"},
			{"Audit Date", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Pages Analyzed", strconv.Itoa(report.PagesAnalyzed)},
			{"Status", w.statusEmoji(report) + " " + statusText(report)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) statusEmoji(report *model.AuditReport) string {
	switch report.Status {
	case model.AuditStatusComplete:
		return "✅"
	case model.AuditStatusFailed:
		return "❌"
	default:
		return "⏳"
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.AuditReport) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"**Health Score**", "**" + strconv.Itoa(report.Score) + "/100**"},
			{"🔴 Errors", strconv.Itoa(report.Errors)},
			{"🟡 Warnings", strconv.Itoa(report.Warnings)},
			{"🔵 Info", strconv.Itoa(report.Infos)},
		},
	})
	md.PlainText("")

	if report.Errors+report.Warnings+report.Infos > 0 {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart for the severity distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.AuditReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Issue Severity Distribution"),
		piechart.WithShowData(true),
	)

	if report.Errors > 0 {
		chart.LabelAndIntValue("Errors", uint64(report.Errors))
	}
	if report.Warnings > 0 {
		chart.LabelAndIntValue("Warnings", uint64(report.Warnings))
	}
	if report.Infos > 0 {
		chart.LabelAndIntValue("Info", uint64(report.Infos))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.AuditReport) {
	switch {
	case report.Status == model.AuditStatusFailed:
		md.Cautionf("The audit failed: %s", report.Error)
	case report.SuccessfulPages() == 0:
		md.Cautionf("None of the %d crawled page(s) could be loaded.", report.PagesAnalyzed)
	case report.Errors > 0:
		md.Warningf("%d error(s) hurt how search engines index this site.", report.Errors)
	case report.Warnings > 0:
		md.Importantf("%d warning(s) found.", report.Warnings)
	default:
		md.Tip("No significant issues detected.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePerformance(md *markdown.Markdown, report *model.AuditReport) {
	lh := report.Lighthouse
	if lh == nil {
		return
	}

	md.H2("Performance")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Score"},
		Rows: [][]string{
			{"Performance", strconv.Itoa(lh.Performance)},
			{"Accessibility", strconv.Itoa(lh.Accessibility)},
			{"Best Practices", strconv.Itoa(lh.BestPractices)},
			{"SEO", strconv.Itoa(lh.SEO)},
		},
	})
	md.PlainText("")

	m := lh.Metrics
	md.Table(markdown.TableSet{
		Header: []string{"Core Web Vital", "Value"},
		Rows: [][]string{
			{"First Contentful Paint", fmt.Sprintf("%.0f ms", m.FCP)},
			{"Largest Contentful Paint", fmt.Sprintf("%.0f ms", m.LCP)},
			{"Cumulative Layout Shift", fmt.Sprintf("%.3f", m.CLS)},
			{"Total Blocking Time", fmt.Sprintf("%.0f ms", m.TBT)},
			{"Speed Index", fmt.Sprintf("%.0f ms", m.SpeedIndex)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeIssues(md *markdown.Markdown, report *model.AuditReport) {
	md.H2("Top Issues")
	md.PlainText("")

	aggregates := model.AggregateIssues(report.Pages)
	if len(aggregates) == 0 {
		md.PlainText("No issues found.")
		md.PlainText("")
		return
	}
	if len(aggregates) > maxTopIssues {
		aggregates = aggregates[:maxTopIssues]
	}

	rows := make([][]string, len(aggregates))
	for i, agg := range aggregates {
		rows[i] = []string{
			label(agg.Severity.String()),
			truncateString(agg.Message, 80),
			strconv.Itoa(agg.Count),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Issue", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeInsights(md *markdown.Markdown, report *model.AuditReport) {
	if len(report.Insights) == 0 {
		return
	}

	md.H2("Insights")
	md.PlainText("")
	for _, insight := range report.Insights {
		md.PlainTextf("### %s", insight.Title)
		md.PlainText("")
		md.PlainTextf("**Priority:** %s", label(string(insight.Priority)))
		md.PlainText("")
		md.PlainText(insight.Description)
		md.PlainText("")
		if len(insight.AffectedPages) > 0 {
			md.Details("Affected pages", strings.Join(insight.AffectedPages, "\n"))
			md.PlainText("")
		}
	}
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.AuditReport) {
	md.H2("Pages")
	md.PlainText("")

	if len(report.Pages) == 0 {
		md.PlainText("No pages crawled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Pages))
	for i := range report.Pages {
		p := &report.Pages[i]
		title := p.Title
		if p.Error != "" {
			title = string(p.ErrorType) + ": " + p.Error
		}
		if title == "" {
			title = "-"
		}
		rows[i] = []string{
			strconv.Itoa(p.StatusCode),
			truncateString(p.URL, 60),
			truncateString(title, 50),
			strconv.Itoa(p.IssueCount(model.SeverityError)),
			strconv.Itoa(p.IssueCount(model.SeverityWarning)),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Status", "URL", "Title", "Errors", "Warnings"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [siteaudit](https://github.com/nao1215/siteaudit)*")
}
