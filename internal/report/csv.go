package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/siteaudit/internal/model"
)

// CSVMode selects what one CSV row describes.
type CSVMode int

const (
	// CSVPages writes one row per crawled page.
	CSVPages CSVMode = iota
	// CSVIssues writes one row per analyzer issue.
	CSVIssues
)

// cellSeparator joins list values inside one cell.
const cellSeparator = " | "

var pageHeader = []string{
	"URL", "Status Code", "Title", "Meta Description", "Meta Keywords",
	"Canonical", "Robots", "OG Title", "OG Description", "OG Image",
	"H1 Count", "H1 Text", "H2 Count", "H3 Count",
	"Total Images", "Images With Alt", "Images Without Alt",
	"Internal Links", "External Links", "Broken Links",
	"Has Structured Data", "Schema Types",
	"Errors", "Warnings", "Issue Details",
	"Error Type", "Response Time (ms)",
}

var issueHeader = []string{"Page URL", "Status Code", "Issue Type", "Issue Message", "Element"}

// CSVWriter outputs the pages or the issues of a report as CSV.
type CSVWriter struct {
	baseWriter
	mode CSVMode
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer, mode CSVMode) *CSVWriter {
	return &CSVWriter{
		baseWriter: newBaseWriter(output),
		mode:       mode,
	}
}

// Write outputs the report rows with a header line.
func (w *CSVWriter) Write(report *model.AuditReport) (int, error) {
	var rows [][]string
	switch w.mode {
	case CSVIssues:
		rows = issueRows(report)
	default:
		rows = pageRows(report)
	}

	counter := &countingWriter{w: w.output}
	cw := csv.NewWriter(counter)
	if err := cw.WriteAll(rows); err != nil {
		return counter.n, fmt.Errorf("failed to write csv: %w", err)
	}
	return counter.n, nil
}

func pageRows(report *model.AuditReport) [][]string {
	rows := make([][]string, 0, len(report.Pages)+1)
	rows = append(rows, pageHeader)

	for i := range report.Pages {
		p := &report.Pages[i]
		a := p.Analysis
		if a == nil {
			a = model.NewPageAnalysis()
		}

		details := make([]string, 0, len(a.Issues))
		for _, issue := range a.Issues {
			details = append(details, fmt.Sprintf("[%s] %s", issue.Severity, issue.Message))
		}

		responseTime := ""
		if p.ResponseTimeMs != nil {
			responseTime = strconv.FormatInt(*p.ResponseTimeMs, 10)
		}

		rows = append(rows, []string{
			p.URL,
			strconv.Itoa(p.StatusCode),
			a.Meta.Title,
			a.Meta.Description,
			a.Meta.Keywords,
			a.Meta.Canonical,
			a.Meta.Robots,
			a.Meta.OGTitle,
			a.Meta.OGDescription,
			a.Meta.OGImage,
			strconv.Itoa(len(a.Headings.H1)),
			strings.Join(a.Headings.H1, cellSeparator),
			strconv.Itoa(len(a.Headings.H2)),
			strconv.Itoa(len(a.Headings.H3)),
			strconv.Itoa(a.Images.Total),
			strconv.Itoa(a.Images.WithAlt),
			strconv.Itoa(a.Images.WithoutAltCount),
			strconv.Itoa(a.Links.Internal),
			strconv.Itoa(a.Links.External),
			strings.Join(a.Links.Broken, cellSeparator),
			yesNo(a.Schema.HasStructuredData),
			strings.Join(a.Schema.Types, cellSeparator),
			strconv.Itoa(a.CountIssues(model.SeverityError)),
			strconv.Itoa(a.CountIssues(model.SeverityWarning)),
			strings.Join(details, cellSeparator),
			string(p.ErrorType),
			responseTime,
		})
	}
	return rows
}

// issueRows lists every issue. A report without issues gets a single
// "No issues found" row so the file is never header-only.
func issueRows(report *model.AuditReport) [][]string {
	rows := [][]string{issueHeader}

	for i := range report.Pages {
		p := &report.Pages[i]
		if p.Analysis == nil {
			continue
		}
		for _, issue := range p.Analysis.Issues {
			rows = append(rows, []string{
				p.URL,
				strconv.Itoa(p.StatusCode),
				issue.Severity.String(),
				issue.Message,
				issue.Element,
			})
		}
	}

	if len(rows) == 1 {
		rows = append(rows, []string{report.URL, "0", model.SeverityInfo.String(), "No issues found", ""})
	}
	return rows
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// countingWriter counts the bytes csv.Writer flushes.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
