package report

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/siteaudit/internal/model"
)

// Writer renders one audit report. It returns the number of bytes
// written.
type Writer interface {
	Write(report *model.AuditReport) (int, error)
}

// MultiWriter sends each report to several writers, for example a JSON
// export file and the terminal summary. A failing writer does not keep the
// others from running; their errors are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter returns a MultiWriter over writers, in order.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write implements Writer.
func (m *MultiWriter) Write(report *model.AuditReport) (int, error) {
	var total int
	var errs []error
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// label turns an enum value such as "high" or "connection_refused" into a
// display label. Casers are stateful, so each call gets its own.
func label(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// statusText describes how the audit ended.
func statusText(report *model.AuditReport) string {
	switch report.Status {
	case model.AuditStatusComplete:
		return "Complete"
	case model.AuditStatusFailed:
		if report.Error != "" {
			return "Failed - " + report.Error
		}
		return "Failed"
	default:
		return label(string(report.Status))
	}
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
