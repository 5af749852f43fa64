package report

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/nao1215/siteaudit/internal/model"
)

// JSONWriter writes reports and other values as JSON, one document per call.
// HTML escaping is off so that URLs keep their literal '&', '<' and '>'.
type JSONWriter struct {
	baseWriter

	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents nested values by two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = "  "
	}
}

// NewJSONWriter creates a compact JSONWriter.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *JSONWriter) Write(report *model.AuditReport) (int, error) {
	return w.WriteValue(report)
}

// WriteValue writes any JSON-serializable value, such as a history listing.
// Nothing is written when encoding fails.
func (w *JSONWriter) WriteValue(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if w.indent != "" {
		enc.SetIndent("", w.indent)
	}
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}

// JSONReport is the document written by FullJSONWriter.
type JSONReport struct {
	Tool    string             `json:"tool"`
	Version string             `json:"version"`
	Report  *model.AuditReport `json:"report"`
}

// FullJSONWriter wraps each report in a JSONReport so that stored exports
// record which build produced them.
type FullJSONWriter struct {
	*JSONWriter

	version string
}

// NewFullJSONWriter creates a FullJSONWriter stamping version.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write implements Writer.
func (w *FullJSONWriter) Write(report *model.AuditReport) (int, error) {
	return w.WriteValue(&JSONReport{Tool: "siteaudit", Version: w.version, Report: report})
}
