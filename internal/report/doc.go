// Package report renders audit reports.
//
// Writers share the Writer interface so the CLI can pick one per output
// format and compose several with MultiWriter:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter and FullJSONWriter: the report as JSON, optionally wrapped
//     with the tool version
//   - MarkdownWriter: a shareable document with tables and a mermaid chart
//   - CSVWriter: one row per page, or one row per issue
package report
