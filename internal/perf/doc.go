// Package perf runs a lab performance audit of a single page.
//
// The Auditor loads the page in the browser engine, reads paint, layout
// shift and long task timings recorded by an init script, and reduces them
// to Lighthouse-style category scores between 0 and 100.
//
// # Scores
//
// Performance is the weighted mean of per-metric scores. A metric scores 100
// at or below its "good" threshold, 0 at or above its "poor" threshold and
// falls linearly in between. Accessibility, best practices and SEO are the
// share of passed checks computed from the rendered HTML.
//
// A failed audit returns an error; callers treat the audit as absent.
package perf
