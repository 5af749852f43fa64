// Package pipeline runs site audits as a sequence of steps.
//
// An audit starts with a pending model.AuditReport. The pipeline marks it
// running and hands it to each step in order: the crawl fills Pages, the
// performance step adds the Lighthouse-style scores of the home page, the
// score step computes counters and the health score, and the insight step
// derives the top recommendations. When every step succeeded the report is
// complete; otherwise it is failed and carries the error.
//
// BatchProcessor audits several sites concurrently, bounded by errgroup's
// limit, with a fresh pipeline per site.
package pipeline
