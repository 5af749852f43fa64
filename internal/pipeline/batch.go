package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/model"
	"golang.org/x/sync/errgroup"
)

// Factory creates the pipeline for one target. Each audit gets its own
// pipeline so per-site settings and crawler state never leak between sites.
type Factory func(target string) *Pipeline

// BatchProcessor audits multiple sites concurrently.
type BatchProcessor struct {
	factory     Factory
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent audits.
// Non-positive values keep the default of config.DefaultBatchSize.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: config.DefaultBatchSize,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch audits every target and returns the reports in target order.
//
// A failed audit does not stop the others; its report is failed and carries
// the error. Targets not started before ctx ended get no report (nil entry)
// and the context error is returned.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string) ([]*model.AuditReport, error) {
	results := make([]*model.AuditReport, len(targets))
	err := bp.ProcessBatchWithCallback(ctx, targets, func(report *model.AuditReport, index int) {
		results[index] = report
	})
	return results, err
}

// ProcessBatchWithCallback audits every target and calls callback for each
// finished report with the target's index. The callback is called from the
// goroutine that ran the audit and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	targets []string,
	callback func(report *model.AuditReport, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_sites", len(targets),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("auditing site",
				"url", target,
				"index", i+1,
				"total", len(targets),
			)

			report := model.NewAuditReport(target)
			if err := bp.factory(target).Execute(ctx, report); err != nil {
				// Recorded in the report; the other audits continue.
				bp.logger.Warn("audit failed", "url", target, "error", err)
			}

			callback(report, i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_sites", len(targets),
		"elapsed", time.Since(startTime),
	)

	return err
}
