package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/siteaudit/internal/model"
)

// Step is one stage of an audit. Steps run in sequence, each receiving the
// report accumulated by the previous ones.
type Step interface {
	// Do executes the step. Problems that only degrade the result, such as
	// a failed performance audit, are logged and not returned; a returned
	// error fails the audit.
	Do(ctx context.Context, report *model.AuditReport) error

	// Name returns the step's name for logging and for report.Steps.
	Name() string
}

// ProgressFunc receives the audit progress as a percentage and a status line.
type ProgressFunc func(percent int, message string)

// Recorder is told about every finished audit. metrics.Registry implements it.
type Recorder interface {
	AuditFinished(report *model.AuditReport, elapsed time.Duration)
}

// milestone is implemented by steps that announce a fixed progress value
// before they start.
type milestone interface {
	Milestone() (percent int, message string)
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	steps []Step

	logger   *slog.Logger
	progress ProgressFunc
	recorder Recorder
	timeout  time.Duration

	// continueOnError keeps running later steps after one failed. The
	// report still ends up failed.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithProgress sets the receiver of step milestones and of the final 100%.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// WithRecorder sets the receiver of finished audits.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithTimeout bounds a whole Execute call. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps against report and settles its final status.
//
// Cancellation is checked between steps; a cancelled audit is failed with
// the context error. Returns the first step error when continueOnError is
// false, and nil otherwise even if the report ended up failed.
func (p *Pipeline) Execute(ctx context.Context, report *model.AuditReport) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	report.Status = model.AuditStatusRunning
	if report.StartedAt.IsZero() {
		report.StartedAt = start
	}

	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
			report.Error = err.Error()
		}
	}

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("audit cancelled",
				"step", step.Name(),
				"url", report.URL,
				"reason", err,
			)
			fail(err)
			break
		}

		if m, ok := step.(milestone); ok {
			p.report(m.Milestone())
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"url", report.URL,
		)

		if err := step.Do(ctx, report); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"url", report.URL,
				"error", err,
			)
			fail(err)
			if !p.continueOnError {
				report.Steps = append(report.Steps, step.Name())
				break
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"url", report.URL,
			)
		}

		report.Steps = append(report.Steps, step.Name())
	}

	report.CompletedAt = time.Now()
	if firstErr != nil {
		report.Status = model.AuditStatusFailed
	} else {
		report.Status = model.AuditStatusComplete
		p.report(100, "Audit complete")
	}

	if p.recorder != nil {
		p.recorder.AuditFinished(report, time.Since(start))
	}

	p.logger.Info("audit finished",
		"url", report.URL,
		"status", report.Status,
		"score", report.Score,
		"pages", report.PagesAnalyzed,
	)

	if p.continueOnError {
		return nil
	}
	return firstErr
}

func (p *Pipeline) report(percent int, message string) {
	if p.progress != nil {
		p.progress(percent, message)
	}
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
