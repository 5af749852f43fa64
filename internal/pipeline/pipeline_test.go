package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/siteaudit/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, report *model.AuditReport) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, report *model.AuditReport) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, report)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// milestoneStep is a mockStep that announces progress.
type milestoneStep struct {
	mockStep
	percent int
}

func (m *milestoneStep) Milestone() (int, string) {
	return m.percent, m.name
}

// progressLog collects progress callbacks.
type progressLog struct {
	mu       sync.Mutex
	percents []int
	messages []string
}

func (p *progressLog) record(percent int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percents = append(p.percents, percent)
	p.messages = append(p.messages, message)
}

// auditRecorder collects finished audits.
type auditRecorder struct {
	mu      sync.Mutex
	reports []*model.AuditReport
}

func (r *auditRecorder) AuditFinished(report *model.AuditReport, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	t.Run("adds multiple steps with AddSteps", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddSteps(&mockStep{name: "step-1"}, &mockStep{name: "step-2"}, &mockStep{name: "step-3"})

		if p.StepCount() != 3 {
			t.Errorf("expected 3 steps, got %d", p.StepCount())
		}
	})

	t.Run("maintains step order", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddStep(&mockStep{name: "first"})
		p.AddStep(&mockStep{name: "second"})
		p.AddStep(&mockStep{name: "third"})

		want := []string{"first", "second", "third"}
		if got := p.StepNames(); !slices.Equal(got, want) {
			t.Errorf("StepNames() = %v, want %v", got, want)
		}
	})

	t.Run("returns empty names for empty pipeline", func(t *testing.T) {
		t.Parallel()

		if names := New().StepNames(); len(names) != 0 {
			t.Errorf("expected empty slice, got %v", names)
		}
	})
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order and completes the report", func(t *testing.T) {
		t.Parallel()

		var order []string
		p := New(WithLogger(discardLogger()))
		p.AddStep(&mockStep{
			name: "step-1",
			doFunc: func(_ context.Context, r *model.AuditReport) error {
				if r.Status != model.AuditStatusRunning {
					t.Errorf("status during step = %q, want running", r.Status)
				}
				order = append(order, "step-1")
				return nil
			},
		})
		p.AddStep(&mockStep{
			name: "step-2",
			doFunc: func(_ context.Context, _ *model.AuditReport) error {
				order = append(order, "step-2")
				return nil
			},
		})

		report := model.NewAuditReport("https://example.com/")
		if err := p.Execute(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(order, []string{"step-1", "step-2"}) {
			t.Errorf("wrong execution order: %v", order)
		}
		if report.Status != model.AuditStatusComplete {
			t.Errorf("status = %q, want complete", report.Status)
		}
		if report.CompletedAt.IsZero() {
			t.Error("CompletedAt not set")
		}
		if !slices.Equal(report.Steps, []string{"step-1", "step-2"}) {
			t.Errorf("Steps = %v", report.Steps)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		second := &mockStep{name: "should-not-run"}

		p := New(WithLogger(discardLogger()))
		p.AddStep(&mockStep{
			name: "failing-step",
			doFunc: func(_ context.Context, _ *model.AuditReport) error {
				return expectedErr
			},
		})
		p.AddStep(second)

		report := model.NewAuditReport("https://example.com/")
		err := p.Execute(context.Background(), report)

		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if second.callCount != 0 {
			t.Error("second step should not have been called")
		}
		if report.Status != model.AuditStatusFailed {
			t.Errorf("status = %q, want failed", report.Status)
		}
		if report.Error != expectedErr.Error() {
			t.Errorf("report.Error = %q, want %q", report.Error, expectedErr.Error())
		}
		if !slices.Equal(report.Steps, []string{"failing-step"}) {
			t.Errorf("Steps = %v", report.Steps)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		second := &mockStep{name: "should-run"}
		p := New(WithContinueOnError(true), WithLogger(discardLogger()))
		p.AddStep(&mockStep{
			name: "failing-step",
			doFunc: func(_ context.Context, _ *model.AuditReport) error {
				return errors.New("step failed")
			},
		})
		p.AddStep(second)

		report := model.NewAuditReport("https://example.com/")
		if err := p.Execute(context.Background(), report); err != nil {
			t.Errorf("expected nil error with continueOnError, got %v", err)
		}
		if second.callCount != 1 {
			t.Error("second step should have been called")
		}
		if report.Status != model.AuditStatusFailed {
			t.Errorf("status = %q, want failed", report.Status)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "should-not-run"}
		p := New(WithLogger(discardLogger()))
		p.AddStep(step)

		report := model.NewAuditReport("https://example.com/")
		err := p.Execute(ctx, report)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step should not have been called")
		}
		if report.Status != model.AuditStatusFailed || report.Error == "" {
			t.Errorf("report = %q/%q, want failed with an error", report.Status, report.Error)
		}
	})

	t.Run("reports milestones and completion", func(t *testing.T) {
		t.Parallel()

		progress := &progressLog{}
		p := New(WithProgress(progress.record), WithLogger(discardLogger()))
		p.AddSteps(
			&mockStep{name: "plain"},
			&milestoneStep{mockStep: mockStep{name: "halfway"}, percent: 50},
		)

		if err := p.Execute(context.Background(), model.NewAuditReport("https://example.com/")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(progress.percents, []int{50, 100}) {
			t.Errorf("percents = %v, want [50 100]", progress.percents)
		}
		if progress.messages[0] != "halfway" {
			t.Errorf("messages = %v", progress.messages)
		}
	})

	t.Run("failed audit does not report completion", func(t *testing.T) {
		t.Parallel()

		progress := &progressLog{}
		p := New(WithProgress(progress.record), WithLogger(discardLogger()))
		p.AddStep(&mockStep{name: "broken", doFunc: func(context.Context, *model.AuditReport) error {
			return errors.New("boom")
		}})

		_ = p.Execute(context.Background(), model.NewAuditReport("https://example.com/")) //nolint:errcheck // status checked below
		if slices.Contains(progress.percents, 100) {
			t.Errorf("percents = %v, a failed audit must not reach 100", progress.percents)
		}
	})

	t.Run("notifies the recorder", func(t *testing.T) {
		t.Parallel()

		rec := &auditRecorder{}
		p := New(WithRecorder(rec), WithLogger(discardLogger()))
		p.AddStep(&mockStep{name: "noop"})

		report := model.NewAuditReport("https://example.com/")
		if err := p.Execute(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rec.reports) != 1 || rec.reports[0] != report {
			t.Errorf("recorder got %d reports", len(rec.reports))
		}
		if rec.reports[0].Status != model.AuditStatusComplete {
			t.Errorf("recorded status = %q, want complete", rec.reports[0].Status)
		}
	})

	t.Run("timeout cancels the running step", func(t *testing.T) {
		t.Parallel()

		p := New(WithTimeout(20*time.Millisecond), WithLogger(discardLogger()))
		p.AddStep(&mockStep{name: "slow", doFunc: func(ctx context.Context, _ *model.AuditReport) error {
			<-ctx.Done()
			return ctx.Err()
		}})

		report := model.NewAuditReport("https://example.com/")
		err := p.Execute(context.Background(), report)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		if report.Status != model.AuditStatusFailed {
			t.Errorf("status = %q, want failed", report.Status)
		}
	})
}
