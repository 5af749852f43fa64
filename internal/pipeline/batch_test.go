package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/model"
)

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	factory := func(string) *Pipeline { return New() }

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(factory)
		if bp.concurrency != config.DefaultBatchSize {
			t.Errorf("expected default concurrency %d, got %d", config.DefaultBatchSize, bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		if bp := NewBatchProcessor(factory, WithConcurrency(5)); bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		if bp := NewBatchProcessor(factory, WithConcurrency(0)); bp.concurrency != config.DefaultBatchSize {
			t.Errorf("expected default concurrency, got %d", bp.concurrency)
		}
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		t.Parallel()

		if bp := NewBatchProcessor(factory, WithBatchLogger(nil)); bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})
}

// TestBatchProcessorProcessBatch tests batch processing.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("audits every site in order", func(t *testing.T) {
		t.Parallel()

		var processed atomic.Int32
		bp := NewBatchProcessor(func(string) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{
				name: "counter",
				doFunc: func(_ context.Context, _ *model.AuditReport) error {
					processed.Add(1)
					return nil
				},
			})
			return p
		}, WithBatchLogger(discardLogger()))

		targets := []string{"https://one.example/", "https://two.example/", "https://three.example/"}
		results, err := bp.ProcessBatch(context.Background(), targets)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if processed.Load() != 3 {
			t.Errorf("expected 3 processed, got %d", processed.Load())
		}
		for i, r := range results {
			if r.URL != targets[i] {
				t.Errorf("result[%d] = %q, want %q", i, r.URL, targets[i])
			}
			if r.Status != model.AuditStatusComplete {
				t.Errorf("result[%d] status = %q", i, r.Status)
			}
		}
	})

	t.Run("factory receives the target", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		seen := make(map[string]bool)
		bp := NewBatchProcessor(func(target string) *Pipeline {
			mu.Lock()
			seen[target] = true
			mu.Unlock()
			return New(WithLogger(discardLogger()))
		}, WithBatchLogger(discardLogger()))

		if _, err := bp.ProcessBatch(context.Background(), []string{"https://a.example/", "https://b.example/"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !seen["https://a.example/"] || !seen["https://b.example/"] {
			t.Errorf("factory saw %v", seen)
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var maxConcurrent, current atomic.Int32
		bp := NewBatchProcessor(func(string) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{
				name: "concurrent-counter",
				doFunc: func(_ context.Context, _ *model.AuditReport) error {
					n := current.Add(1)
					for {
						old := maxConcurrent.Load()
						if n <= old || maxConcurrent.CompareAndSwap(old, n) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					current.Add(-1)
					return nil
				},
			})
			return p
		}, WithConcurrency(2), WithBatchLogger(discardLogger()))

		targets := make([]string, 8)
		for i := range targets {
			targets[i] = "https://example.com/"
		}
		if _, err := bp.ProcessBatch(context.Background(), targets); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if maxConcurrent.Load() > 2 {
			t.Errorf("max concurrent was %d, expected <= 2", maxConcurrent.Load())
		}
	})

	t.Run("continues after individual audit failure", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(string) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{
				name: "sometimes-fails",
				doFunc: func(_ context.Context, r *model.AuditReport) error {
					if r.URL == "https://fail.example/" {
						return errors.New("browser crashed")
					}
					return nil
				},
			})
			return p
		}, WithBatchLogger(discardLogger()))

		results, err := bp.ProcessBatch(context.Background(),
			[]string{"https://one.example/", "https://fail.example/", "https://three.example/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[1].Status != model.AuditStatusFailed || results[1].Error != "browser crashed" {
			t.Errorf("failed audit = %q/%q", results[1].Status, results[1].Error)
		}
		if results[0].Status != model.AuditStatusComplete || results[2].Status != model.AuditStatusComplete {
			t.Error("other audits should complete")
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		var started atomic.Int32

		bp := NewBatchProcessor(func(string) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{
				name: "slow-step",
				doFunc: func(ctx context.Context, _ *model.AuditReport) error {
					started.Add(1)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(time.Second):
						return nil
					}
				},
			})
			return p
		}, WithConcurrency(2), WithBatchLogger(discardLogger()))

		targets := make([]string, 10)
		for i := range targets {
			targets[i] = "https://example.com/"
		}

		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		_, err := bp.ProcessBatch(ctx, targets)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		//nolint:gosec // len(targets) is small
		if started.Load() >= int32(len(targets)) {
			t.Error("expected some audits to not start due to cancellation")
		}
	})
}

// TestBatchProcessorProcessBatchWithCallback tests callback-based processing.
func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	received := make(map[int]string)

	bp := NewBatchProcessor(func(string) *Pipeline {
		p := New(WithLogger(discardLogger()))
		p.AddStep(&mockStep{name: "noop"})
		return p
	}, WithBatchLogger(discardLogger()))

	targets := []string{"https://one.example/", "https://two.example/", "https://three.example/"}
	err := bp.ProcessBatchWithCallback(context.Background(), targets, func(r *model.AuditReport, i int) {
		mu.Lock()
		received[i] = r.URL
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, target := range targets {
		if received[i] != target {
			t.Errorf("callback %d got %q, want %q", i, received[i], target)
		}
	}
}
