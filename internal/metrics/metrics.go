// Package metrics exposes crawl and audit measurements in the Prometheus
// text format.
//
// A Registry owns its own prometheus.Registry so that several audits in one
// process, and tests, never collide on the global default registerer.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/siteaudit/internal/model"
)

const namespace = "siteaudit"

// outcomeSuccess labels pages that loaded without error.
const outcomeSuccess = "success"

// Registry collects the measurements of every crawl and audit in the process.
// It implements crawler.Recorder.
type Registry struct {
	reg *prometheus.Registry

	PagesCrawled    *prometheus.CounterVec
	PageResponse    prometheus.Histogram
	AttemptFailures *prometheus.CounterVec
	Challenges      *prometheus.CounterVec
	SitemapURLs     prometheus.Counter
	Audits          *prometheus.CounterVec
	AuditDuration   prometheus.Histogram
	HealthScore     *prometheus.GaugeVec
}

// New creates a Registry with the Go runtime collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		PagesCrawled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_crawled_total",
				Help:      "Pages crawled, by outcome (success or error type)",
			},
			[]string{"outcome"},
		),
		PageResponse: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "page_response_seconds",
				Help:      "Navigation time of successfully loaded pages",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
			},
		),
		AttemptFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempt_failures_total",
				Help:      "Failed page fetch attempts, by error kind",
			},
			[]string{"kind"},
		),
		Challenges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "antibot_challenges_total",
				Help:      "Anti-bot challenge pages seen, by whether they cleared on recheck",
			},
			[]string{"resolved"},
		),
		SitemapURLs: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sitemap_urls_discovered_total",
				Help:      "URLs discovered through sitemaps",
			},
		),
		Audits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audits_total",
				Help:      "Finished audits, by final status",
			},
			[]string{"status"},
		),
		AuditDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audit_duration_seconds",
				Help:      "Wall time of whole audits",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
			},
		),
		HealthScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "health_score",
				Help:      "Health score of the last audit of each site",
			},
			[]string{"site"},
		),
	}
}

// PageCrawled counts one crawl result.
func (r *Registry) PageCrawled(result *model.CrawlResult) {
	outcome := outcomeSuccess
	if result.ErrorType != "" {
		outcome = string(result.ErrorType)
	}
	r.PagesCrawled.WithLabelValues(outcome).Inc()
	if result.ResponseTimeMs != nil && result.Error == "" {
		r.PageResponse.Observe(float64(*result.ResponseTimeMs) / 1000)
	}
}

// AttemptFailed counts one failed fetch attempt.
func (r *Registry) AttemptFailed(kind model.ErrorKind) {
	r.AttemptFailures.WithLabelValues(string(kind)).Inc()
}

// ChallengeDetected counts one anti-bot challenge.
func (r *Registry) ChallengeDetected(resolved bool) {
	r.Challenges.WithLabelValues(strconv.FormatBool(resolved)).Inc()
}

// SitemapDiscovered adds n discovered sitemap URLs. It matches the sitemap
// resolver's discovery hook.
func (r *Registry) SitemapDiscovered(n int) {
	r.SitemapURLs.Add(float64(n))
}

// AuditFinished records a completed or failed audit.
func (r *Registry) AuditFinished(report *model.AuditReport, elapsed time.Duration) {
	r.Audits.WithLabelValues(string(report.Status)).Inc()
	r.AuditDuration.Observe(elapsed.Seconds())
	if report.Status == model.AuditStatusComplete {
		r.HealthScore.WithLabelValues(report.URL).Set(float64(report.Score))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return r.serve(ctx, ln, logger)
}

func (r *Registry) serve(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	})
	defer stop()

	logger.Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
