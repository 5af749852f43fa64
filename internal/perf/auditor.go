package perf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/siteaudit/internal/analyzer"
	"github.com/nao1215/siteaudit/internal/browser"
	"github.com/nao1215/siteaudit/internal/model"
)

const (
	// DefaultTimeout bounds one whole audit.
	DefaultTimeout = 60 * time.Second

	// DefaultSettleDelay is how long the page may keep painting after the
	// network went idle.
	DefaultSettleDelay = time.Second

	navigationTimeout  = 30 * time.Second
	networkIdleTimeout = 10 * time.Second
)

// ErrNoResponse is returned when navigation produced no main document.
var ErrNoResponse = errors.New("no response for the main document")

// desktopUserAgent is the identity used for every audit so results are
// comparable between runs.
const desktopUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var desktopViewport = browser.Viewport{Width: 1350, Height: 940}

// observerScript runs before any page script and buffers the entries that
// cannot be read back from the performance timeline later.
const observerScript = `(() => {
  const s = window.__siteauditPerf = { lcp: 0, cls: 0, longTasks: [] };
  const observe = (type, fn) => {
    try {
      new PerformanceObserver((list) => list.getEntries().forEach(fn)).observe({ type, buffered: true });
    } catch (e) {}
  };
  observe('largest-contentful-paint', (e) => { s.lcp = e.renderTime || e.startTime; });
  observe('layout-shift', (e) => { if (!e.hadRecentInput) s.cls += e.value; });
  observe('longtask', (e) => { s.longTasks.push([e.startTime, e.duration]); });
})();`

// metricsScript reads the collected timings. Long tasks count towards
// blocking time for the part beyond 50ms, after the first contentful paint.
const metricsScript = `(() => {
  const s = window.__siteauditPerf || { lcp: 0, cls: 0, longTasks: [] };
  const paint = performance.getEntriesByName('first-contentful-paint')[0];
  const fcp = paint ? paint.startTime : 0;
  let tbt = 0;
  for (const [start, duration] of s.longTasks) {
    if (start >= fcp) tbt += Math.max(0, duration - 50);
  }
  return { fcp, lcp: s.lcp, cls: s.cls, tbt };
})()`

// rawMetrics is the shape returned by metricsScript.
type rawMetrics struct {
	FCP float64 `json:"fcp"`
	LCP float64 `json:"lcp"`
	CLS float64 `json:"cls"`
	TBT float64 `json:"tbt"`
}

// Auditor measures single pages. It is safe for sequential use only.
type Auditor struct {
	engine  browser.Engine
	launch  browser.LaunchOptions
	logger  *slog.Logger
	timeout time.Duration
	settle  time.Duration
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

// WithLaunchOptions sets how the browser is started.
func WithLaunchOptions(opts browser.LaunchOptions) Option {
	return func(a *Auditor) {
		a.launch = opts
	}
}

// WithTimeout bounds one audit.
func WithTimeout(d time.Duration) Option {
	return func(a *Auditor) {
		a.timeout = d
	}
}

// WithSettleDelay sets the pause between network idle and reading metrics.
func WithSettleDelay(d time.Duration) Option {
	return func(a *Auditor) {
		a.settle = d
	}
}

// New creates an Auditor.
func New(engine browser.Engine, opts ...Option) *Auditor {
	a := &Auditor{
		engine:  engine,
		launch:  browser.LaunchOptions{Headless: true},
		logger:  slog.Default(),
		timeout: DefaultTimeout,
		settle:  DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze loads pageURL in a fresh browser and returns its scores.
func (a *Auditor) Analyze(ctx context.Context, pageURL string) (*model.LighthouseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	b, err := a.engine.Launch(ctx, a.launch)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			a.logger.Debug("failed to close browser", "error", err)
		}
	}()

	bctx, err := b.NewContext(ctx, browser.ContextOptions{
		UserAgent:   desktopUserAgent,
		Viewport:    desktopViewport,
		Locale:      "en-US",
		InitScripts: []string{observerScript},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open browser context: %w", err)
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			a.logger.Debug("failed to close browser context", "error", err)
		}
	}()

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			a.logger.Debug("failed to close page", "error", err)
		}
	}()

	resp, err := page.Goto(ctx, pageURL, browser.GotoOptions{WaitUntil: browser.WaitLoad, Timeout: navigationTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", pageURL, err)
	}
	if resp == nil {
		return nil, ErrNoResponse
	}
	if err := page.WaitForLoadState(ctx, browser.WaitNetworkIdle, networkIdleTimeout); err != nil {
		a.logger.Debug("network did not go idle", "url", pageURL, "error", err)
	}
	if err := sleep(ctx, a.settle); err != nil {
		return nil, err
	}

	var raw rawMetrics
	if err := page.Evaluate(ctx, metricsScript, &raw); err != nil {
		return nil, fmt.Errorf("failed to read performance metrics: %w", err)
	}
	html, err := page.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	metrics := model.LighthouseMetrics{
		FCP:        raw.FCP,
		LCP:        max(raw.LCP, raw.FCP),
		CLS:        raw.CLS,
		TBT:        raw.TBT,
		SpeedIndex: approxSpeedIndex(raw.FCP, raw.LCP),
	}
	p := &pageFacts{
		url:      pageURL,
		status:   resp.Status,
		html:     html,
		analysis: analyzer.Analyze(html, pageURL),
	}
	result := categoryScores(p, metrics)

	a.logger.Info("performance audit finished",
		"url", pageURL, "performance", result.Performance,
		"accessibility", result.Accessibility, "seo", result.SEO)
	return result, nil
}

// approxSpeedIndex estimates the speed index as the midpoint between first
// and largest contentful paint, the window in which the viewport fills.
func approxSpeedIndex(fcp, lcp float64) float64 {
	if lcp <= fcp {
		return fcp
	}
	return (fcp + lcp) / 2
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
