package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/siteaudit/internal/browser"
	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/crawler"
	"github.com/nao1215/siteaudit/internal/database"
	"github.com/nao1215/siteaudit/internal/metrics"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/perf"
	"github.com/nao1215/siteaudit/internal/pipeline"
	"github.com/nao1215/siteaudit/internal/report"
	"github.com/nao1215/siteaudit/internal/robots"
	"github.com/nao1215/siteaudit/internal/sitemap"
	"github.com/nao1215/siteaudit/internal/urlnorm"
	"github.com/nao1215/siteaudit/internal/webfetch"
)

// httpClientTimeout bounds robots.txt and sitemap requests.
const httpClientTimeout = 60 * time.Second

// CSV flag values.
const (
	csvPages  = "pages"
	csvIssues = "issues"
)

// NewAuditCmd creates the audit command.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [site-url]...",
		Short: "Audit one or more websites",
		Long: `Audit crawls each site in a headless browser and reports its technical SEO health.

For every site, audit:
- reads robots.txt and the sitemap to find pages
- renders up to --max-pages pages, following links up to --depth hops
- checks titles, descriptions, headings, images, links and structured data
- measures the start page with a lab performance audit
- computes a 0-100 health score and suggests what to fix first

Finished audits are saved to the local history unless --no-save is given.

Examples:
  # Audit a single site
  siteaudit audit https://example.com

  # Audit two sites, at most 20 pages each, one at a time
  siteaudit audit -p 20 -b 1 https://example.com https://example.org

  # Write a Markdown report to a file
  siteaudit audit --markdown -o reports/example.md https://example.com

  # Export every issue as CSV
  siteaudit audit --csv=issues -o issues.csv https://example.com

  # Reuse an audit that finished within the last day
  siteaudit audit --reuse-within 24h https://example.com

Configuration file (.siteaudit) example:
  defaults:
    ignorePatterns: ["/logout*", "*.pdf"]
  sites:
    example.com:
      maxPages: 50
      cookie: "session_id=abc123"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAuditCmd,
	}

	// Crawl budget flags
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum number of link hops followed from the start page (0-10)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages crawled per site (1-1000)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultAuditTimeout,
		"Time limit for the audit of one site")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of sites audited at the same time")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .siteaudit in current or home directory)")

	// Browser flags
	cmd.Flags().String("chrome-path", "",
		"Chrome or Chromium executable (default: looked up on PATH)")
	cmd.Flags().Bool("show-browser", false,
		"Show the browser window instead of running headless")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (host:port) for all requests")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent for robots.txt and sitemap requests")
	cmd.Flags().Bool("no-performance", false,
		"Skip the lab performance audit")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report")
	cmd.Flags().String("csv", "",
		"Output CSV with one row per page (pages) or per issue (issues)")
	cmd.Flags().Lookup("csv").NoOptDefVal = csvPages
	cmd.Flags().StringP("output", "o", "",
		"Write the report to this file (creates directories if needed); a text summary still goes to stdout")

	// History flags
	cmd.Flags().Bool("no-save", false,
		"Do not save the audit to the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	cmd.Flags().Duration("reuse-within", 0,
		"Reuse a completed audit of the same site that finished within this duration")

	// Observability
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g. :9090) while auditing")

	return cmd
}

// auditEnv holds what an audit run needs besides its configuration.
type auditEnv struct {
	engine  browser.Engine
	out     io.Writer
	errOut  io.Writer
	logger  *slog.Logger
	csvMode report.CSVMode

	// crawlerOpts are appended to the options of every crawler.
	crawlerOpts []crawler.Option
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	csvValue, err := cmd.Flags().GetString("csv")
	if err != nil {
		return err
	}
	csvMode, err := parseCSVMode(csvValue)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &auditEnv{
		engine:  browser.NewChromeEngine(logger),
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		logger:  logger,
		csvMode: csvMode,
	}
	return runAudit(ctx, cfg, env)
}

// parseCSVMode maps the --csv flag value to a report mode.
func parseCSVMode(value string) (report.CSVMode, error) {
	switch value {
	case "", csvPages:
		return report.CSVPages, nil
	case csvIssues:
		return report.CSVIssues, nil
	default:
		return report.CSVPages, fmt.Errorf("invalid --csv value %q: use %q or %q", value, csvPages, csvIssues)
	}
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.AuditTimeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.ChromePath, err = flags.GetString("chrome-path"); err != nil {
		return nil, err
	}
	if cfg.ShowBrowser, err = flags.GetBool("show-browser"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.SkipPerformance, err = flags.GetBool("no-performance"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	csvValue, err := flags.GetString("csv")
	if err != nil {
		return nil, err
	}
	cfg.CSVReport = csvValue != ""
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.ReuseWithin, err = flags.GetDuration("reuse-within"); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	cfg.Verbose = boolFlag(cmd, "verbose")
	cfg.JSONLogs = boolFlag(cmd, "log-json")

	// An explicitly named config file must exist; the default locations
	// are optional.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	cfg.Targets = args
	return cfg, nil
}

// runAudit audits every target of cfg and writes one report per site.
// It fails when any audit failed so that scripts can rely on the exit code.
func runAudit(ctx context.Context, cfg *config.Config, env *auditEnv) error {
	logger := env.logger

	targets := make([]string, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		normalized, err := urlnorm.Normalize(target)
		if err != nil {
			return fmt.Errorf("invalid site URL %q: %w", target, err)
		}
		targets = append(targets, normalized)
	}

	logger.Info("starting audit",
		"targets", targets,
		"batchSize", cfg.BatchSize,
		"maxDepth", cfg.MaxDepth,
		"maxPages", cfg.MaxPages,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.AuditDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	output, closeOutput, err := openOutput(cfg.ReportFile, env.out)
	if err != nil {
		return err
	}
	defer closeOutput()
	writer := newReportWriter(cfg, env.csvMode, output)
	if cfg.ReportFile != "" {
		// The terminal keeps its summary when the report goes to a file.
		writer = report.NewMultiWriter(writer, report.NewSimpleWriter(env.out))
	}

	var mu sync.Mutex
	pending := make([]string, 0, len(targets))
	for _, target := range targets {
		cached := recentAudit(ctx, db, target, cfg.ReuseWithin, logger)
		if cached == nil {
			pending = append(pending, target)
			continue
		}
		fmt.Fprintf(env.errOut, "Reusing audit of %s from %s\n",
			target, cached.CompletedAt.Local().Format("2006-01-02 15:04:05"))
		if _, err := writer.Write(cached); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	reg := metrics.New()
	if cfg.MetricsAddr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := reg.Serve(metricsCtx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	factory, err := newPipelineFactory(cfg, env, reg, &mu)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.errOut, "Auditing %d site(s) (concurrency: %d)...\n", len(pending), cfg.BatchSize)
	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	done, failed := 0, 0
	batchErr := bp.ProcessBatchWithCallback(ctx, pending, func(r *model.AuditReport, _ int) {
		mu.Lock()
		defer mu.Unlock()

		done++
		if r.Status != model.AuditStatusComplete {
			failed++
		}
		fmt.Fprintf(env.errOut, "[%d/%d] %s: %s (score %d, %d pages)\n",
			done, len(pending), r.URL, r.Status, r.Score, r.PagesAnalyzed)

		if _, err := writer.Write(r); err != nil {
			logger.Error("report failed", "url", r.URL, "error", err)
		}

		// An interrupted audit is still worth keeping.
		if err := saveAuditReport(context.WithoutCancel(ctx), db, r, logger); err != nil {
			logger.Error("failed to save audit report", "url", r.URL, "error", err)
		}
	})

	fmt.Fprintf(env.errOut, "Finished in %s\n", time.Since(startTime).Round(time.Millisecond))

	if batchErr != nil {
		return batchErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d audit(s) failed", failed, len(pending))
	}
	return nil
}

// newPipelineFactory wires the shared fetchers and returns a factory that
// builds one audit pipeline per site. Progress lines are serialized with mu.
func newPipelineFactory(cfg *config.Config, env *auditEnv, reg *metrics.Registry, mu *sync.Mutex) (pipeline.Factory, error) {
	logger := env.logger

	client, err := webfetch.NewHTTPClient(cfg.ProxyAddress, httpClientTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	fetcher := webfetch.New(client,
		webfetch.WithUserAgent(cfg.UserAgent),
		webfetch.WithLogger(logger),
	)
	rules := robots.NewFetcher(fetcher, logger)
	seeds := sitemap.NewResolver(fetcher,
		sitemap.WithLogger(logger),
		sitemap.WithDiscoveredHook(reg.SitemapDiscovered),
	)

	launch := browser.LaunchOptions{
		Headless:    !cfg.ShowBrowser,
		ExecPath:    cfg.ChromePath,
		ProxyServer: cfg.ProxyAddress,
	}

	return func(target string) *pipeline.Pipeline {
		site := cfg.ForSite(target)
		siteLogger := logger.With("site", target)

		crawlerOpts := []crawler.Option{
			crawler.WithLogger(siteLogger),
			crawler.WithLaunchOptions(launch),
			crawler.WithRecorder(reg),
			crawler.WithHeaders(site.Headers),
			crawler.WithIgnorePatterns(site.IgnorePatterns),
			crawler.WithFollowPatterns(site.FollowPatterns),
		}
		c := crawler.New(env.engine, rules, seeds, append(crawlerOpts, env.crawlerOpts...)...)

		// A nil interface, not a nil *perf.Auditor, disables the step.
		var auditor pipeline.PerformanceAuditor
		if !site.SkipPerformance {
			auditor = perf.New(env.engine,
				perf.WithLogger(siteLogger),
				perf.WithLaunchOptions(launch),
			)
		}

		return pipeline.DefaultPipeline(c, auditor,
			progressPrinter(env.errOut, mu, target),
			[]pipeline.Option{
				pipeline.WithLogger(siteLogger),
				pipeline.WithRecorder(reg),
				pipeline.WithTimeout(cfg.AuditTimeout),
			},
			pipeline.WithSite(site),
		)
	}, nil
}

// progressPrinter returns a ProgressFunc that writes one line per change
// of percentage.
func progressPrinter(w io.Writer, mu *sync.Mutex, target string) pipeline.ProgressFunc {
	last := -1
	return func(percent int, message string) {
		mu.Lock()
		defer mu.Unlock()
		if percent == last {
			return
		}
		last = percent
		fmt.Fprintf(w, "  [%3d%%] %s: %s\n", percent, target, message)
	}
}

// recentAudit returns a completed audit of target younger than maxAge, or
// nil when reuse is disabled or nothing qualifies.
func recentAudit(ctx context.Context, db *database.AuditDB, target string, maxAge time.Duration, logger *slog.Logger) *model.AuditReport {
	if db == nil || maxAge <= 0 {
		return nil
	}
	cached, err := db.RecentAudit(ctx, target, maxAge)
	if err != nil {
		logger.Warn("failed to look up recent audit", "url", target, "error", err)
		return nil
	}
	return cached
}

// openOutput returns the report destination: a file created with
// owner-only permissions when path is set, fallback otherwise.
func openOutput(path string, fallback io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // best-effort close after writes
}

// newReportWriter selects the writer for the requested format.
func newReportWriter(cfg *config.Config, csvMode report.CSVMode, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(w, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	case cfg.CSVReport:
		return report.NewCSVWriter(w, csvMode)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}

// saveAuditReport stores the report. A nil db is a no-op.
func saveAuditReport(ctx context.Context, db *database.AuditDB, r *model.AuditReport, logger *slog.Logger) error {
	if db == nil {
		return nil
	}
	if err := db.SaveAudit(ctx, r); err != nil {
		return fmt.Errorf("failed to save audit report: %w", err)
	}
	logger.Info("audit report saved to database", "url", r.URL, "id", r.ID)
	return nil
}
