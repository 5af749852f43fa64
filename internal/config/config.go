package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/siteaudit/internal/urlnorm"
)

// Default configuration values.
const (
	// DefaultMaxDepth is how many link hops from the seeds are followed.
	DefaultMaxDepth = 3

	// DefaultMaxPages is the page budget of one site audit.
	DefaultMaxPages = 100

	// MaxDepthLimit and MaxPagesLimit are the largest accepted budgets.
	MaxDepthLimit = 10
	MaxPagesLimit = 1000

	// DefaultAuditTimeout bounds the audit of one site, crawl and
	// performance run included.
	DefaultAuditTimeout = 30 * time.Minute

	// DefaultBatchSize is the number of sites audited at the same time.
	// Every running audit owns a browser process, so this stays small.
	DefaultBatchSize = 2

	// AppName is the application name used for XDG directory paths.
	AppName = "siteaudit"

	// DefaultUserAgent identifies siteaudit in robots.txt and sitemap
	// requests. Page rendering uses rotated browser identities instead.
	DefaultUserAgent = "siteaudit-bot/1.0 (+https://github.com/nao1215/siteaudit)"
)

// Config holds all configuration options for siteaudit.
// It is populated from CLI flags and passed through the application
// explicitly rather than kept in global state.
type Config struct {
	// Targets is the list of site URLs to audit.
	Targets []string

	// MaxDepth is the maximum number of link hops followed from the seeds.
	// Depth 0 audits only the base URL and the sitemap URLs.
	MaxDepth int

	// MaxPages is the maximum number of pages crawled per site.
	MaxPages int

	// AuditTimeout bounds the whole audit of a single site.
	AuditTimeout time.Duration

	// BatchSize is the number of concurrent site audits.
	BatchSize int

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// JSONLogs switches the log output to JSON lines.
	JSONLogs bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .siteaudit is searched in the current directory and then in
	// the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport, MarkdownReport and CSVReport select the report format.
	// At most one may be set; the default is the human-readable text report.
	JSONReport     bool
	MarkdownReport bool
	CSVReport      bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	// Directories are created automatically if they don't exist.
	ReportFile string

	// DBDir is the directory holding the SQLite audit history.
	// Defaults to the XDG data directory (~/.local/share/siteaudit on Linux).
	DBDir string

	// SaveToDB stores finished audits in the history database.
	SaveToDB bool

	// ReuseWithin, when positive, reuses a completed audit of the same
	// site that finished within this window instead of crawling again.
	// It needs the history database.
	ReuseWithin time.Duration

	// ChromePath overrides the Chrome or Chromium executable.
	// Empty means the browser is looked up on PATH.
	ChromePath string

	// ShowBrowser runs the browser with a visible window.
	ShowBrowser bool

	// ProxyAddress is an optional SOCKS5 proxy ("host:port") used for page
	// rendering as well as robots.txt and sitemap requests.
	ProxyAddress string

	// SkipPerformance disables the lab performance audit.
	SkipPerformance bool

	// MetricsAddr, when set, serves Prometheus metrics on this address
	// for the lifetime of the command.
	MetricsAddr string

	// UserAgent is sent with robots.txt and sitemap requests.
	UserAgent string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxDepth:     DefaultMaxDepth,
		MaxPages:     DefaultMaxPages,
		AuditTimeout: DefaultAuditTimeout,
		BatchSize:    DefaultBatchSize,
		DBDir:        XDGDataDir(),
		SaveToDB:     true,
		UserAgent:    DefaultUserAgent,
	}
}

// XDGDataDir returns the XDG data directory for siteaudit.
// On Linux: ~/.local/share/siteaudit
// On macOS: ~/Library/Application Support/siteaudit
// On Windows: %LOCALAPPDATA%\siteaudit
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for siteaudit.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, target := range c.Targets {
		if _, err := urlnorm.Normalize(target); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrInvalidTarget, target, err)
		}
	}

	if c.MaxDepth < 0 || c.MaxDepth > MaxDepthLimit {
		return ErrInvalidMaxDepth
	}
	if c.MaxPages < 1 || c.MaxPages > MaxPagesLimit {
		return ErrInvalidMaxPages
	}
	if c.AuditTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	formats := 0
	for _, on := range []bool{c.JSONReport, c.MarkdownReport, c.CSVReport} {
		if on {
			formats++
		}
	}
	if formats > 1 {
		return ErrConflictingReportFormats
	}

	if c.SaveToDB && c.DBDir == "" {
		return ErrNoDBDir
	}
	return nil
}

// Site is the effective configuration for auditing one target.
type Site struct {
	MaxDepth        int
	MaxPages        int
	Headers         map[string]string
	IgnorePatterns  []string
	FollowPatterns  []string
	SkipPerformance bool
}

// ForSite merges the global settings with the config file entry for the
// target's host. Per-site budgets are clamped to the accepted limits.
func (c *Config) ForSite(target string) Site {
	s := Site{
		MaxDepth:        c.MaxDepth,
		MaxPages:        c.MaxPages,
		SkipPerformance: c.SkipPerformance,
	}
	host, err := urlnorm.Host(target)
	if err != nil || c.SiteConfigs == nil {
		return s
	}

	sc := c.SiteConfigs.GetSiteConfig(host)
	if sc.Depth != 0 {
		s.MaxDepth = min(max(sc.Depth, 0), MaxDepthLimit)
	}
	if sc.MaxPages != 0 {
		s.MaxPages = min(max(sc.MaxPages, 1), MaxPagesLimit)
	}
	s.Headers = sc.RequestHeaders()
	s.IgnorePatterns = sc.IgnorePatterns
	s.FollowPatterns = sc.FollowPatterns
	s.SkipPerformance = s.SkipPerformance || sc.SkipPerformance
	return s
}
