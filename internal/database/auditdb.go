package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/siteaudit/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "siteaudit.db"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02 15:04:05.000000"

// AuditDB provides SQLite-based storage for audit reports.
type AuditDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures AuditDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an AuditDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*AuditDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &AuditDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Path returns the database file path.
func (adb *AuditDB) Path() string {
	return adb.dbPath
}

// Close closes the database connection.
func (adb *AuditDB) Close() error {
	return adb.db.Close()
}

func (adb *AuditDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audits (
		id TEXT PRIMARY KEY,
		site_url TEXT NOT NULL,
		status TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		pages_analyzed INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		warnings INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audits_site ON audits(site_url);
	CREATE INDEX IF NOT EXISTS idx_audits_started ON audits(started_at);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveAudit stores report, replacing an earlier version with the same ID.
func (adb *AuditDB) SaveAudit(ctx context.Context, report *model.AuditReport) error {
	if report.ID == "" {
		return errors.New("audit report has no id")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	var completedAt sql.NullString
	if !report.CompletedAt.IsZero() {
		completedAt = sql.NullString{String: formatTime(report.CompletedAt), Valid: true}
	}

	query := `
	INSERT INTO audits (id, site_url, status, score, pages_analyzed, errors, warnings, started_at, completed_at, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		score = excluded.score,
		pages_analyzed = excluded.pages_analyzed,
		errors = excluded.errors,
		warnings = excluded.warnings,
		completed_at = excluded.completed_at,
		report_json = excluded.report_json
	`

	_, err = adb.db.ExecContext(ctx, query,
		report.ID,
		report.URL,
		string(report.Status),
		report.Score,
		report.PagesAnalyzed,
		report.Errors,
		report.Warnings,
		formatTime(report.StartedAt),
		completedAt,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit: %w", err)
	}

	return nil
}

// LatestAudit returns the most recent audit of siteURL, or nil when the
// site was never audited.
func (adb *AuditDB) LatestAudit(ctx context.Context, siteURL string) (*model.AuditReport, error) {
	query := `
	SELECT report_json FROM audits
	WHERE site_url = ?
	ORDER BY started_at DESC
	LIMIT 1
	`
	return adb.queryReport(ctx, query, siteURL)
}

// RecentAudit returns the newest complete audit of siteURL that finished
// within maxAge, or nil when there is none.
func (adb *AuditDB) RecentAudit(ctx context.Context, siteURL string, maxAge time.Duration) (*model.AuditReport, error) {
	query := `
	SELECT report_json FROM audits
	WHERE site_url = ? AND status = ? AND completed_at >= ?
	ORDER BY completed_at DESC
	LIMIT 1
	`
	cutoff := formatTime(time.Now().Add(-maxAge))
	return adb.queryReport(ctx, query, siteURL, string(model.AuditStatusComplete), cutoff)
}

// AuditByID returns the audit with the given ID, or nil when not found.
func (adb *AuditDB) AuditByID(ctx context.Context, id string) (*model.AuditReport, error) {
	return adb.queryReport(ctx, `SELECT report_json FROM audits WHERE id = ?`, id)
}

func (adb *AuditDB) queryReport(ctx context.Context, query string, args ...any) (*model.AuditReport, error) {
	var reportJSON string
	err := adb.db.QueryRowContext(ctx, query, args...).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit: %w", err)
	}

	var report model.AuditReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ListSites returns every audited site URL in alphabetical order.
func (adb *AuditDB) ListSites(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT site_url FROM audits
	ORDER BY site_url
	`

	rows, err := adb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// AuditSummary is the stored summary of one audit, without its pages.
type AuditSummary struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        model.AuditStatus `json:"status"`
	Score         int               `json:"score"`
	PagesAnalyzed int               `json:"pagesAnalyzed"`
	Errors        int               `json:"errors"`
	Warnings      int               `json:"warnings"`
	StartedAt     time.Time         `json:"startedAt"`
	CompletedAt   time.Time         `json:"completedAt,omitzero"`
}

// AuditHistory returns the summaries of all audits of siteURL, newest first.
func (adb *AuditDB) AuditHistory(ctx context.Context, siteURL string) ([]AuditSummary, error) {
	query := `
	SELECT id, site_url, status, score, pages_analyzed, errors, warnings, started_at, completed_at
	FROM audits
	WHERE site_url = ?
	ORDER BY started_at DESC
	`

	rows, err := adb.db.QueryContext(ctx, query, siteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}
	defer rows.Close()

	var results []AuditSummary
	for rows.Next() {
		var (
			s           AuditSummary
			status      string
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.URL, &status, &s.Score, &s.PagesAnalyzed,
			&s.Errors, &s.Warnings, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit summary: %w", err)
		}
		s.Status = model.AuditStatus(status)
		s.StartedAt = parseTimestamp(startedAt)
		if completedAt.Valid {
			s.CompletedAt = parseTimestamp(completedAt.String)
		}
		results = append(results, s)
	}

	return results, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// parseTimestamp attempts to parse a stored timestamp. Times are stored in
// UTC; an unparsable value yields the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
