package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/database"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/report"
	"github.com/nao1215/siteaudit/internal/urlnorm"
)

// Directions of a score change between two audits.
const (
	directionImproved  = "improved"
	directionWorsened  = "worsened"
	directionUnchanged = "unchanged"
)

// errNoHistory is returned when a site has no stored audits.
var errNoHistory = errors.New("no audit history")

// NewHistoryCmd creates the history command.
// It reads the audits stored by 'siteaudit audit'.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [site-url]",
		Short: "Show and compare past audits",
		Long: `History lists the audits stored in the local database and compares them.

Without flags it lists every audit of the given site, newest first.
With --compare it shows how the latest audit differs from the previous one:
- the change of health score, errors and warnings
- issues that appeared since the previous audit
- issues that are gone

Examples:
  # List all audited sites
  siteaudit history --list-sites

  # List the audits of a site
  siteaudit history https://example.com

  # Show a stored report
  siteaudit history --show 3f2b0c9e-... https://example.com

  # Compare the latest two audits
  siteaudit history --compare https://example.com

  # Compare the latest audit with a specific one
  siteaudit history --compare --with 3f2b0c9e-... https://example.com

  # Output in JSON format
  siteaudit history --json https://example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-sites", "L", false,
		"List all audited sites in the database")
	cmd.Flags().String("show", "",
		"Print the stored report with this audit ID")
	cmd.Flags().Bool("compare", false,
		"Compare the latest audit with the previous one")
	cmd.Flags().String("with", "",
		"Compare the latest audit with this audit ID instead of the previous one")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the comparison in Markdown format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// historyOptions are the parsed flags of the history command.
type historyOptions struct {
	site      string
	listSites bool
	showID    string
	compare   bool
	withID    string
	json      bool
	markdown  bool
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	var opts historyOptions
	var err error
	if opts.listSites, err = flags.GetBool("list-sites"); err != nil {
		return err
	}
	if opts.showID, err = flags.GetString("show"); err != nil {
		return err
	}
	if opts.compare, err = flags.GetBool("compare"); err != nil {
		return err
	}
	if opts.withID, err = flags.GetString("with"); err != nil {
		return err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if opts.withID != "" {
		opts.compare = true
	}
	if !opts.listSites && opts.showID == "" {
		if len(args) == 0 {
			return errors.New("site URL is required (use --list-sites to see audited sites)")
		}
		opts.site, err = urlnorm.Normalize(args[0])
		if err != nil {
			return fmt.Errorf("invalid site URL: %w", err)
		}
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runHistory(cmd.Context(), db, opts, cmd.OutOrStdout())
}

// runHistory dispatches to the listing, show or comparison mode.
func runHistory(ctx context.Context, db *database.AuditDB, opts historyOptions, out io.Writer) error {
	switch {
	case opts.listSites:
		return listSites(ctx, db, opts.json, out)
	case opts.showID != "":
		return showAudit(ctx, db, opts.showID, opts.json, out)
	case opts.compare:
		return runComparison(ctx, db, opts, out)
	default:
		return listHistory(ctx, db, opts.site, opts.json, out)
	}
}

// listSites lists all sites that have audits in the database.
func listSites(ctx context.Context, db *database.AuditDB, asJSON bool, out io.Writer) error {
	sites, err := db.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	if asJSON {
		if sites == nil {
			sites = []string{}
		}
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(sites)
		return err
	}

	if len(sites) == 0 {
		fmt.Fprintln(out, "No audited sites found in the database.")
		fmt.Fprintln(out, "\nUse 'siteaudit audit <url>' to audit a site.")
		return nil
	}

	fmt.Fprintf(out, "Audited sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  * %s\n", site)
	}
	fmt.Fprintln(out, "\nUse 'siteaudit history <url>' to see the audits of a site.")
	return nil
}

// listHistory lists the audits of one site, newest first.
func listHistory(ctx context.Context, db *database.AuditDB, site string, asJSON bool, out io.Writer) error {
	summaries, err := db.AuditHistory(ctx, site)
	if err != nil {
		return fmt.Errorf("failed to get audit history: %w", err)
	}

	if asJSON {
		if summaries == nil {
			summaries = []database.AuditSummary{}
		}
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(summaries)
		return err
	}

	if len(summaries) == 0 {
		fmt.Fprintf(out, "No audit history found for %s\n", site)
		fmt.Fprintln(out, "\nUse 'siteaudit audit' to audit this site.")
		return nil
	}

	fmt.Fprintf(out, "Audit history for %s (%d audits):\n\n", site, len(summaries))
	fmt.Fprintf(out, "  %-36s  %-19s  %-8s  %5s  %5s  %6s  %8s\n",
		"ID", "Date", "Status", "Score", "Pages", "Errors", "Warnings")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 101))
	for _, s := range summaries {
		fmt.Fprintf(out, "  %-36s  %-19s  %-8s  %5d  %5d  %6d  %8d\n",
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Status,
			s.Score,
			s.PagesAnalyzed,
			s.Errors,
			s.Warnings,
		)
	}

	fmt.Fprintln(out, "\nUse 'siteaudit history --compare <url>' to compare the latest two audits.")
	fmt.Fprintln(out, "Use 'siteaudit history --show <id>' to print a stored report.")
	return nil
}

// showAudit prints one stored report.
func showAudit(ctx context.Context, db *database.AuditDB, id string, asJSON bool, out io.Writer) error {
	r, err := db.AuditByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get audit %s: %w", id, err)
	}
	if r == nil {
		return fmt.Errorf("audit %s not found", id)
	}

	var w report.Writer = report.NewSimpleWriter(out)
	if asJSON {
		w = report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	}
	_, err = w.Write(r)
	return err
}

// runComparison compares the latest audit of a site with an older one.
func runComparison(ctx context.Context, db *database.AuditDB, opts historyOptions, out io.Writer) error {
	summaries, err := db.AuditHistory(ctx, opts.site)
	if err != nil {
		return fmt.Errorf("failed to get audit history: %w", err)
	}
	if len(summaries) == 0 {
		return fmt.Errorf("%w for %s", errNoHistory, opts.site)
	}
	if len(summaries) < 2 && opts.withID == "" {
		return fmt.Errorf("at least 2 audits are required for comparison (found %d)", len(summaries))
	}

	current, err := loadAudit(ctx, db, summaries[0].ID)
	if err != nil {
		return err
	}

	previousID := opts.withID
	if previousID == "" {
		previousID = summaries[1].ID
	}
	if previousID == current.ID {
		return fmt.Errorf("audit %s is the latest audit; choose an older one", previousID)
	}
	previous, err := loadAudit(ctx, db, previousID)
	if err != nil {
		return err
	}
	if previous.URL != current.URL {
		return fmt.Errorf("audit %s belongs to %s, not %s", previousID, previous.URL, current.URL)
	}

	result := compareAudits(previous, current)
	switch {
	case opts.json:
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(result)
		return err
	case opts.markdown:
		return outputComparisonMarkdown(result, out)
	default:
		outputComparisonText(result, out)
		return nil
	}
}

func loadAudit(ctx context.Context, db *database.AuditDB, id string) (*model.AuditReport, error) {
	r, err := db.AuditByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit %s: %w", id, err)
	}
	if r == nil {
		return nil, fmt.Errorf("audit %s not found", id)
	}
	return r, nil
}

// ComparisonResult holds the difference between two audits of one site.
type ComparisonResult struct {
	Site     string        `json:"site"`
	Previous AuditSnapshot `json:"previous"`
	Current  AuditSnapshot `json:"current"`

	ScoreDelta   int `json:"scoreDelta"`
	ErrorDelta   int `json:"errorDelta"`
	WarningDelta int `json:"warningDelta"`

	// Direction is "improved", "worsened" or "unchanged", by score.
	Direction string `json:"direction"`

	NewIssues      []IssueChange `json:"newIssues,omitempty"`
	ResolvedIssues []IssueChange `json:"resolvedIssues,omitempty"`

	// UnchangedCount is the number of issue messages present in both audits.
	UnchangedCount int `json:"unchangedCount"`
}

// AuditSnapshot is the headline of one audit in a comparison.
type AuditSnapshot struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"startedAt"`
	Score         int       `json:"score"`
	PagesAnalyzed int       `json:"pagesAnalyzed"`
	Errors        int       `json:"errors"`
	Warnings      int       `json:"warnings"`
}

// IssueChange is an issue message that appeared or disappeared.
type IssueChange struct {
	Message  string         `json:"message"`
	Severity model.Severity `json:"severity"`
	Pages    int            `json:"pages"`
}

func snapshot(r *model.AuditReport) AuditSnapshot {
	return AuditSnapshot{
		ID:            r.ID,
		StartedAt:     r.StartedAt,
		Score:         r.Score,
		PagesAnalyzed: r.PagesAnalyzed,
		Errors:        r.Errors,
		Warnings:      r.Warnings,
	}
}

// compareAudits matches issues by message. Both lists keep the order of
// model.AggregateIssues, most frequent first.
func compareAudits(previous, current *model.AuditReport) *ComparisonResult {
	result := &ComparisonResult{
		Site:         current.URL,
		Previous:     snapshot(previous),
		Current:      snapshot(current),
		ScoreDelta:   current.Score - previous.Score,
		ErrorDelta:   current.Errors - previous.Errors,
		WarningDelta: current.Warnings - previous.Warnings,
	}

	switch {
	case result.ScoreDelta > 0:
		result.Direction = directionImproved
	case result.ScoreDelta < 0:
		result.Direction = directionWorsened
	default:
		result.Direction = directionUnchanged
	}

	prevIssues := model.AggregateIssues(previous.Pages)
	currIssues := model.AggregateIssues(current.Pages)

	seen := make(map[string]bool, len(prevIssues))
	for _, agg := range prevIssues {
		seen[agg.Message] = true
	}
	present := make(map[string]bool, len(currIssues))
	for _, agg := range currIssues {
		present[agg.Message] = true
		if seen[agg.Message] {
			result.UnchangedCount++
			continue
		}
		result.NewIssues = append(result.NewIssues, IssueChange{Message: agg.Message, Severity: agg.Severity, Pages: agg.Count})
	}
	for _, agg := range prevIssues {
		if !present[agg.Message] {
			result.ResolvedIssues = append(result.ResolvedIssues, IssueChange{Message: agg.Message, Severity: agg.Severity, Pages: agg.Count})
		}
	}

	return result
}

// outputComparisonText writes the comparison in human-readable form.
func outputComparisonText(result *ComparisonResult, out io.Writer) {
	fmt.Fprintf(out, "Audit Comparison: %s\n", result.Site)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nHealth: %s\n", formatDirection(result.Direction))
	fmt.Fprintf(out, "\nPrevious audit: %s  (%s)\n", result.Previous.StartedAt.Local().Format("2006-01-02 15:04:05"), result.Previous.ID)
	fmt.Fprintf(out, "Current audit:  %s  (%s)\n", result.Current.StartedAt.Local().Format("2006-01-02 15:04:05"), result.Current.ID)

	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	for _, row := range comparisonRows(result) {
		fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %-10s\n", row[0], row[1], row[2], row[3])
	}

	if len(result.NewIssues) > 0 {
		fmt.Fprintf(out, "\nNew Issues (%d):\n", len(result.NewIssues))
		for _, c := range result.NewIssues {
			fmt.Fprintf(out, "  [+] [%s] %s (%d page(s))\n", c.Severity, c.Message, c.Pages)
		}
	}
	if len(result.ResolvedIssues) > 0 {
		fmt.Fprintf(out, "\nResolved Issues (%d):\n", len(result.ResolvedIssues))
		for _, c := range result.ResolvedIssues {
			fmt.Fprintf(out, "  [-] [%s] %s\n", c.Severity, c.Message)
		}
	}
	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d issue(s)\n", result.UnchangedCount)
	}
}

// outputComparisonMarkdown writes the comparison as a Markdown document.
func outputComparisonMarkdown(result *ComparisonResult, out io.Writer) error {
	md := markdown.NewMarkdown(out)
	md.H1("Audit Comparison: " + result.Site)
	md.PlainText("")
	md.PlainTextf("**Health:** %s", formatDirection(result.Direction))
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows:   comparisonRows(result),
	})
	md.PlainText("")

	if len(result.NewIssues) > 0 {
		md.H2(fmt.Sprintf("New Issues (%d)", len(result.NewIssues)))
		md.PlainText("")
		items := make([]string, len(result.NewIssues))
		for i, c := range result.NewIssues {
			items[i] = fmt.Sprintf("**[%s]** %s (%d page(s))", c.Severity, c.Message, c.Pages)
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	if len(result.ResolvedIssues) > 0 {
		md.H2(fmt.Sprintf("Resolved Issues (%d)", len(result.ResolvedIssues)))
		md.PlainText("")
		items := make([]string, len(result.ResolvedIssues))
		for i, c := range result.ResolvedIssues {
			items[i] = fmt.Sprintf("~~**[%s]** %s~~", c.Severity, c.Message)
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	if result.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText("")
		md.PlainTextf("*%d issue(s) unchanged*", result.UnchangedCount)
	}

	return md.Build()
}

// comparisonRows are the summary rows shared by the text and Markdown output.
func comparisonRows(result *ComparisonResult) [][]string {
	p, c := result.Previous, result.Current
	return [][]string{
		{"Score", strconv.Itoa(p.Score), strconv.Itoa(c.Score), formatDelta(result.ScoreDelta)},
		{"Errors", strconv.Itoa(p.Errors), strconv.Itoa(c.Errors), formatDelta(result.ErrorDelta)},
		{"Warnings", strconv.Itoa(p.Warnings), strconv.Itoa(c.Warnings), formatDelta(result.WarningDelta)},
		{"Pages", strconv.Itoa(p.PagesAnalyzed), strconv.Itoa(c.PagesAnalyzed), formatDelta(c.PagesAnalyzed - p.PagesAnalyzed)},
	}
}

// formatDirection formats the change direction for display.
func formatDirection(direction string) string {
	switch direction {
	case directionImproved:
		return "IMPROVED (score increased)"
	case directionWorsened:
		return "WORSENED (score decreased)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
