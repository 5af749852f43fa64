package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/siteaudit/internal/log"
)

// NewRootCmd creates the root command for siteaudit.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siteaudit",
		Short: "Technical SEO auditor for websites",
		Long: `siteaudit crawls a website with a headless Chrome browser, the way a visitor
would see it, and checks every page for technical SEO problems: titles and
meta descriptions, heading structure, image alt text, structured data,
accessibility signals and more.

Each audit ends with a 0-100 health score, the most frequent issues and
rule-based suggestions. Finished audits are kept in a local history so that
later runs can be compared.

Chrome or Chromium must be installed. Use --chrome-path when it is not on PATH.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")

	cmd.AddCommand(NewAuditCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// boolFlag reads a local or persistent boolean flag. Unknown flags are false.
func boolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false
	}
	return v
}

// newLogger builds the secure logger selected by --verbose and --log-json.
// Logs go to stderr so that reports on stdout stay machine readable.
func newLogger(cmd *cobra.Command) *slog.Logger {
	format := log.FormatText
	if boolFlag(cmd, "log-json") {
		format = log.FormatJSON
	}
	return log.New(cmd.ErrOrStderr(), format, boolFlag(cmd, "verbose"))
}
