package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/siteaudit/internal/config"
)

//go:embed templates/siteaudit.yaml
var configTemplate []byte

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Init writes a commented configuration file with default ignore patterns and
examples of per-host settings (page budget, cookies, headers, follow patterns).

By default the file is .siteaudit in the current directory. With --global it
is config.yaml in the user configuration directory, which audit reads when
neither the current nor the home directory has a .siteaudit file.

Examples:
  # Create .siteaudit in current directory
  siteaudit init

  # Create the per-user configuration
  siteaudit init --global

  # Print the template instead of writing it
  siteaudit init --stdout > staging.yaml`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().Bool("global", false,
		"Write to the user configuration directory instead of --output")
	cmd.Flags().Bool("stdout", false,
		"Print the template to stdout")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.MarkFlagsMutuallyExclusive("output", "global", "stdout")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	outputPath, err := flags.GetString("output")
	if err != nil {
		return err
	}
	force := boolFlag(cmd, "force")
	out := cmd.OutOrStdout()

	switch {
	case boolFlag(cmd, "stdout"):
		_, err := out.Write(configTemplate)
		return err
	case boolFlag(cmd, "global"):
		outputPath = filepath.Join(config.XDGConfigDir(), "config.yaml")
	}

	if err := writeConfigFile(outputPath, force); err != nil {
		return err
	}
	printNextSteps(out, outputPath)
	return nil
}

// writeConfigFile writes the template to path with owner-only permissions,
// since the file is meant to hold cookies and tokens.
func writeConfigFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", path, err)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, configTemplate, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

func printNextSteps(w io.Writer, path string) {
	fmt.Fprintf(w, "Created configuration file: %s\n\n", path)
	fmt.Fprintln(w, "Add an entry under 'sites:' for each host that needs its own settings,")
	fmt.Fprintln(w, "then run 'siteaudit audit <url>'. Use -c to point audit at another file.")
}
