// Package audit implements the crosswalk audit subcommand.
package audit

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/citizenbirds/birdlist/internal/app"
	"github.com/citizenbirds/birdlist/internal/buildinfo"
	"github.com/citizenbirds/birdlist/internal/maintenance"
)

// Command returns the audit subcommand.
func Command(build *buildinfo.Context) *cobra.Command {
	var (
		mode   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Propose crosswalk additions from Wikipedia and Wikidata",
		Long: `Check every species of the full-region project against the crosswalk.

  crossref-a  find eBird codes for taxa without one (chains to crossref-b
              when nothing needs checking)
  crossref-b  find Wikidata items for taxa without one

Proposed tables are written to --output; a summary is printed and sent to
the configured notification URLs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := maintenance.ParseMode(mode)
			if err != nil {
				return err
			}

			a, err := app.FromGlobal(cmd.Context(), build)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if output == "" {
				output = a.Settings.Maintenance.OutputDir
			}
			syncer, err := a.Syncer(output)
			if err != nil {
				return err
			}

			report, err := syncer.Audit(cmd.Context(), m)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(maintenance.ModeCrossrefA), "Audit mode: crossref-a or crossref-b")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Directory for proposed crosswalk files (default maintenance.outputdir)")
	return cmd
}

// printReport writes the summary of report and of every audit chained from it.
func printReport(w io.Writer, report *maintenance.Report) error {
	for r := report; r != nil; r = r.Chained {
		if _, err := fmt.Fprintln(w, maintenance.Summary(r)); err != nil {
			return err
		}
	}
	return nil
}
