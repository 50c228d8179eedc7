// Package reconcile implements the reconcile subcommand.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citizenbirds/birdlist/internal/app"
	"github.com/citizenbirds/birdlist/internal/buildinfo"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/reconcile"
)

// Command returns the reconcile subcommand, which prints the species list
// of one project as JSON.
func Command(build *buildinfo.Context) *cobra.Command {
	var (
		compact bool
		user    string
	)

	cmd := &cobra.Command{
		Use:   "reconcile <project-id>",
		Short: "Print the reconciled species list of a project",
		Long: `Fetch the species list of an iNaturalist project. For the configured
full-region project the list is merged with recent eBird sightings.
With --user the list is narrowed to one observer and never merged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.FromGlobal(cmd.Context(), build)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := run(cmd.Context(), a, args[0], user)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", args[0], err)
			}
			if result.SecondaryErr != nil {
				a.Log.Warn("eBird unavailable, printing iNaturalist records only", logger.Error(result.SecondaryErr))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "Print JSON without indentation")
	cmd.Flags().StringVar(&user, "user", "", "Only species observed by this iNaturalist login")
	return cmd
}

func run(ctx context.Context, a *app.App, projectID, username string) (*reconcile.Result, error) {
	if username == "" {
		return a.Reconciler.Reconcile(ctx, projectID)
	}
	id, err := a.INat.UserID(ctx, username)
	if err != nil {
		return nil, err
	}
	return a.Reconciler.ReconcileUser(ctx, projectID, id)
}
