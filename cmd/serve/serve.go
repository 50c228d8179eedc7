// Package serve implements the HTTP API subcommand.
package serve

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/citizenbirds/birdlist/internal/api"
	"github.com/citizenbirds/birdlist/internal/app"
	"github.com/citizenbirds/birdlist/internal/buildinfo"
)

// Command returns the serve subcommand.
func Command(build *buildinfo.Context) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reconciled species lists over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.FromGlobal(cmd.Context(), build)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go a.Cache.RunSweeper(ctx, a.Settings.Cache.TTL)

			config := api.ConfigFromSettings(a.Settings)
			if listen != "" {
				config.Listen = listen
			}

			server, err := api.New(config, a.Reconciler,
				api.WithLogger(a.Log.Module("api")),
				api.WithMetrics(a.Metrics),
				api.WithUsers(a.INat),
				api.WithCache(a.Cache),
			)
			if err != nil {
				return err
			}
			return server.StartWithGracefulShutdown()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Address to bind (default webserver.listen)")
	return cmd
}
