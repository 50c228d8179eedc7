package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/citizenbirds/birdlist/cmd/audit"
	"github.com/citizenbirds/birdlist/cmd/reconcile"
	"github.com/citizenbirds/birdlist/cmd/serve"
	"github.com/citizenbirds/birdlist/cmd/user"
	"github.com/citizenbirds/birdlist/internal/buildinfo"
	"github.com/citizenbirds/birdlist/internal/conf"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/telemetry"
)

// RootCommand creates and returns the root command
func RootCommand(build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "birdlist",
		Short:         "Reconciled bird species lists from iNaturalist and eBird",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding flags: %v", err))
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "birdlist %s (built %s)\n", build.GetVersion(), build.GetBuildDate())
		},
	}

	rootCmd.AddCommand(
		reconcile.Command(build),
		audit.Command(build),
		user.Command(build),
		serve.Command(build),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version needs no settings
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(configFile, build)
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		telemetry.Flush(2 * time.Second)
		_ = logger.Global().Flush()
	}

	return rootCmd
}

// initialize loads settings and sets up logging and telemetry before any
// subcommand runs.
func initialize(configFile string, build *buildinfo.Context) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	if err := telemetry.Init(&settings.Sentry, build.GetVersion(), nil); err != nil {
		return err
	}

	central.Module("main").Debug("settings loaded",
		logger.String("version", build.GetVersion()),
		logger.String("datastore", settings.Datastore.Driver))
	return nil
}
