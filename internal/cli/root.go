// Package cli implements the campussync command line.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mrlokans/campussync/internal/config"
	"github.com/mrlokans/campussync/internal/entrypoint"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// NewRootCommand builds the command tree. Configuration comes from the
// environment, as for the server.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "campussync",
		Short:         "Offline sync and download engine for a learning platform",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			entrypoint.SetupLogging(config.NewConfig().Global)
		},
	}

	root.AddCommand(
		newServeCommand(version),
		newSyncCommand(),
		newReplayCommand(),
		newPendingCommand(),
		newStatusCommand(),
	)
	return root
}

func newServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, task queue and control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return entrypoint.Run(config.NewConfig(), version)
		},
	}
}

// openApp wires the engine for a one-shot command.
func openApp() (*entrypoint.App, error) {
	return entrypoint.NewApp(config.NewConfig())
}

// siteFlag falls back to SITE_ID when --site is not given.
func siteFlag(cmd *cobra.Command, app *entrypoint.App) string {
	site, _ := cmd.Flags().GetString("site")
	if site == "" {
		site = app.Config.Site.ID
	}
	return site
}
