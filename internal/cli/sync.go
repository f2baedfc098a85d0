package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrlokans/campussync/internal/syncer"
)

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync pending offline data now",
		Long: `Sync every pending key of every handler. Without --site all sites
with pending data are synced. Keys synced within the minimum interval are
skipped unless --force is given.`,
		RunE: runSync,
	}
	cmd.Flags().String("site", "", "site to sync (default: all sites)")
	cmd.Flags().String("component", "", "only sync this handler")
	cmd.Flags().Bool("force", false, "ignore the minimum sync interval")
	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	site, _ := cmd.Flags().GetString("site")
	component, _ := cmd.Flags().GetString("component")
	force, _ := cmd.Flags().GetBool("force")

	if component != "" {
		h, ok := app.Handlers.Get(component)
		if !ok {
			return fmt.Errorf("unknown sync handler %q", component)
		}
		s, err := h.RunAll(cmd.Context(), site, force)
		if err != nil {
			return err
		}
		printSummaries(cmd.OutOrStdout(), []syncer.Summary{s})
		return nil
	}

	summaries, err := app.Handlers.RunAll(cmd.Context(), site, force)
	printSummaries(cmd.OutOrStdout(), summaries)
	return err
}

func printSummaries(w io.Writer, summaries []syncer.Summary) {
	for _, s := range summaries {
		switch {
		case len(s.Errors) > 0:
			red.Fprintf(w, "✗ %s", s.Component)
		case len(s.Warnings) > 0:
			yellow.Fprintf(w, "! %s", s.Component)
		default:
			green.Fprintf(w, "✓ %s", s.Component)
		}
		fmt.Fprintf(w, "  synced %d, skipped %d, failed %d\n", s.Synced, s.Skipped, s.Failed)
		for _, warning := range s.Warnings {
			yellow.Fprintf(w, "    warning: %s\n", warning)
		}
		for _, e := range s.Errors {
			red.Fprintf(w, "    error: %s\n", e)
		}
	}
}
