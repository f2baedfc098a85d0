package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/campussync/internal/database/mutations"
)

func newPendingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List offline data and queued mutations waiting for sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			site := siteFlag(cmd, app)
			out := cmd.OutOrStdout()

			records, err := app.Offline.Pending(site)
			if err != nil {
				return err
			}
			queued, err := app.Mutations.ListPending(site, mutations.Filter{})
			if err != nil {
				return err
			}

			if len(records) == 0 && len(queued) == 0 {
				green.Fprintln(out, "Nothing to sync")
				return nil
			}

			if len(records) > 0 {
				fmt.Fprintf(out, "Offline data (%d):\n", len(records))
				for _, p := range records {
					cyan.Fprintf(out, "  %-24s", p.Component)
					fmt.Fprintf(out, " %s  site=%s course=%s\n", p.Target.Key, p.Target.SiteID, p.CourseID)
				}
			}
			if len(queued) > 0 {
				fmt.Fprintf(out, "Queued mutations (%d):\n", len(queued))
				for _, m := range queued {
					cyan.Fprintf(out, "  %-24s", m.Component)
					fmt.Fprintf(out, " %s  %s  site=%s queued=%s\n", m.EntityID, m.CallName, m.SiteID, m.EnqueuedAt.Format("2006-01-02 15:04"))
				}
			}
			return nil
		},
	}
	cmd.Flags().String("site", "", "site to list (default: SITE_ID, empty lists all sites)")
	return cmd
}
