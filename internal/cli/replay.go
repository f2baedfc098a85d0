package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Send queued mutations of a site",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			site := siteFlag(cmd, app)
			if site == "" {
				return fmt.Errorf("--site or SITE_ID is required")
			}

			res, err := app.Mutations.ReplayAll(cmd.Context(), site)
			out := cmd.OutOrStdout()
			if res != nil {
				green.Fprintf(out, "sent %d", res.Sent)
				fmt.Fprintf(out, ", duplicates %d, ", res.Duplicates)
				yellow.Fprintf(out, "rejected %d", res.Rejected)
				fmt.Fprint(out, ", ")
				red.Fprintf(out, "deferred %d\n", res.Deferred)
				for _, w := range res.Warnings {
					yellow.Fprintf(out, "  warning: %s\n", w)
				}
			}
			return err
		},
	}
	cmd.Flags().String("site", "", "site whose queue is replayed (default: SITE_ID)")
	return cmd
}
