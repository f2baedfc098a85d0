package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/packages"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the download status of a package",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			site := siteFlag(cmd, app)
			component, _ := cmd.Flags().GetString("component")
			id, _ := cmd.Flags().GetString("id")
			course, _ := cmd.Flags().GetString("course")
			refresh, _ := cmd.Flags().GetBool("refresh")
			if component == "" || id == "" {
				return fmt.Errorf("--component and --id are required")
			}
			ref := packages.Ref{Component: component, ComponentID: id}

			status, err := app.Packages.GetStatus(cmd.Context(), site, ref, course, !refresh)
			if err != nil {
				return err
			}
			entry, err := app.Packages.Entry(site, ref)
			if err != nil {
				return err
			}
			printPackage(cmd.OutOrStdout(), ref, status, entry)
			return nil
		},
	}
	cmd.Flags().String("site", "", "site of the package (default: SITE_ID)")
	cmd.Flags().String("component", "", "component name, e.g. mod_scorm")
	cmd.Flags().String("id", "", "component instance id")
	cmd.Flags().String("course", "", "course the package belongs to")
	cmd.Flags().Bool("refresh", false, "check the server instead of the cached status")
	return cmd
}

func statusColor(s entities.PackageStatus) *color.Color {
	switch s {
	case entities.PackageDownloaded:
		return green
	case entities.PackageOutdated, entities.PackageDownloading:
		return yellow
	default:
		return red
	}
}

func printPackage(w io.Writer, ref packages.Ref, status entities.PackageStatus, entry *entities.PackageEntry) {
	fmt.Fprintf(w, "%s: ", ref)
	statusColor(status).Fprintln(w, status)
	if entry == nil {
		return
	}
	if entry.Revision > 0 {
		fmt.Fprintf(w, "  revision:        %d\n", entry.Revision)
	}
	if entry.DownloadedAt != nil {
		fmt.Fprintf(w, "  downloaded at:   %s\n", entry.DownloadedAt.Format("2006-01-02 15:04:05"))
	}
	if entry.PreviousStatus != "" {
		fmt.Fprintf(w, "  previous status: %s\n", entry.PreviousStatus)
	}
}
