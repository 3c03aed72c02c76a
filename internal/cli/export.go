package cli

import (
	"github.com/spf13/cobra"

	"upgrade-alerts/internal/app"
)

var (
	exportPNGPath string
	exportCSVPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current upgrade schedule as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart of hours until each upgrade")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
}
