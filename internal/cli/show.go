package cli

import (
	"github.com/spf13/cobra"

	"upgrade-alerts/internal/app"
)

var showNetwork string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Fetch the feed once and display the normalized schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{Network: showNetwork})
	},
}

func init() {
	showCmd.Flags().StringVar(&showNetwork, "network", "", "Only show this network")
}
