package cli

import (
	"github.com/spf13/cobra"
)

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Print the persisted recipient subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Subscriptions(cmd.Context())
	},
}
