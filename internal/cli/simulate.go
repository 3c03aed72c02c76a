package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"upgrade-alerts/internal/app"
)

var (
	simulateRecipient int64
	simulateNetwork   string
	simulateThreshold string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Render a threshold alert and send it to one chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateRecipient == 0 {
			return errors.New("--recipient must be a Telegram chat id")
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Recipient: simulateRecipient,
			Network:   simulateNetwork,
			Threshold: simulateThreshold,
		})
	},
}

func init() {
	simulateCmd.Flags().Int64Var(&simulateRecipient, "recipient", 0, "Telegram chat id to send to")
	simulateCmd.Flags().StringVar(&simulateNetwork, "network", "test-chain", "Network to render the alert for")
	simulateCmd.Flags().StringVar(&simulateThreshold, "threshold", "2_hours_before", "Threshold key or name (e.g. 1_day_before)")
}
