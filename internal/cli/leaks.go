package cli

import (
	"github.com/spf13/cobra"
)

var leaksCmd = &cobra.Command{
	Use:   "leaks",
	Short: "Poll for returned inventory without waiting for a sale window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Leaks(cmd.Context())
	},
}
