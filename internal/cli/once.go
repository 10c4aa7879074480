package cli

import (
	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Aggregate the previous hour and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunOnce(cmd.Context())
	},
}
