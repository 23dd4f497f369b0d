package cmd

import (
	"github.com/spf13/cobra"
)

// Execute runs the isp-portal command tree.
func Execute() error {
	rootCmd := &cobra.Command{
		Use:          "isp-portal",
		Short:        "Hotspot voucher sales, payment webhooks and session activation",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

	return rootCmd.Execute()
}
