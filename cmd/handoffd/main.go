// Command handoffd runs the cross-tenant handoff endpoints and the
// operational commands around them.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "handoffd",
		Short:         "Cross-tenant SSO handoff service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
