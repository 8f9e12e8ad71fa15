package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the appraisal admin CLI. Subcommands (migrate, tenant) are attached here.
var rootCmd = &cobra.Command{
	Use:           "appraisal-admin",
	Short:         "Appraisal platform admin CLI",
	Long:          "Administrative utilities for the appraisal platform (platform migrations, tenant schema provisioning).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
