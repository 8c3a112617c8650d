package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// NewRootCmd returns the root command of the scout CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "scout",
		Short:         "Find commission requests on Bluesky",
		Long:          "scout searches Bluesky for people looking to commission art, classifies each post and reports the buyers it finds.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file (missing file means defaults and environment only)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newOnceCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newUsageCmd())

	return rootCmd
}
