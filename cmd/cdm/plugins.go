package main

import (
	"github.com/spf13/cobra"
)

// pluginsCmd groups the plugin cache management subcommands.
var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage plugins",
	Long:  `Manage the local plugin cache and the plugin registry index.`,
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
