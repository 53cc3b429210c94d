package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	pluginsCmd.AddCommand(newPluginsUpdateCmd())
}

func newPluginsUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "update",
		Short:   "Refresh the plugin registry index",
		Long:    `Fetch the plugin registry index, replacing the cached copy regardless of its age.`,
		Example: `  cdm plugins update`,
		Args:    cobra.NoArgs,
		RunE: withDeps(func(ctx *CommandContext, _ *cobra.Command, _ []string) error {
			reg, err := ctx.Registry.Refresh()
			if err != nil {
				return fmt.Errorf("failed to refresh registry: %w", err)
			}
			fmt.Printf("Registry updated: %d plugin(s) available from %s.\n", len(reg.Plugins), ctx.Registry.URL())
			return nil
		}),
	}
}
