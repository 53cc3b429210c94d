package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	pluginsCmd.AddCommand(newPluginsClearCmd())
}

func newPluginsClearCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [name]",
		Short: "Remove cached plugins",
		Long:  `Remove every cached version of one plugin, or the whole cache with --all.`,
		Example: `  cdm plugins clear auth
  cdm plugins clear --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: withDeps(func(ctx *CommandContext, _ *cobra.Command, args []string) error {
			if all {
				if err := ctx.Cache.ClearAll(); err != nil {
					return err
				}
				fmt.Println("Plugin cache cleared.")
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("specify a plugin name or --all")
			}
			if err := ctx.Cache.ClearPlugin(args[0]); err != nil {
				return err
			}
			fmt.Printf("Cleared cached versions of %s.\n", args[0])
			return nil
		}),
	}

	cmd.Flags().BoolVar(&all, "all", false, "clear the entire plugin cache")

	return cmd
}
