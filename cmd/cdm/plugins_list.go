package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	pluginsCmd.AddCommand(newPluginsListCmd())
}

func newPluginsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List cached plugins",
		Long:    `List all plugins currently available in the local cache.`,
		Example: `  cdm plugins list`,
		Args:    cobra.NoArgs,
		RunE: withDeps(func(ctx *CommandContext, _ *cobra.Command, _ []string) error {
			entries, err := ctx.Cache.List()
			if err != nil {
				return fmt.Errorf("failed to list plugins: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("No plugins found in cache.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tSOURCE\tCHECKSUM")
			for _, entry := range entries {
				sum := entry.Metadata.Checksum
				if len(sum) > 19 {
					sum = sum[:19]
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Name, entry.Version, entry.Metadata.Source.Kind, sum)
			}
			return w.Flush()
		}),
	}
}
