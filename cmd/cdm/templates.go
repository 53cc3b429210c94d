package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cdm-lang/cdm/internal/plugins"
)

func init() {
	rootCmd.AddCommand(newTemplatesCmd())
}

func newTemplatesCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List available project templates",
		Long:  `List the project templates published in the template registry. The index is cached with the same TTL as the plugin registry.`,
		Example: `  cdm templates
  cdm templates --refresh`,
		Args: cobra.NoArgs,
		RunE: withDeps(func(ctx *CommandContext, _ *cobra.Command, _ []string) error {
			client := plugins.NewTemplateClient(
				ctx.Config.EffectiveTemplateRegistryURL(),
				ctx.CacheDir,
				ctx.Config.EffectiveCacheTTL(),
			)

			load := client.Load
			if refresh {
				load = client.Refresh
			}
			reg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load template registry: %w", err)
			}

			if len(reg.Templates) == 0 {
				fmt.Println("No templates published.")
				return nil
			}

			names := make([]string, 0, len(reg.Templates))
			for name := range reg.Templates {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tLATEST\tDESCRIPTION")
			for _, name := range names {
				entry := reg.Templates[name]
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, entry.Latest, entry.Description)
			}
			return w.Flush()
		}),
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the template index even if the cached copy is fresh")

	return cmd
}
