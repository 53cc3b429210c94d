package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cdm-lang/cdm/internal/pipeline"
	"github.com/cdm-lang/cdm/internal/plugins"
	"github.com/cdm-lang/cdm/internal/project"
	"github.com/cdm-lang/cdm/internal/wasm"
)

func init() {
	rootCmd.AddCommand(newValidateCmd())
}

func newValidateCmd() *cobra.Command {
	var cacheOnly bool

	cmd := &cobra.Command{
		Use:   "validate [project-file]",
		Short: "Validate plugin configuration",
		Long:  `Resolve every plugin the project imports and run its configuration validation. Any plugin that cannot be resolved aborts the validation.`,
		Example: `  cdm validate
  cdm validate ./cdm.json --cache-only`,
		Args: cobra.MaximumNArgs(1),
		RunE: withDeps(func(ctx *CommandContext, _ *cobra.Command, args []string) error {
			projectPath := project.DefaultFileName
			if len(args) == 1 {
				projectPath = args[0]
			}

			proj, err := project.Load(projectPath)
			if err != nil {
				return err
			}

			runtime, err := wasm.NewRuntime(ctx.Context, ctx.Config.WasmMemoryLimitMB)
			if err != nil {
				return err
			}
			defer func() {
				_ = runtime.Close(ctx.Context)
			}()

			p := pipeline.New(ctx.Resolver, runtime, plugins.ResolveOptions{CacheOnly: cacheOnly})
			diags, err := p.Validate(ctx.Context, proj.Imports())
			if err != nil {
				return err
			}

			if len(diags) == 0 {
				fmt.Println("Configuration valid.")
				return nil
			}

			for _, d := range diags {
				if d.Path != "" {
					fmt.Printf("%s: %s: %s\n", d.Plugin, d.Path, d.Message)
					continue
				}
				fmt.Printf("%s: %s\n", d.Plugin, d.Message)
			}
			return fmt.Errorf("validation failed with %d error(s)", len(diags))
		}),
	}

	cmd.Flags().BoolVar(&cacheOnly, "cache-only", false, "never touch the network; use only cached plugins")

	return cmd
}
