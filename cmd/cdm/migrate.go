package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdm-lang/cdm/internal/pipeline"
	"github.com/cdm-lang/cdm/internal/plugins"
	"github.com/cdm-lang/cdm/internal/project"
	"github.com/cdm-lang/cdm/internal/wasm"
	"github.com/cdm-lang/cdm/wireformat"
)

func init() {
	rootCmd.AddCommand(newMigrateCmd())
}

func newMigrateCmd() *cobra.Command {
	var (
		outDir     string
		deltasPath string
	)

	cmd := &cobra.Command{
		Use:   "migrate [project-file]",
		Short: "Run plugin migration generation",
		Long:  `Run every migrate-capable plugin over a schema change set, producing migration files. The change set is a JSON array of deltas.`,
		Example: `  cdm migrate --deltas changes.json
  cdm migrate ./cdm.json --deltas changes.json --out ./migrations`,
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
			schema, err := proj.LoadSchema()
			if err != nil {
				return err
			}

			deltas, err := loadDeltas(deltasPath)
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

			p := pipeline.New(ctx.Resolver, runtime, plugins.ResolveOptions{})
			outputs, err := p.Migrate(ctx.Context, proj.Imports(), schema, deltas)
			if err != nil {
				return err
			}

			written, err := writeOutputs(outDir, outputs)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d migration file(s) from %d plugin(s).\n", written, len(outputs))
			return nil
		}),
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "directory migration files are written under")
	cmd.Flags().StringVar(&deltasPath, "deltas", "", "JSON file holding the schema change set")
	_ = cmd.MarkFlagRequired("deltas")

	return cmd
}

func loadDeltas(path string) ([]wireformat.Delta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deltas file %s: %w", path, err)
	}
	var deltas []wireformat.Delta
	if err := json.Unmarshal(data, &deltas); err != nil {
		return nil, fmt.Errorf("failed to parse deltas file %s: %w", path, err)
	}
	return deltas, nil
}
