package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cdm-lang/cdm/internal/pipeline"
	"github.com/cdm-lang/cdm/internal/plugins"
	"github.com/cdm-lang/cdm/internal/project"
	"github.com/cdm-lang/cdm/internal/wasm"
)

func init() {
	rootCmd.AddCommand(newBuildCmd())
}

func newBuildCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "build [project-file]",
		Short: "Run plugin code generation",
		Long:  `Resolve the project's plugins, downloading into the cache as needed, and run every build-capable plugin over the schema. Plugins that fail are skipped with a warning.`,
		Example: `  cdm build
  cdm build ./cdm.json --out ./generated`,
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

			runtime, err := wasm.NewRuntime(ctx.Context, ctx.Config.WasmMemoryLimitMB)
			if err != nil {
				return err
			}
			defer func() {
				_ = runtime.Close(ctx.Context)
			}()

			p := pipeline.New(ctx.Resolver, runtime, plugins.ResolveOptions{})
			outputs, err := p.Build(ctx.Context, proj.Imports(), schema)
			if err != nil {
				return err
			}

			written, err := writeOutputs(outDir, outputs)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d file(s) from %d plugin(s).\n", written, len(outputs))
			return nil
		}),
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "directory generated files are written under")

	return cmd
}

// writeOutputs persists every generated file under outDir.
func writeOutputs(outDir string, outputs []pipeline.PluginOutput) (int, error) {
	written := 0
	for _, output := range outputs {
		for _, file := range output.Files {
			target := filepath.Join(outDir, file.Path)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return written, fmt.Errorf("failed to create output directory for %s: %w", target, err)
			}
			if err := os.WriteFile(target, []byte(file.Content), 0o644); err != nil {
				return written, fmt.Errorf("failed to write %s: %w", target, err)
			}
			written++
		}
	}
	return written, nil
}
