// Package pipeline drives plugin resolution and execution for the validate,
// build and migrate operations. Resolution failures block validation (an
// unresolved plugin means the schema cannot be fully checked); execution
// failures during build and migrate are logged and skipped so one broken
// plugin does not take down the rest.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cdm-lang/cdm/internal/plugins"
	"github.com/cdm-lang/cdm/internal/wasm"
	"github.com/cdm-lang/cdm/wireformat"
)

// Pipeline wires the resolver to the sandbox runtime.
type Pipeline struct {
	resolver *plugins.Resolver
	runtime  *wasm.Runtime
	opts     plugins.ResolveOptions
}

// New creates a pipeline. opts applies to every resolution it performs.
func New(resolver *plugins.Resolver, runtime *wasm.Runtime, opts plugins.ResolveOptions) *Pipeline {
	return &Pipeline{resolver: resolver, runtime: runtime, opts: opts}
}

// Diagnostic is one validation finding attributed to the plugin that
// produced it.
type Diagnostic struct {
	Plugin string
	wireformat.ValidationError
}

// PluginOutput is one plugin's generated files from a build or migrate run.
type PluginOutput struct {
	Plugin string
	Files  []wireformat.OutputFile
}

// load resolves one import and compiles its module.
func (p *Pipeline) load(ctx context.Context, imp plugins.Import) (*wasm.Runner, error) {
	path, err := p.resolver.Resolve(imp, p.opts)
	if err != nil {
		return nil, err
	}
	return p.runtime.LoadPluginFile(ctx, imp.Name, path)
}

// Validate runs every plugin's config validation at the global level. Any
// resolution failure aborts the whole operation; a plugin that resolves but
// fails during execution is logged and skipped.
func (p *Pipeline) Validate(ctx context.Context, imports []plugins.Import) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, imp := range imports {
		runner, err := p.load(ctx, imp)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve plugin %q: %w", imp.Name, err)
		}

		errs, err := runner.Validate(ctx, wireformat.GlobalLevel(), imp.GlobalConfig)
		if err != nil {
			slog.Warn("plugin validation failed, skipping", "plugin", imp.Name, "error", err)
			continue
		}
		for _, e := range errs {
			diags = append(diags, Diagnostic{Plugin: imp.Name, ValidationError: e})
		}
	}
	return diags, nil
}

// Build runs every build-capable plugin over the resolved schema. Plugins
// that fail to resolve, lack _build, or fail during execution are logged and
// skipped.
func (p *Pipeline) Build(ctx context.Context, imports []plugins.Import, schema wireformat.Schema) ([]PluginOutput, error) {
	var outputs []PluginOutput
	for _, imp := range imports {
		runner, err := p.load(ctx, imp)
		if err != nil {
			slog.Warn("failed to resolve plugin, skipping", "plugin", imp.Name, "error", err)
			continue
		}

		hasBuild, err := runner.HasBuild(ctx)
		if err != nil {
			slog.Warn("plugin capability check failed, skipping", "plugin", imp.Name, "error", err)
			continue
		}
		if !hasBuild {
			slog.Debug("plugin has no build capability", "plugin", imp.Name)
			continue
		}

		files, err := runner.Build(ctx, schema, imp.GlobalConfig)
		if err != nil {
			slog.Warn("plugin build failed, skipping", "plugin", imp.Name, "error", err)
			continue
		}
		outputs = append(outputs, PluginOutput{Plugin: imp.Name, Files: files})
	}
	return outputs, nil
}

// Migrate runs every migrate-capable plugin over the schema change set, with
// the same skip semantics as Build.
func (p *Pipeline) Migrate(ctx context.Context, imports []plugins.Import, schema wireformat.Schema, deltas []wireformat.Delta) ([]PluginOutput, error) {
	var outputs []PluginOutput
	for _, imp := range imports {
		runner, err := p.load(ctx, imp)
		if err != nil {
			slog.Warn("failed to resolve plugin, skipping", "plugin", imp.Name, "error", err)
			continue
		}

		hasMigrate, err := runner.HasMigrate(ctx)
		if err != nil {
			slog.Warn("plugin capability check failed, skipping", "plugin", imp.Name, "error", err)
			continue
		}
		if !hasMigrate {
			slog.Debug("plugin has no migrate capability", "plugin", imp.Name)
			continue
		}

		files, err := runner.Migrate(ctx, schema, deltas, imp.GlobalConfig)
		if err != nil {
			slog.Warn("plugin migrate failed, skipping", "plugin", imp.Name, "error", err)
			continue
		}
		outputs = append(outputs, PluginOutput{Plugin: imp.Name, Files: files})
	}
	return outputs, nil
}
