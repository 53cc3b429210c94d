package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cdm-lang/cdm/internal/config"
	"github.com/cdm-lang/cdm/internal/plugins"
)

// CommandContext provides common command dependencies so commands focus on
// their own logic instead of wiring.
type CommandContext struct {
	Context  context.Context
	Config   *config.Config
	CacheDir string
	Cache    *plugins.Cache
	Registry *plugins.RegistryClient
	Resolver *plugins.Resolver
}

// CommandHandler is a function that executes with initialized dependencies.
type CommandHandler func(*CommandContext, *cobra.Command, []string) error

// withDeps wraps a command handler with system config loading and plugin
// service construction.
func withDeps(handler CommandHandler) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			configPath = path
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		cacheDir, err := cfg.EffectiveCacheDir()
		if err != nil {
			return err
		}

		cache := plugins.NewCache(cacheDir)
		git := plugins.NewGitFetcher(cacheDir)
		registry := plugins.NewRegistryClient(cfg.EffectiveRegistryURL(), cacheDir, cfg.EffectiveCacheTTL())

		ctx := &CommandContext{
			Context:  cmd.Context(),
			Config:   cfg,
			CacheDir: cacheDir,
			Cache:    cache,
			Registry: registry,
			Resolver: plugins.NewResolver(cache, git, registry),
		}
		if ctx.Context == nil {
			ctx.Context = context.Background()
		}

		return handler(ctx, cmd, args)
	}
}
