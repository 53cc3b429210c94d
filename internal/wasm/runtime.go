// Package wasm executes plugin modules inside a wazero sandbox. A plugin is
// compiled once per process and re-instantiated for every call; the sandbox
// exposes stdio, clocks and randomness but no filesystem or network.
package wasm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// globalCache speeds up compilation across runtimes.
var globalCache = wazero.NewCompilationCache()

// DefaultMemoryLimitMB caps guest linear memory unless overridden.
const DefaultMemoryLimitMB = 256

// Runtime manages plugin compilation and execution.
type Runtime struct {
	runtime wazero.Runtime
	mu      sync.RWMutex
	runners map[string]*Runner
}

// NewRuntime creates a runtime with the given guest memory limit in MB.
// 0 means the default limit, -1 means unlimited, anything below -1 is an
// error.
func NewRuntime(ctx context.Context, memoryLimitMB int) (*Runtime, error) {
	switch {
	case memoryLimitMB == 0:
		memoryLimitMB = DefaultMemoryLimitMB
	case memoryLimitMB == -1:
		slog.Warn("WASM memory limit disabled (unlimited memory)")
	case memoryLimitMB > 0:
		if memoryLimitMB < 64 {
			slog.Warn("WASM memory limit very low, plugins may fail", "mb", memoryLimitMB)
		}
	default:
		return nil, fmt.Errorf("invalid WASM memory limit: %d (must be >= -1)", memoryLimitMB)
	}

	config := wazero.NewRuntimeConfig().WithCompilationCache(globalCache)
	if memoryLimitMB > 0 {
		// 1 page = 64KB, so 1 MB = 16 pages.
		config = config.WithMemoryLimitPages(uint32(memoryLimitMB * 16))
	}

	r := wazero.NewRuntimeWithConfig(ctx, config)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	return &Runtime{
		runtime: r,
		runners: make(map[string]*Runner),
	}, nil
}

// LoadPlugin compiles a plugin module and returns its runner. Repeated loads
// of the same name return the cached runner.
func (r *Runtime) LoadPlugin(ctx context.Context, name string, wasmBytes []byte) (*Runner, error) {
	r.mu.RLock()
	if runner, ok := r.runners[name]; ok {
		r.mu.RUnlock()
		return runner, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have loaded it while we waited for the lock.
	if runner, ok := r.runners[name]; ok {
		return runner, nil
	}

	module, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile plugin %s: %w", name, err)
	}

	runner := &Runner{
		name:    name,
		module:  module,
		runtime: r.runtime,
	}
	r.runners[name] = runner
	return runner, nil
}

// LoadPluginFile compiles a plugin module read from disk.
func (r *Runtime) LoadPluginFile(ctx context.Context, name, path string) (*Runner, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin %s: %w", name, err)
	}
	return r.LoadPlugin(ctx, name, wasmBytes)
}

// Runner retrieves a loaded plugin's runner by name.
func (r *Runtime) Runner(name string) (*Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[name]
	return runner, ok
}

// Close releases the runtime and every compiled module.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}
