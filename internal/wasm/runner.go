package wasm

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/cdm-lang/cdm/wireformat"
)

// exportArity is the fixed signature table of the plugin ABI: how many
// (ptr,len) argument pairs each callable export takes. Every export returns a
// single u32 pointing at a length-prefixed result buffer.
var exportArity = map[string]int{
	"_schema":          0,
	"_validate_config": 2,
	"_build":           2,
	"_migrate":         3,
}

// Runner executes one compiled plugin module. Every call instantiates a
// fresh sandbox, so no guest state survives between calls and a trap never
// leaves a half-computed instance behind.
type Runner struct {
	name    string
	module  wazero.CompiledModule
	runtime wazero.Runtime
}

// Name returns the plugin's identifier.
func (r *Runner) Name() string {
	return r.name
}

// moduleConfig builds the per-instance sandbox: stdio inherited, clocks and
// randomness available, no filesystem mounts, no sockets, no environment.
func (r *Runner) moduleConfig() wazero.ModuleConfig {
	return wazero.NewModuleConfig().
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader).
		WithStdout(os.Stdout).
		WithStderr(os.Stderr)
}

// newInstance instantiates the module with fresh, isolated memory.
func (r *Runner) newInstance(ctx context.Context) (api.Module, error) {
	instance, err := r.runtime.InstantiateModule(ctx, r.module, r.moduleConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate plugin %s: %w", r.name, err)
	}

	// Modules built with -buildmode=c-shared need _initialize called before
	// any other export.
	if initFn := instance.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			_ = instance.Close(ctx)
			return nil, fmt.Errorf("failed to initialize plugin %s: %w", r.name, err)
		}
	}

	return instance, nil
}

// guestBuffer owns one allocation in guest linear memory. release returns it
// through _dealloc and is safe to run on every exit path.
type guestBuffer struct {
	dealloc  api.Function
	ptr      uint32
	size     uint32
	released bool
}

func (b *guestBuffer) release(ctx context.Context) {
	if b == nil || b.released || b.ptr == 0 {
		return
	}
	b.released = true

	// Deallocation is best-effort cleanup; a panic here must not clobber an
	// in-flight panic or error.
	defer func() {
		_ = recover()
	}()
	_, _ = b.dealloc.Call(ctx, uint64(b.ptr), uint64(b.size))
}

// callFunction runs one ABI export: allocates and writes every argument
// buffer into guest memory, dispatches by the fixed signature table, reads
// the length-prefixed result, and deallocates every buffer it caused to
// exist. An unknown function name is a caller bug, not a runtime condition.
func (r *Runner) callFunction(ctx context.Context, name string, args ...[]byte) ([]byte, error) {
	arity, known := exportArity[name]
	if !known {
		panic(fmt.Sprintf("wasm: call to unknown plugin function %q", name))
	}
	if len(args) != arity {
		panic(fmt.Sprintf("wasm: %s takes %d argument buffers, got %d", name, arity, len(args)))
	}

	instance, err := r.newInstance(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = instance.Close(ctx)
	}()

	memory := instance.Memory()
	if memory == nil {
		return nil, fmt.Errorf("plugin %s does not export linear memory", r.name)
	}

	allocFn := instance.ExportedFunction("_alloc")
	if allocFn == nil {
		return nil, fmt.Errorf("plugin %s does not export _alloc", r.name)
	}
	deallocFn := instance.ExportedFunction("_dealloc")
	if deallocFn == nil {
		return nil, fmt.Errorf("plugin %s does not export _dealloc", r.name)
	}

	targetFn := instance.ExportedFunction(name)
	if targetFn == nil {
		return nil, fmt.Errorf("plugin %s does not export %s", r.name, name)
	}

	callArgs := make([]uint64, 0, len(args)*2)
	for _, arg := range args {
		buf, err := writeGuestBuffer(ctx, memory, allocFn, deallocFn, arg)
		if err != nil {
			return nil, fmt.Errorf("failed to write %s argument: %w", name, err)
		}
		defer buf.release(ctx)
		callArgs = append(callArgs, uint64(buf.ptr), uint64(buf.size))
	}

	results, err := targetFn.Call(ctx, callArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", name, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s returned no results", name)
	}

	resultPtr := uint32(results[0])
	if resultPtr == 0 {
		return nil, fmt.Errorf("%s returned a null pointer", name)
	}

	prefix, ok := memory.Read(resultPtr, wireformat.LengthPrefixSize)
	if !ok {
		return nil, fmt.Errorf("failed to read %s result length at offset %d", name, resultPtr)
	}
	length, err := wireformat.DecodeLength(prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result length: %w", name, err)
	}

	// The result buffer spans prefix plus payload; reclaim both.
	result := &guestBuffer{dealloc: deallocFn, ptr: resultPtr, size: length + wireformat.LengthPrefixSize}
	defer result.release(ctx)

	payload, ok := memory.Read(resultPtr+wireformat.LengthPrefixSize, length)
	if !ok {
		return nil, fmt.Errorf("failed to read %s result payload (%d bytes at offset %d)", name, length, resultPtr)
	}

	// Memory.Read aliases guest memory; copy before the buffer is freed.
	out := make([]byte, length)
	copy(out, payload)
	return out, nil
}

// writeGuestBuffer allocates guest memory for data and copies it in.
func writeGuestBuffer(ctx context.Context, memory api.Memory, allocFn, deallocFn api.Function, data []byte) (*guestBuffer, error) {
	results, err := allocFn.Call(ctx, uint64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate guest memory: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("_alloc returned no results")
	}

	ptr := uint32(results[0])
	if ptr == 0 {
		return nil, fmt.Errorf("_alloc returned a null pointer")
	}

	buf := &guestBuffer{dealloc: deallocFn, ptr: ptr, size: uint32(len(data))}
	if !memory.Write(ptr, data) {
		buf.release(ctx)
		return nil, fmt.Errorf("failed to write %d bytes to guest memory at offset %d", len(data), ptr)
	}
	return buf, nil
}

// hasExport probes a throwaway instance for an export without invoking it.
func (r *Runner) hasExport(ctx context.Context, name string) (bool, error) {
	instance, err := r.newInstance(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = instance.Close(ctx)
	}()
	return instance.ExportedFunction(name) != nil, nil
}

// HasBuild reports whether the plugin implements _build.
func (r *Runner) HasBuild(ctx context.Context) (bool, error) {
	return r.hasExport(ctx, "_build")
}

// HasMigrate reports whether the plugin implements _migrate.
func (r *Runner) HasMigrate(ctx context.Context) (bool, error) {
	return r.hasExport(ctx, "_migrate")
}

// Schema returns the plugin's schema fragment as raw source text.
func (r *Runner) Schema(ctx context.Context) (string, error) {
	payload, err := r.callFunction(ctx, "_schema")
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Validate runs the plugin's config validation for one configuration block.
// A plugin without _validate_config validates nothing and reports no errors.
func (r *Runner) Validate(ctx context.Context, level wireformat.ConfigLevel, config json.RawMessage) ([]wireformat.ValidationError, error) {
	ok, err := r.hasExport(ctx, "_validate_config")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	levelJSON, err := json.Marshal(level)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config level: %w", err)
	}

	payload, err := r.callFunction(ctx, "_validate_config", levelJSON, orEmptyObject(config))
	if err != nil {
		return nil, err
	}

	var errs []wireformat.ValidationError
	if err := json.Unmarshal(payload, &errs); err != nil {
		return nil, fmt.Errorf("plugin %s returned invalid validation result: %w", r.name, err)
	}
	return errs, nil
}

// Build runs the plugin's code generation over a resolved schema.
func (r *Runner) Build(ctx context.Context, schema wireformat.Schema, config json.RawMessage) ([]wireformat.OutputFile, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	payload, err := r.callFunction(ctx, "_build", schemaJSON, orEmptyObject(config))
	if err != nil {
		return nil, err
	}

	var files []wireformat.OutputFile
	if err := json.Unmarshal(payload, &files); err != nil {
		return nil, fmt.Errorf("plugin %s returned invalid build result: %w", r.name, err)
	}
	return files, nil
}

// Migrate runs the plugin's migration generation over a schema change set.
func (r *Runner) Migrate(ctx context.Context, schema wireformat.Schema, deltas []wireformat.Delta, config json.RawMessage) ([]wireformat.OutputFile, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	deltasJSON, err := json.Marshal(deltas)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deltas: %w", err)
	}

	payload, err := r.callFunction(ctx, "_migrate", schemaJSON, deltasJSON, orEmptyObject(config))
	if err != nil {
		return nil, err
	}

	var files []wireformat.OutputFile
	if err := json.Unmarshal(payload, &files); err != nil {
		return nil, fmt.Errorf("plugin %s returned invalid migrate result: %w", r.name, err)
	}
	return files, nil
}

// orEmptyObject substitutes "{}" for an absent config block.
func orEmptyObject(config json.RawMessage) []byte {
	if len(config) == 0 {
		return []byte("{}")
	}
	return config
}
