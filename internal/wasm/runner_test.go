package wasm

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wippyai/wasm-runtime/wat"

	"github.com/cdm-lang/cdm/wireformat"
)

// watBytes renders a length-prefixed buffer as WAT hex escapes for a data
// segment.
func watBytes(payload string) string {
	var sb strings.Builder
	for _, b := range wireformat.EncodeBuffer([]byte(payload)) {
		fmt.Fprintf(&sb, "\\%02x", b)
	}
	return sb.String()
}

// validatingPluginWAT builds a module implementing the full required ABI plus
// _validate_config, but neither _build nor _migrate. _alloc is a bump
// allocator; _dealloc is a no-op; _schema and _validate_config answer from
// static data segments.
func validatingPluginWAT(schema, validation string) string {
	return fmt.Sprintf(`(module
  (memory (export "memory") 2)
  (global $heap (mut i32) (i32.const 8192))
  (func (export "_alloc") (param $len i32) (result i32)
    (local $ptr i32)
    (local.set $ptr (global.get $heap))
    (global.set $heap (i32.add (global.get $heap) (local.get $len)))
    (local.get $ptr))
  (func (export "_dealloc") (param i32) (param i32))
  (func (export "_schema") (result i32) (i32.const 1024))
  (func (export "_validate_config") (param i32 i32 i32 i32) (result i32) (i32.const 2048))
  (data (i32.const 1024) "%s")
  (data (i32.const 2048) "%s")
)`, watBytes(schema), watBytes(validation))
}

func compileFixture(t *testing.T, source string) []byte {
	t.Helper()
	bin, err := wat.Compile(source)
	require.NoError(t, err)
	return bin
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := NewRuntime(ctx, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func TestRunnerEndToEnd(t *testing.T) {
	ctx := context.Background()
	const schemaText = "model User { id: uuid }"
	const validationJSON = `[{"path":"tables","message":"tables must be a list"}]`

	rt := newTestRuntime(t)
	runner, err := rt.LoadPlugin(ctx, "demo", compileFixture(t, validatingPluginWAT(schemaText, validationJSON)))
	require.NoError(t, err)

	hasBuild, err := runner.HasBuild(ctx)
	require.NoError(t, err)
	assert.False(t, hasBuild)

	hasMigrate, err := runner.HasMigrate(ctx)
	require.NoError(t, err)
	assert.False(t, hasMigrate)

	schema, err := runner.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaText, schema)

	errs, err := runner.Validate(ctx, wireformat.GlobalLevel(), []byte(`{}`))
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "tables", errs[0].Path)
	assert.Equal(t, "tables must be a list", errs[0].Message)
}

func TestRunnerValidateWithoutExportIsEmpty(t *testing.T) {
	// Required ABI only: no _validate_config.
	const source = `(module
  (memory (export "memory") 1)
  (global $heap (mut i32) (i32.const 8192))
  (func (export "_alloc") (param $len i32) (result i32)
    (local $ptr i32)
    (local.set $ptr (global.get $heap))
    (global.set $heap (i32.add (global.get $heap) (local.get $len)))
    (local.get $ptr))
  (func (export "_dealloc") (param i32) (param i32))
  (func (export "_schema") (result i32) (i32.const 1024))
  (data (i32.const 1024) "\00\00\00\00")
)`

	ctx := context.Background()
	rt := newTestRuntime(t)
	runner, err := rt.LoadPlugin(ctx, "no-validate", compileFixture(t, source))
	require.NoError(t, err)

	errs, err := runner.Validate(ctx, wireformat.GlobalLevel(), []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, errs)

	// An empty payload behind the length prefix is a valid schema answer.
	schema, err := runner.Schema(ctx)
	require.NoError(t, err)
	assert.Empty(t, schema)
}

func TestRunnerMissingAllocIsHardError(t *testing.T) {
	const source = `(module
  (memory (export "memory") 1)
  (func (export "_schema") (result i32) (i32.const 0))
)`

	ctx := context.Background()
	rt := newTestRuntime(t)
	runner, err := rt.LoadPlugin(ctx, "broken", compileFixture(t, source))
	require.NoError(t, err)

	_, err = runner.Schema(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not export _alloc")
}

func TestRunnerNullResultPointer(t *testing.T) {
	const source = `(module
  (memory (export "memory") 1)
  (func (export "_alloc") (param i32) (result i32) (i32.const 8192))
  (func (export "_dealloc") (param i32) (param i32))
  (func (export "_schema") (result i32) (i32.const 0))
)`

	ctx := context.Background()
	rt := newTestRuntime(t)
	runner, err := rt.LoadPlugin(ctx, "null-result", compileFixture(t, source))
	require.NoError(t, err)

	_, err = runner.Schema(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null pointer")
}

func TestRunnerInvalidValidationJSON(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	runner, err := rt.LoadPlugin(ctx, "bad-json", compileFixture(t, validatingPluginWAT("", "this is not json")))
	require.NoError(t, err)

	_, err = runner.Validate(ctx, wireformat.GlobalLevel(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid validation result")
}

func TestCallFunctionUnknownNamePanics(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	runner, err := rt.LoadPlugin(ctx, "demo", compileFixture(t, validatingPluginWAT("", "[]")))
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = runner.callFunction(ctx, "_observe")
	})
}

func TestLoadPluginCachesByName(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	bin := compileFixture(t, validatingPluginWAT("a", "[]"))
	first, err := rt.LoadPlugin(ctx, "demo", bin)
	require.NoError(t, err)
	second, err := rt.LoadPlugin(ctx, "demo", bin)
	require.NoError(t, err)
	assert.Same(t, first, second)

	got, ok := rt.Runner("demo")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestNewRuntimeRejectsInvalidMemoryLimit(t *testing.T) {
	_, err := NewRuntime(context.Background(), -2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid WASM memory limit")
}
