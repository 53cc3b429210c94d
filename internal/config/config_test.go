package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdm-lang/cdm/internal/plugins"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, plugins.DefaultRegistryURL, cfg.RegistryURL)
	assert.Equal(t, 0, cfg.WasmMemoryLimitMB)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
registry_url: https://registry.internal.example.com/registry.json
cache_ttl_seconds: 600
wasm_memory_limit_mb: 512
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://registry.internal.example.com/registry.json", cfg.RegistryURL)
	assert.Equal(t, int64(600), cfg.CacheTTLSeconds)
	assert.Equal(t, 512, cfg.WasmMemoryLimitMB)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, plugins.DefaultTemplateRegistryURL, cfg.TemplateRegistryURL)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry_url: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse system config")
}

func TestEnvWinsOverFile(t *testing.T) {
	cfg := &Config{
		RegistryURL: "https://file.example.com/registry.json",
		CacheDir:    "/from/file",
	}

	t.Setenv("CDM_REGISTRY_URL", "https://env.example.com/registry.json")
	t.Setenv("CDM_CACHE_DIR", "/from/env")
	t.Setenv("CDM_CACHE_TTL", "120")

	assert.Equal(t, "https://env.example.com/registry.json", cfg.EffectiveRegistryURL())

	dir, err := cfg.EffectiveCacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/from/env", dir)

	assert.Equal(t, 2*time.Minute, cfg.EffectiveCacheTTL())
}

func TestFileWinsOverDefaults(t *testing.T) {
	cfg := &Config{
		RegistryURL:     "https://file.example.com/registry.json",
		CacheDir:        "/from/file",
		CacheTTLSeconds: 60,
	}

	t.Setenv("CDM_REGISTRY_URL", "")
	t.Setenv("CDM_CACHE_DIR", "")
	t.Setenv("CDM_CACHE_TTL", "")

	assert.Equal(t, "https://file.example.com/registry.json", cfg.EffectiveRegistryURL())

	dir, err := cfg.EffectiveCacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/from/file", dir)

	assert.Equal(t, time.Minute, cfg.EffectiveCacheTTL())
}

func TestDefaultCacheDirUsesPlatformDir(t *testing.T) {
	t.Setenv("CDM_CACHE_DIR", "")

	dir, err := DefaultConfig().EffectiveCacheDir()
	require.NoError(t, err)
	assert.Equal(t, "cdm", filepath.Base(dir))
}
