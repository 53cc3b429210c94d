// Package config loads the system-level configuration file
// (~/.cdm/config.yaml) and resolves the plugin cache directory. Environment
// variables win over the file, the file wins over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/cdm-lang/cdm/internal/plugins"
)

// Config is the system configuration file structure.
type Config struct {
	RegistryURL         string `yaml:"registry_url"`
	TemplateRegistryURL string `yaml:"template_registry_url"`
	CacheDir            string `yaml:"cache_dir"`
	CacheTTLSeconds     int64  `yaml:"cache_ttl_seconds"`
	WasmMemoryLimitMB   int    `yaml:"wasm_memory_limit_mb"`
}

// DefaultConfig returns a Config with safe defaults for all fields. Used when
// no system config file exists, so the tool works out of the box.
func DefaultConfig() *Config {
	return &Config{
		RegistryURL:         plugins.DefaultRegistryURL,
		TemplateRegistryURL: plugins.DefaultTemplateRegistryURL,
		WasmMemoryLimitMB:   0, // 0 means use the runtime default
	}
}

// DefaultPath returns the default system config location, ~/.cdm/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".cdm", "config.yaml"), nil
}

// Load reads the system configuration from path. A missing file yields
// DefaultConfig; a present but unparsable file is an error.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}

	return config, nil
}

// EffectiveRegistryURL applies the env > file > default precedence.
func (c *Config) EffectiveRegistryURL() string {
	if url := os.Getenv("CDM_REGISTRY_URL"); url != "" {
		return url
	}
	if c.RegistryURL != "" {
		return c.RegistryURL
	}
	return plugins.DefaultRegistryURL
}

// EffectiveTemplateRegistryURL applies the env > file > default precedence.
func (c *Config) EffectiveTemplateRegistryURL() string {
	if url := os.Getenv("CDM_TEMPLATE_REGISTRY_URL"); url != "" {
		return url
	}
	if c.TemplateRegistryURL != "" {
		return c.TemplateRegistryURL
	}
	return plugins.DefaultTemplateRegistryURL
}

// EffectiveCacheDir resolves the plugin cache root: CDM_CACHE_DIR, then the
// config file, then <platform cache dir>/cdm.
func (c *Config) EffectiveCacheDir() (string, error) {
	if dir := os.Getenv("CDM_CACHE_DIR"); dir != "" {
		return dir, nil
	}
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine cache directory: %w", err)
	}
	return filepath.Join(base, "cdm"), nil
}

// EffectiveCacheTTL resolves the registry cache TTL: CDM_CACHE_TTL (seconds),
// then the config file, then the default.
func (c *Config) EffectiveCacheTTL() time.Duration {
	if s := os.Getenv("CDM_CACHE_TTL"); s != "" {
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if c.CacheTTLSeconds > 0 {
		return time.Duration(c.CacheTTLSeconds) * time.Second
	}
	return plugins.DefaultCacheTTL
}
