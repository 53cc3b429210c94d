package plugins

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/cdm-lang/cdm/internal/checksum"
)

const (
	cachedBinaryName   = "plugin.wasm"
	cachedMetadataName = "metadata.json"

	// downloadTimeout bounds a single plugin binary download.
	downloadTimeout = 120 * time.Second
)

// Cache is the content-addressed-by-name@version store for downloaded plugin
// binaries. The root directory and clock are injected so tests stay
// deterministic; both default sensibly via NewCache.
type Cache struct {
	root   string
	now    func() time.Time
	client *http.Client
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithClock overrides the cache's clock.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithHTTPClient overrides the download client.
func WithHTTPClient(client *http.Client) CacheOption {
	return func(c *Cache) { c.client = client }
}

// NewCache creates a plugin cache rooted at root.
func NewCache(root string, opts ...CacheOption) *Cache {
	c := &Cache{
		root: root,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		rc := retryablehttp.NewClient()
		rc.HTTPClient.Timeout = downloadTimeout
		rc.Logger = nil
		c.client = rc.StandardClient()
	}
	return c
}

// pluginsDir is where all <name>@<version> entries live.
func (c *Cache) pluginsDir() string {
	return filepath.Join(c.root, "plugins")
}

func (c *Cache) entryDir(name, version string) string {
	return filepath.Join(c.pluginsDir(), name+"@"+version)
}

// CachePlugin downloads a plugin binary, verifies its checksum and stores it
// together with a metadata sidecar. The checksum is verified before anything
// touches disk, and the entry is staged in a temp directory and renamed into
// place so concurrent invocations never observe a half-written entry.
func (c *Cache) CachePlugin(name, version, wasmURL, sum string, source CacheSource) (string, error) {
	slog.Info("downloading plugin", "plugin", name, "version", version, "url", wasmURL)

	resp, err := c.client.Get(wasmURL)
	if err != nil {
		return "", fmt.Errorf("failed to download plugin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP error %d while downloading plugin from %s", resp.StatusCode, wasmURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read plugin download: %w", err)
	}

	if err := checksum.Verify(data, sum); err != nil {
		return "", fmt.Errorf("refusing to cache plugin %s@%s: %w", name, version, err)
	}

	meta := CacheMetadata{
		PluginName:   name,
		Version:      version,
		DownloadedAt: strconv.FormatInt(c.now().Unix(), 10),
		Source:       source,
		Checksum:     sum,
	}

	wasmPath, err := c.store(name, version, data, meta)
	if err != nil {
		return "", err
	}

	slog.Info("cached plugin", "plugin", name, "version", version, "path", wasmPath)
	return wasmPath, nil
}

// CacheFromFile records an already-local binary in the cache, computing its
// checksum from the file contents. Git-resolved plugins go through this so
// they carry the same provenance sidecar as downloaded ones.
func (c *Cache) CacheFromFile(name, version, wasmPath string, source CacheSource) (string, error) {
	data, err := os.ReadFile(wasmPath)
	if err != nil {
		return "", fmt.Errorf("failed to read plugin binary %s: %w", wasmPath, err)
	}

	meta := CacheMetadata{
		PluginName:   name,
		Version:      version,
		DownloadedAt: strconv.FormatInt(c.now().Unix(), 10),
		Source:       source,
		Checksum:     checksum.Sum(data),
	}

	return c.store(name, version, data, meta)
}

// store writes the binary and metadata into a staging directory and renames
// it over the final entry. Last writer wins with a complete pair.
func (c *Cache) store(name, version string, data []byte, meta CacheMetadata) (string, error) {
	if err := os.MkdirAll(c.pluginsDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create plugin cache directory: %w", err)
	}

	staging, err := os.MkdirTemp(c.pluginsDir(), "."+name+"@"+version+".tmp-")
	if err != nil {
		return "", fmt.Errorf("failed to create cache staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := os.WriteFile(filepath.Join(staging, cachedBinaryName), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write WASM file: %w", err)
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode cache metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, cachedMetadataName), metaJSON, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cache metadata: %w", err)
	}

	final := c.entryDir(name, version)
	if err := os.RemoveAll(final); err != nil {
		return "", fmt.Errorf("failed to replace cache entry: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return "", fmt.Errorf("failed to move cache entry into place: %w", err)
	}

	return filepath.Join(final, cachedBinaryName), nil
}

// CachedPlugin returns the path of a cached binary, or "" when the entry is
// missing or fails re-verification. A tampered or truncated entry is a cache
// miss, not an error, so callers transparently re-download.
func (c *Cache) CachedPlugin(name, version string) (string, error) {
	dir := c.entryDir(name, version)
	if _, err := os.Stat(dir); err != nil {
		return "", nil
	}

	wasmPath := filepath.Join(dir, cachedBinaryName)
	metaPath := filepath.Join(dir, cachedMetadataName)

	meta, err := readMetadata(metaPath)
	if err != nil {
		slog.Debug("cache entry has unreadable metadata, treating as miss", "plugin", name, "version", version, "error", err)
		return "", nil
	}

	data, err := os.ReadFile(wasmPath)
	if err != nil {
		return "", nil
	}

	if err := checksum.Verify(data, meta.Checksum); err != nil {
		slog.Warn("cached plugin failed checksum verification, treating as miss", "plugin", name, "version", version, "error", err)
		return "", nil
	}

	return wasmPath, nil
}

// CachedEntry pairs a cache directory with its metadata.
type CachedEntry struct {
	Name     string
	Version  string
	Metadata CacheMetadata
}

// List scans the cache directory for <name>@<version> entries.
func (c *Cache) List() ([]CachedEntry, error) {
	dir := c.pluginsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plugin cache directory: %w", err)
	}

	var result []CachedEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, version, ok := strings.Cut(entry.Name(), "@")
		if !ok {
			continue
		}
		meta, err := readMetadata(filepath.Join(dir, entry.Name(), cachedMetadataName))
		if err != nil {
			continue
		}
		result = append(result, CachedEntry{Name: name, Version: version, Metadata: meta})
	}
	return result, nil
}

// ClearPlugin removes every cached version of one plugin.
func (c *Cache) ClearPlugin(name string) error {
	dir := c.pluginsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read plugin cache directory: %w", err)
	}

	for _, entry := range entries {
		entryName, _, ok := strings.Cut(entry.Name(), "@")
		if !ok || entryName != name {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove cache for plugin %q: %w", name, err)
		}
	}
	return nil
}

// ClearAll removes the entire plugin cache and recreates the empty directory.
func (c *Cache) ClearAll() error {
	dir := c.pluginsDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove plugin cache directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to recreate plugin cache directory: %w", err)
	}
	return nil
}

func readMetadata(path string) (CacheMetadata, error) {
	var meta CacheMetadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("invalid cache metadata: %w", err)
	}
	return meta, nil
}
