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
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	// DefaultRegistryURL is the built-in plugin index location.
	DefaultRegistryURL = "https://raw.githubusercontent.com/cdm-lang/cdm/refs/heads/main/registry.json"

	// DefaultCacheTTL is how long a fetched index stays fresh.
	DefaultCacheTTL = 24 * time.Hour

	registryFetchTimeout = 30 * time.Second
)

// Registry is the full plugin index.
type Registry struct {
	Version   uint32                    `json:"version"`
	UpdatedAt string                    `json:"updated_at"`
	Plugins   map[string]RegistryPlugin `json:"plugins"`
}

// RegistryPlugin is one plugin's entry in the index. Latest must name a key
// of Versions; when a registry violates that, version resolution falls back
// to the maximum parsed semantic version.
type RegistryPlugin struct {
	Description string                     `json:"description"`
	Repository  string                     `json:"repository"`
	Official    bool                       `json:"official"`
	Versions    map[string]RegistryVersion `json:"versions"`
	Latest      string                     `json:"latest"`
}

// RegistryVersion locates and pins one published version.
type RegistryVersion struct {
	WasmURL  string `json:"wasm_url"`
	Checksum string `json:"checksum"`
}

// indexMeta is the TTL sidecar for a cached index file.
type indexMeta struct {
	FetchedAt int64 `json:"fetched_at"`
	ExpiresAt int64 `json:"expires_at"`
}

// indexCache fetches a remote JSON index and caches the raw bytes beside a
// TTL sidecar. The plugin registry and the template registry share it with
// different file name pairs.
type indexCache struct {
	url       string
	cacheRoot string
	ttl       time.Duration
	now       func() time.Time
	client    *http.Client

	fileName     string
	metaFileName string
}

// load returns fresh cached bytes, fetching when the cache is stale.
func (c *indexCache) load() ([]byte, error) {
	if data, ok := c.loadFresh(); ok {
		return data, nil
	}
	return c.refresh()
}

// loadAny returns cached bytes regardless of freshness, without network I/O.
func (c *indexCache) loadAny() ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(c.cacheRoot, c.fileName))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *indexCache) loadFresh() ([]byte, bool) {
	metaData, err := os.ReadFile(filepath.Join(c.cacheRoot, c.metaFileName))
	if err != nil {
		return nil, false
	}
	var meta indexMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, false
	}
	if c.now().Unix() >= meta.ExpiresAt {
		return nil, false
	}
	return c.loadAny()
}

func (c *indexCache) refresh() ([]byte, error) {
	slog.Debug("fetching registry index", "url", c.url)

	resp, err := c.client.Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch registry: HTTP %d from %s", resp.StatusCode, c.url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry response: %w", err)
	}

	if err := c.writeCache(data); err != nil {
		// A failed cache write should not block resolution; the fetched
		// index is still usable.
		slog.Warn("failed to cache registry index", "url", c.url, "error", err)
	}

	return data, nil
}

func (c *indexCache) writeCache(data []byte) error {
	if err := os.MkdirAll(c.cacheRoot, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(c.cacheRoot, c.fileName), data, 0o644); err != nil {
		return err
	}

	now := c.now().Unix()
	meta := indexMeta{
		FetchedAt: now,
		ExpiresAt: now + int64(c.ttl/time.Second),
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.cacheRoot, c.metaFileName), metaJSON, 0o644)
}

// RegistryClient loads the plugin index, serving a cached copy while it is
// within its TTL. URL, cache root, TTL and clock are injected so tests run
// against httptest servers and fixed clocks.
type RegistryClient struct {
	cache *indexCache
}

// RegistryOption customizes a RegistryClient or TemplateClient.
type RegistryOption func(*indexCache)

// WithRegistryClock overrides the client's clock.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(c *indexCache) { c.now = now }
}

// WithRegistryHTTPClient overrides the fetch client.
func WithRegistryHTTPClient(client *http.Client) RegistryOption {
	return func(c *indexCache) { c.client = client }
}

func newIndexCache(url, cacheRoot string, ttl time.Duration, fileName, metaFileName string, opts []RegistryOption) *indexCache {
	c := &indexCache{
		url:          url,
		cacheRoot:    cacheRoot,
		ttl:          ttl,
		now:          time.Now,
		fileName:     fileName,
		metaFileName: metaFileName,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		rc := retryablehttp.NewClient()
		rc.HTTPClient.Timeout = registryFetchTimeout
		rc.Logger = nil
		c.client = rc.StandardClient()
	}
	return c
}

// NewRegistryClient creates a client for the index at url, caching under
// cacheRoot as registry.json + registry.meta.json.
func NewRegistryClient(url, cacheRoot string, ttl time.Duration, opts ...RegistryOption) *RegistryClient {
	return &RegistryClient{
		cache: newIndexCache(url, cacheRoot, ttl, "registry.json", "registry.meta.json", opts),
	}
}

// URL reports the configured index location, for cache provenance.
func (r *RegistryClient) URL() string {
	return r.cache.url
}

// Load returns the cached index while it is fresh, fetching otherwise.
func (r *RegistryClient) Load() (*Registry, error) {
	data, err := r.cache.load()
	if err != nil {
		return nil, err
	}
	return decodeRegistry(data)
}

// LoadCachedOnly returns the cached index regardless of freshness, without
// any network traffic. Used by interactive tooling that must never block.
func (r *RegistryClient) LoadCachedOnly() (*Registry, bool) {
	data, ok := r.cache.loadAny()
	if !ok {
		return nil, false
	}
	reg, err := decodeRegistry(data)
	if err != nil {
		return nil, false
	}
	return reg, true
}

// Refresh forces an index fetch and rewrites the cache pair.
func (r *RegistryClient) Refresh() (*Registry, error) {
	data, err := r.cache.refresh()
	if err != nil {
		return nil, err
	}
	return decodeRegistry(data)
}

func decodeRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse registry JSON: %w", err)
	}
	return &reg, nil
}

// CacheTTLFromEnv reads CDM_CACHE_TTL (seconds), falling back to the default.
func CacheTTLFromEnv() time.Duration {
	if s := os.Getenv("CDM_CACHE_TTL"); s != "" {
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultCacheTTL
}
