package plugins

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryFixture = `{
  "version": 1,
  "updated_at": "2026-01-15T00:00:00Z",
  "plugins": {
    "auth": {
      "description": "Authentication helpers",
      "repository": "https://github.com/cdm-lang/plugin-auth",
      "official": true,
      "versions": {
        "1.0.0": {"wasm_url": "https://example.com/auth-1.0.0.wasm", "checksum": "sha256:aa"},
        "1.1.0": {"wasm_url": "https://example.com/auth-1.1.0.wasm", "checksum": "sha256:bb"}
      },
      "latest": "1.1.0"
    }
  }
}`

func countingRegistryServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(registryFixture))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRegistryLoadFetchesAndCaches(t *testing.T) {
	var hits atomic.Int64
	srv := countingRegistryServer(t, &hits)

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	client := NewRegistryClient(srv.URL, t.TempDir(), DefaultCacheTTL,
		WithRegistryClock(func() time.Time { return now }),
		WithRegistryHTTPClient(srv.Client()))

	reg, err := client.Load()
	require.NoError(t, err)
	require.Contains(t, reg.Plugins, "auth")
	assert.Equal(t, "1.1.0", reg.Plugins["auth"].Latest)
	assert.True(t, reg.Plugins["auth"].Official)
	assert.EqualValues(t, 1, hits.Load())

	// Second load within the TTL must be served from disk.
	_, err = client.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestRegistryLoadRefetchesWhenStale(t *testing.T) {
	var hits atomic.Int64
	srv := countingRegistryServer(t, &hits)

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	client := NewRegistryClient(srv.URL, t.TempDir(), time.Hour,
		WithRegistryClock(func() time.Time { return now }),
		WithRegistryHTTPClient(srv.Client()))

	_, err := client.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())

	now = now.Add(2 * time.Hour)
	_, err = client.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestRegistryLoadCachedOnly(t *testing.T) {
	var hits atomic.Int64
	srv := countingRegistryServer(t, &hits)

	cacheRoot := t.TempDir()
	client := NewRegistryClient(srv.URL, cacheRoot, DefaultCacheTTL,
		WithRegistryHTTPClient(srv.Client()))

	// Nothing cached yet.
	_, ok := client.LoadCachedOnly()
	assert.False(t, ok)

	_, err := client.Load()
	require.NoError(t, err)

	// A stale cache is still served; cached-only never fetches.
	reg, ok := client.LoadCachedOnly()
	require.True(t, ok)
	assert.Contains(t, reg.Plugins, "auth")
	assert.EqualValues(t, 1, hits.Load())
}

func TestRegistryRefreshForcesFetch(t *testing.T) {
	var hits atomic.Int64
	srv := countingRegistryServer(t, &hits)

	client := NewRegistryClient(srv.URL, t.TempDir(), DefaultCacheTTL,
		WithRegistryHTTPClient(srv.Client()))

	_, err := client.Load()
	require.NoError(t, err)
	_, err = client.Refresh()
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestRegistryLoadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	plain := &http.Client{}
	client := NewRegistryClient(srv.URL, t.TempDir(), DefaultCacheTTL,
		WithRegistryHTTPClient(plain))

	_, err := client.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestRegistryLoadMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	client := NewRegistryClient(srv.URL, t.TempDir(), DefaultCacheTTL,
		WithRegistryHTTPClient(srv.Client()))

	_, err := client.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse registry JSON")
}

func TestTemplateClientLoad(t *testing.T) {
	const fixture = `{
	  "version": 1,
	  "updated_at": "2026-01-15T00:00:00Z",
	  "templates": {
	    "api-service": {
	      "description": "REST API starter",
	      "versions": {
	        "1.0.0": {"git_url": "https://github.com/cdm-lang/template-api", "git_ref": "v1.0.0"}
	      },
	      "latest": "1.0.0"
	    }
	  }
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	client := NewTemplateClient(srv.URL, t.TempDir(), DefaultCacheTTL,
		WithRegistryHTTPClient(srv.Client()))

	reg, err := client.Load()
	require.NoError(t, err)
	require.Contains(t, reg.Templates, "api-service")
	assert.Equal(t, "v1.0.0", reg.Templates["api-service"].Versions["1.0.0"].GitRef)
}

func TestCacheTTLFromEnv(t *testing.T) {
	t.Setenv("CDM_CACHE_TTL", "3600")
	assert.Equal(t, time.Hour, CacheTTLFromEnv())

	t.Setenv("CDM_CACHE_TTL", "not-a-number")
	assert.Equal(t, DefaultCacheTTL, CacheTTLFromEnv())

	t.Setenv("CDM_CACHE_TTL", "")
	assert.Equal(t, DefaultCacheTTL, CacheTTLFromEnv())
}
