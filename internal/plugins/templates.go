package plugins

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTemplateRegistryURL is the built-in project template index location.
const DefaultTemplateRegistryURL = "https://raw.githubusercontent.com/cdm-lang/cdm/refs/heads/main/templates.json"

// TemplateRegistry is the project template index, cached under the same TTL
// scheme as the plugin registry but in its own templates.json pair.
type TemplateRegistry struct {
	Version   uint32                   `json:"version"`
	UpdatedAt string                   `json:"updated_at"`
	Templates map[string]TemplateEntry `json:"templates"`
}

// TemplateEntry is one template's entry in the index.
type TemplateEntry struct {
	Description string                     `json:"description"`
	Versions    map[string]TemplateVersion `json:"versions"`
	Latest      string                     `json:"latest"`
}

// TemplateVersion pins one published template version, either as a
// downloadable archive or a git ref.
type TemplateVersion struct {
	ArchiveURL string `json:"archive_url,omitempty"`
	GitURL     string `json:"git_url,omitempty"`
	GitRef     string `json:"git_ref,omitempty"`
	Checksum   string `json:"checksum,omitempty"`
}

// TemplateClient loads the template index.
type TemplateClient struct {
	cache *indexCache
}

// NewTemplateClient creates a client for the template index at url, caching
// under cacheRoot as templates.json + templates.meta.json.
func NewTemplateClient(url, cacheRoot string, ttl time.Duration, opts ...RegistryOption) *TemplateClient {
	return &TemplateClient{
		cache: newIndexCache(url, cacheRoot, ttl, "templates.json", "templates.meta.json", opts),
	}
}

// Load returns the cached template index while fresh, fetching otherwise.
func (t *TemplateClient) Load() (*TemplateRegistry, error) {
	data, err := t.cache.load()
	if err != nil {
		return nil, err
	}
	return decodeTemplates(data)
}

// Refresh forces a template index fetch.
func (t *TemplateClient) Refresh() (*TemplateRegistry, error) {
	data, err := t.cache.refresh()
	if err != nil {
		return nil, err
	}
	return decodeTemplates(data)
}

func decodeTemplates(data []byte) (*TemplateRegistry, error) {
	var reg TemplateRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse template registry JSON: %w", err)
	}
	return &reg, nil
}
