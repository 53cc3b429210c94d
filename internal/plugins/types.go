// Package plugins resolves plugin imports to local WASM binaries. A plugin
// can come from a path next to the schema file, a git repository, or the CDM
// registry; downloaded artifacts are checksum-verified and cached under the
// user cache directory.
package plugins

import (
	"encoding/json"
	"path/filepath"
)

// SourceKind discriminates the plugin source union.
type SourceKind int

const (
	// SourceNone means no `from` clause: try ./plugins/<name>.wasm, then the registry.
	SourceNone SourceKind = iota
	// SourcePath is a filesystem path relative to the importing schema file.
	SourcePath
	// SourceGit is a git repository URL with an optional in-repo subdirectory.
	SourceGit
)

// Source describes where a plugin import points.
type Source struct {
	Kind SourceKind
	// Path is the relative directory for SourcePath, or the optional in-repo
	// subdirectory for SourceGit.
	Path string
	// URL is the repository URL for SourceGit.
	URL string
}

// Import is one @plugin directive encountered while loading a schema tree.
// It is produced by the schema loader and read-only input to the resolver.
type Import struct {
	Name         string
	Source       Source
	GlobalConfig json.RawMessage
	// SourceFile is the schema file the directive appeared in; path sources
	// resolve relative to its directory.
	SourceFile string
}

// SourceDir returns the directory of the importing schema file.
func (i Import) SourceDir() string {
	return filepath.Dir(i.SourceFile)
}

// configString extracts a string key from the import's global config block.
func (i Import) configString(key string) string {
	if len(i.GlobalConfig) == 0 {
		return ""
	}
	var cfg map[string]json.RawMessage
	if err := json.Unmarshal(i.GlobalConfig, &cfg); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(cfg[key], &s); err != nil {
		return ""
	}
	return s
}

// CacheSourceKind discriminates where a cached artifact came from.
type CacheSourceKind string

const (
	CacheSourceRegistry CacheSourceKind = "registry"
	CacheSourceGit      CacheSourceKind = "git"
	CacheSourceLocal    CacheSourceKind = "local"
)

// CacheSource records the provenance of a cached plugin binary.
type CacheSource struct {
	Kind        CacheSourceKind `json:"kind"`
	RegistryURL string          `json:"registry_url,omitempty"`
	URL         string          `json:"url,omitempty"`
	Commit      string          `json:"commit,omitempty"`
	Path        string          `json:"path,omitempty"`
}

// CacheMetadata is the JSON sidecar persisted beside every cached binary.
// It is re-verified on every cache read, never trusted blindly.
type CacheMetadata struct {
	PluginName   string      `json:"plugin_name"`
	Version      string      `json:"version"`
	DownloadedAt string      `json:"downloaded_at"`
	Source       CacheSource `json:"source"`
	Checksum     string      `json:"checksum"`
}
