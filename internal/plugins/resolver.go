package plugins

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveOptions tunes a resolution pass.
type ResolveOptions struct {
	// CacheOnly forbids all network I/O: registry resolution only consults
	// already-cached entries. Interactive tooling (the LSP, capability
	// probes) uses this so it never blocks on the network.
	CacheOnly bool
}

// Resolver turns plugin imports into concrete local WASM paths, dispatching
// to local-path, git or registry resolution.
type Resolver struct {
	cache    *Cache
	git      *GitFetcher
	registry *RegistryClient
}

// NewResolver wires a resolver from its collaborators.
func NewResolver(cache *Cache, git *GitFetcher, registry *RegistryClient) *Resolver {
	return &Resolver{cache: cache, git: git, registry: registry}
}

// Resolve produces the filesystem path of the WASM binary for one import.
// Resolution failures are fatal for the plugin but carry actionable messages
// so the caller can log and continue with the remaining imports.
func (r *Resolver) Resolve(imp Import, opts ResolveOptions) (string, error) {
	switch imp.Source.Kind {
	case SourcePath:
		return r.resolvePath(imp)
	case SourceGit:
		return r.resolveGit(imp)
	default:
		return r.resolveDefault(imp, opts)
	}
}

// resolvePath handles `from ./path` imports: the directory next to the
// importing schema file must carry a manifest pointing at the binary.
func (r *Resolver) resolvePath(imp Import) (string, error) {
	dir := filepath.Join(imp.SourceDir(), imp.Source.Path)
	wasmPath, err := resolveManifestWasm(dir)
	if err != nil {
		return "", fmt.Errorf("plugin %q: %w", imp.Name, err)
	}
	return wasmPath, nil
}

// resolveGit handles `from git:...` imports. The ref comes from the import's
// global config (default "main"); an in-repo subdirectory from git_path in
// the config, falling back to the source's path component.
func (r *Resolver) resolveGit(imp Import) (string, error) {
	gitRef := imp.configString("git_ref")
	if gitRef == "" {
		gitRef = "main"
	}

	subdir := imp.configString("git_path")
	if subdir == "" {
		subdir = imp.Source.Path
	}

	repoPath, err := r.git.CloneOrUpdate(imp.Source.URL, gitRef)
	if err != nil {
		return "", fmt.Errorf("failed to clone git repository %q: %w", imp.Source.URL, err)
	}

	wasmPath, err := r.git.ExtractWASM(repoPath, subdir)
	if err != nil {
		return "", fmt.Errorf("failed to extract WASM from git repository: %w", err)
	}

	// Record the pinned commit in the cache so `plugins list` and cache-only
	// resolution see git plugins too. The binary is still served from the
	// clone; a recording failure is not a resolution failure.
	if commit := r.git.HeadCommit(repoPath); commit != "" {
		short := commit
		if len(short) > 12 {
			short = short[:12]
		}
		source := CacheSource{Kind: CacheSourceGit, URL: imp.Source.URL, Commit: commit, Path: subdir}
		if _, err := r.cache.CacheFromFile(imp.Name, short, wasmPath, source); err != nil {
			slog.Debug("failed to record git plugin in cache", "plugin", imp.Name, "error", err)
		}
	}
	return wasmPath, nil
}

// resolveDefault handles imports with no `from` clause: a project-local
// ./plugins/<name>.wasm override wins, then the registry.
func (r *Resolver) resolveDefault(imp Import, opts ResolveOptions) (string, error) {
	local := filepath.Join("plugins", imp.Name+".wasm")
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	return r.resolveRegistry(imp, opts)
}

// resolveRegistry resolves a plugin against the registry index: pick a
// version from the import's constraint, serve from cache when possible,
// download otherwise. In cache-only mode a miss is an actionable error
// instead of a download.
func (r *Resolver) resolveRegistry(imp Import, opts ResolveOptions) (string, error) {
	constraint, err := ParseConstraint(imp.configString("version"))
	if err != nil {
		return "", fmt.Errorf("plugin %q: invalid version constraint: %w", imp.Name, err)
	}

	if opts.CacheOnly {
		return r.resolveRegistryCacheOnly(imp, constraint)
	}

	reg, err := r.registry.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load plugin registry: %w (check your internet connection or set CDM_REGISTRY_URL)", err)
	}

	entry, ok := reg.Plugins[imp.Name]
	if !ok {
		return "", fmt.Errorf("plugin %q not found in registry%s", imp.Name, availablePluginsHint(reg))
	}

	version := ResolveVersion(constraint, entry.Versions, entry.Latest)
	if version == "" {
		return "", fmt.Errorf("no version matching %q found for plugin %q%s",
			constraint, imp.Name, availableVersionsHint(entry))
	}

	if path, err := r.cache.CachedPlugin(imp.Name, version); err == nil && path != "" {
		return path, nil
	}

	pinned := entry.Versions[version]
	path, err := r.cache.CachePlugin(imp.Name, version, pinned.WasmURL, pinned.Checksum, CacheSource{
		Kind:        CacheSourceRegistry,
		RegistryURL: r.registry.URL(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to download plugin %q: %w", imp.Name, err)
	}
	return path, nil
}

// resolveRegistryCacheOnly consults only local state: the cached index for
// version selection when present, otherwise the cache directory itself.
func (r *Resolver) resolveRegistryCacheOnly(imp Import, constraint Constraint) (string, error) {
	if reg, ok := r.registry.LoadCachedOnly(); ok {
		if entry, ok := reg.Plugins[imp.Name]; ok {
			if version := ResolveVersion(constraint, entry.Versions, entry.Latest); version != "" {
				if path, err := r.cache.CachedPlugin(imp.Name, version); err == nil && path != "" {
					return path, nil
				}
			}
		}
	}

	// No usable index; fall back to whatever versions are cached.
	if version := r.highestCachedVersion(imp.Name, constraint); version != "" {
		if path, err := r.cache.CachedPlugin(imp.Name, version); err == nil && path != "" {
			return path, nil
		}
	}

	return "", fmt.Errorf("Plugin '%s' not found in cache. Run 'cdm build' to download it.", imp.Name)
}

// highestCachedVersion scans cache entries for the best constraint match.
func (r *Resolver) highestCachedVersion(name string, constraint Constraint) string {
	entries, err := r.cache.List()
	if err != nil {
		return ""
	}

	var best string
	for _, entry := range entries {
		if entry.Name != name {
			continue
		}
		if constraint.Kind != ConstraintLatest && !MatchesConstraint(constraint, entry.Version) {
			continue
		}
		if best == "" || CompareVersions(entry.Version, best) > 0 {
			best = entry.Version
		}
	}
	return best
}

func availablePluginsHint(reg *Registry) string {
	names := make([]string, 0, 5)
	for name := range reg.Plugins {
		names = append(names, name)
		if len(names) == 5 {
			break
		}
	}
	if len(names) == 0 {
		return ""
	}
	return fmt.Sprintf(" (available plugins include: %s)", joinSorted(names))
}

func availableVersionsHint(entry RegistryPlugin) string {
	versions := make([]string, 0, 5)
	for v := range entry.Versions {
		versions = append(versions, v)
		if len(versions) == 5 {
			break
		}
	}
	if len(versions) == 0 {
		return ""
	}
	return fmt.Sprintf(" (available versions: %s)", joinSorted(versions))
}

func joinSorted(items []string) string {
	sort.Strings(items)
	return strings.Join(items, ", ")
}
