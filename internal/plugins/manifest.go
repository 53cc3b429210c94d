package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFileName is the plugin manifest every path- and git-sourced plugin
// directory must carry.
const ManifestFileName = "cdm-plugin.json"

// Manifest is the cdm-plugin.json structure.
type Manifest struct {
	Name    string       `json:"name"`
	Version string       `json:"version"`
	Wasm    ManifestWasm `json:"wasm"`
}

// ManifestWasm locates the compiled binary relative to the manifest.
type ManifestWasm struct {
	File string `json:"file"`
}

// resolveManifestWasm reads the manifest in dir and returns the absolute path
// of the WASM binary it points at. Each failure mode gets its own greppable
// message so diagnostics stay actionable.
func resolveManifestWasm(dir string) (string, error) {
	manifestPath := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("No cdm-plugin.json found in %s", dir)
		}
		return "", fmt.Errorf("failed to read %s: %w", manifestPath, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", fmt.Errorf("failed to parse cdm-plugin.json: %w", err)
	}

	if manifest.Wasm.File == "" {
		return "", fmt.Errorf("No wasm.file specified in cdm-plugin.json")
	}

	wasmPath := filepath.Join(dir, manifest.Wasm.File)
	if _, err := os.Stat(wasmPath); err != nil {
		return "", fmt.Errorf("WASM file not found: %s (specified in cdm-plugin.json as %q)", wasmPath, manifest.Wasm.File)
	}

	return wasmPath, nil
}
