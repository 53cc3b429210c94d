// Package project loads the cdm.json project descriptor: the schema document
// and the plugin imports the pipeline operates on.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cdm-lang/cdm/internal/plugins"
	"github.com/cdm-lang/cdm/wireformat"
)

// DefaultFileName is the project descriptor looked up in the working
// directory when no path is given.
const DefaultFileName = "cdm.json"

// Project is the parsed project descriptor.
type Project struct {
	// Schema is an optional path to the resolved schema document, relative
	// to the descriptor.
	Schema  string      `json:"schema,omitempty"`
	Plugins []PluginRef `json:"plugins"`

	path string
}

// PluginRef declares one plugin the project uses. Exactly one of Path and Git
// may be set; neither means registry resolution. GitPath names an in-repo
// subdirectory for git sources.
type PluginRef struct {
	Name    string          `json:"name"`
	Path    string          `json:"path,omitempty"`
	Git     string          `json:"git,omitempty"`
	GitPath string          `json:"git_path,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Load reads and validates a project descriptor.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file %s: %w", path, err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project file %s: %w", path, err)
	}
	p.path = path

	seen := make(map[string]bool, len(p.Plugins))
	for _, ref := range p.Plugins {
		if ref.Name == "" {
			return nil, fmt.Errorf("project file %s: plugin entry without a name", path)
		}
		if ref.Path != "" && ref.Git != "" {
			return nil, fmt.Errorf("plugin %q declares both path and git sources", ref.Name)
		}
		if seen[ref.Name] {
			return nil, fmt.Errorf("plugin %q declared twice", ref.Name)
		}
		seen[ref.Name] = true
	}

	return &p, nil
}

// Imports converts the plugin declarations into resolver imports.
func (p *Project) Imports() []plugins.Import {
	imports := make([]plugins.Import, 0, len(p.Plugins))
	for _, ref := range p.Plugins {
		imp := plugins.Import{
			Name:         ref.Name,
			GlobalConfig: ref.Config,
			SourceFile:   p.path,
		}
		switch {
		case ref.Path != "":
			imp.Source = plugins.Source{Kind: plugins.SourcePath, Path: ref.Path}
		case ref.Git != "":
			imp.Source = plugins.Source{Kind: plugins.SourceGit, URL: ref.Git, Path: ref.GitPath}
		}
		imports = append(imports, imp)
	}
	return imports
}

// LoadSchema reads the project's schema document, or an empty schema when
// none is declared. A relative schema path resolves against the descriptor's
// directory, not the process working directory.
func (p *Project) LoadSchema() (wireformat.Schema, error) {
	var schema wireformat.Schema
	if p.Schema == "" {
		return schema, nil
	}

	path := p.Schema
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(p.path), path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return schema, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	return schema, nil
}
