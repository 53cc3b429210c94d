package plugins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeGitURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/user/repo.git", "github_com_user_repo"},
		{"https://github.com/user/repo", "github_com_user_repo"},
		{"http://example.com/a/b.git", "example_com_a_b"},
		{"git://example.com/repo", "example_com_repo"},
		{"git@github.com:user/repo.git", "github_com_user_repo"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeGitURL(tt.url))
		})
	}
}

func TestSanitizeGitURLIsIdempotent(t *testing.T) {
	once := SanitizeGitURL("https://github.com/user/repo.git")
	assert.Equal(t, once, SanitizeGitURL(once))
}

func TestExtractWASMNoManifest(t *testing.T) {
	repo := t.TempDir()
	g := NewGitFetcher(t.TempDir())

	_, err := g.ExtractWASM(repo, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No cdm-plugin.json found in")
}

func TestExtractWASMSubdir(t *testing.T) {
	repo := t.TempDir()
	sub := filepath.Join(repo, "plugins", "auth")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeManifest(t, sub, `{"name":"auth","version":"1.0.0","wasm":{"file":"auth.wasm"}}`)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "auth.wasm"), []byte("\x00asm"), 0o644))

	g := NewGitFetcher(t.TempDir())
	path, err := g.ExtractWASM(repo, filepath.Join("plugins", "auth"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sub, "auth.wasm"), path)
}

func TestExtractWASMSubdirErrorNamesSubdir(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "nested"), 0o755))

	g := NewGitFetcher(t.TempDir())
	_, err := g.ExtractWASM(repo, "nested")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `repository subdirectory "nested"`)
}

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(content), 0o644))
}
