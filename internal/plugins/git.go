package plugins

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitFetcher clones plugin repositories into the cache and extracts WASM
// binaries via the cdm-plugin.json manifest convention.
type GitFetcher struct {
	cacheRoot string
}

// NewGitFetcher creates a fetcher storing repositories under
// <cacheRoot>/git/<sanitized-url>.
func NewGitFetcher(cacheRoot string) *GitFetcher {
	return &GitFetcher{cacheRoot: cacheRoot}
}

// SanitizeGitURL turns a repository URL into a deterministic directory name:
// scheme and .git suffix stripped, ':' '/' '.' replaced with '_'. Repeated
// resolutions of the same URL converge on the same cache path, so no lock
// file is needed.
func SanitizeGitURL(url string) string {
	s := strings.TrimSuffix(url, ".git")
	for _, prefix := range []string{"https://", "http://", "git://", "git@"} {
		s = strings.Replace(s, prefix, "", 1)
	}
	replacer := strings.NewReplacer(":", "_", "/", "_", ".", "_")
	return replacer.Replace(s)
}

// CloneOrUpdate makes sure the repository is present at the requested ref and
// returns its cache path. A missing directory gets a shallow clone; an
// existing one gets fetch, checkout and pull. Any non-zero git exit status is
// surfaced with its captured stderr.
func (g *GitFetcher) CloneOrUpdate(url, gitRef string) (string, error) {
	gitDir := filepath.Join(g.cacheRoot, "git")
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create git cache directory: %w", err)
	}

	repoPath := filepath.Join(gitDir, SanitizeGitURL(url))

	if _, err := os.Stat(repoPath); os.IsNotExist(err) {
		slog.Info("cloning plugin repository", "url", url, "ref", gitRef)
		if err := runGit("", "clone", "--depth=1", "--branch", gitRef, url, repoPath); err != nil {
			return "", err
		}
		return repoPath, nil
	}

	slog.Info("updating plugin repository", "path", repoPath, "ref", gitRef)
	for _, args := range [][]string{
		{"fetch", "origin", gitRef},
		{"checkout", gitRef},
		{"pull", "origin", gitRef},
	} {
		if err := runGit(repoPath, args...); err != nil {
			return "", err
		}
	}
	return repoPath, nil
}

// ExtractWASM locates the WASM binary in a cloned repository through its
// manifest, optionally rooted at an in-repo subdirectory.
func (g *GitFetcher) ExtractWASM(repoPath, subdir string) (string, error) {
	base := repoPath
	if subdir != "" {
		base = filepath.Join(repoPath, subdir)
	}

	wasmPath, err := resolveManifestWasm(base)
	if err != nil {
		if subdir != "" {
			return "", fmt.Errorf("%w (repository subdirectory %q)", err, subdir)
		}
		return "", err
	}
	return wasmPath, nil
}

// HeadCommit reports the checked-out commit hash, for cache provenance.
func (g *GitFetcher) HeadCommit(repoPath string) string {
	out, err := exec.Command("git", "-C", repoPath, "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// runGit executes one git subcommand with prompts disabled, returning stderr
// verbatim on failure.
func runGit(repoPath string, args ...string) error {
	if repoPath != "" {
		args = append([]string{"-C", repoPath}, args...)
	}

	cmd := exec.Command("git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	subcommand := args[0]
	if subcommand == "-C" && len(args) > 2 {
		subcommand = args[2]
	}

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("git %s failed:\n%s", subcommand, stderr.String())
		}
		return fmt.Errorf("failed to execute git %s (is git installed?): %w", subcommand, err)
	}
	return nil
}
