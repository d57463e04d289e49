package store

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// noiseDirs are cache, build-output, and dependency directories never worth
// descending into.
var noiseDirs = map[string]bool{
	".cache":        true,
	".idea":         true,
	".mypy_cache":   true,
	".pytest_cache": true,
	".tox":          true,
	".venv":         true,
	".vscode":       true,
	"__pycache__":   true,
	"build":         true,
	"dist":          true,
	"node_modules":  true,
	"target":        true,
	"vendor":        true,
}

// scanRoots walks every root and collects project directories. A directory
// containing a .git entry (directory or file, covering worktrees and
// submodules) is a project boundary: it is recorded and not descended into,
// so nested repositories never shadow an ancestor.
func scanRoots(roots []string, ignoreGlobs []string) map[string]Project {
	projects := make(map[string]Project)
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		scanDir(root, ignoreGlobs, projects)
	}
	return projects
}

func scanDir(dir string, ignoreGlobs []string, projects map[string]Project) {
	if matchesIgnore(dir, ignoreGlobs) {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.Name() == ".git" {
			projects[dir] = Project{Name: filepath.Base(dir), Path: dir}
			return
		}
	}

	for _, entry := range entries {
		if !entry.IsDir() || noiseDirs[entry.Name()] {
			continue
		}
		// Symlinked directories are not followed; entry.IsDir is false for
		// symlinks under os.ReadDir.
		scanDir(filepath.Join(dir, entry.Name()), ignoreGlobs, projects)
	}
}

func matchesIgnore(path string, globs []string) bool {
	for _, pattern := range globs {
		if match, err := doublestar.PathMatch(pattern, path); err == nil && match {
			return true
		}
	}
	return false
}
