package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeProject lays down a directory with a .git marker under root.
func makeProject(t *testing.T, root string, parts ...string) string {
	t.Helper()
	dir := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	return dir
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "data", "projects.json"))
	require.NoError(t, s.Initialize())
	return s
}

func TestAddRootDiscoversProjects(t *testing.T) {
	root := t.TempDir()
	alpha := makeProject(t, root, "alpha")
	beta := makeProject(t, root, "nested", "beta")

	s := newTestStore(t)
	added, normalized, err := s.AddRoot(root)
	require.NoError(t, err)
	assert.True(t, added)
	assert.NotEmpty(t, normalized)

	projects := s.ListProjects()
	require.Len(t, projects, 2)
	assert.Equal(t, "alpha", projects[0].Name)
	assert.Equal(t, "beta", projects[1].Name)

	wantAlpha, err := NormalizePath(alpha)
	require.NoError(t, err)
	wantBeta, err := NormalizePath(beta)
	require.NoError(t, err)
	assert.Equal(t, wantAlpha, projects[0].Path)
	assert.Equal(t, wantBeta, projects[1].Path)
}

func TestAddRootIsIdempotent(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t)

	added, _, err := s.AddRoot(root)
	require.NoError(t, err)
	assert.True(t, added)

	added, _, err = s.AddRoot(root)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Len(t, s.ListRoots(), 1)
}

func TestAddRootRejectsMissingDirectory(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.AddRoot(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, _, err = s.AddRoot(file)
	assert.Error(t, err)
}

func TestScanStopsAtProjectBoundary(t *testing.T) {
	root := t.TempDir()
	outer := makeProject(t, root, "outer")
	// A repository nested inside another repository must not be listed.
	makeProject(t, outer, "inner")

	s := newTestStore(t)
	_, _, err := s.AddRoot(root)
	require.NoError(t, err)

	projects := s.ListProjects()
	require.Len(t, projects, 1)
	assert.Equal(t, "outer", projects[0].Name)
}

func TestScanRecognizesGitFileWorktrees(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "worktree")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// Worktrees and submodules carry .git as a file, not a directory.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git"), []byte("gitdir: /elsewhere\n"), 0o644))

	s := newTestStore(t)
	_, _, err := s.AddRoot(root)
	require.NoError(t, err)

	projects := s.ListProjects()
	require.Len(t, projects, 1)
	assert.Equal(t, "worktree", projects[0].Name)
}

func TestScanSkipsNoiseDirectories(t *testing.T) {
	root := t.TempDir()
	makeProject(t, root, "node_modules", "dep")
	makeProject(t, root, "sub", "vendor", "dep")
	makeProject(t, root, "real")

	s := newTestStore(t)
	_, _, err := s.AddRoot(root)
	require.NoError(t, err)

	projects := s.ListProjects()
	require.Len(t, projects, 1)
	assert.Equal(t, "real", projects[0].Name)
}

func TestScanHonorsIgnoreGlobs(t *testing.T) {
	root := t.TempDir()
	makeProject(t, root, "scratch-test")
	makeProject(t, root, "keeper")

	s := New(filepath.Join(t.TempDir(), "projects.json"),
		WithIgnoreGlobs([]string{"**/scratch-*"}))
	require.NoError(t, s.Initialize())

	_, _, err := s.AddRoot(root)
	require.NoError(t, err)

	projects := s.ListProjects()
	require.Len(t, projects, 1)
	assert.Equal(t, "keeper", projects[0].Name)
}

func TestRemoveRootDropsItsProjects(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	makeProject(t, rootA, "a")
	makeProject(t, rootB, "b")

	s := newTestStore(t)
	_, _, err := s.AddRoot(rootA)
	require.NoError(t, err)
	_, _, err = s.AddRoot(rootB)
	require.NoError(t, err)
	require.Len(t, s.ListProjects(), 2)

	removed, err := s.RemoveRoot(rootA)
	require.NoError(t, err)
	assert.True(t, removed)

	projects := s.ListProjects()
	require.Len(t, projects, 1)
	assert.Equal(t, "b", projects[0].Name)

	removed, err = s.RemoveRoot(rootA)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRescanPrunesDanglingChatState(t *testing.T) {
	root := t.TempDir()
	gone := makeProject(t, root, "gone")
	makeProject(t, root, "stays")

	s := newTestStore(t)
	_, _, err := s.AddRoot(root)
	require.NoError(t, err)

	gonePath, err := NormalizePath(gone)
	require.NoError(t, err)
	staysProjects := s.ListProjects()
	var staysPath string
	for _, p := range staysProjects {
		if p.Name == "stays" {
			staysPath = p.Path
		}
	}
	require.NotEmpty(t, staysPath)

	require.NoError(t, s.SetCurrentProject(42, gonePath))
	require.NoError(t, s.SetThreadID(42, "T-gone", gonePath))
	require.NoError(t, s.SetThreadID(42, "T-stays", staysPath))

	require.NoError(t, os.RemoveAll(gone))
	_, err = s.Rescan()
	require.NoError(t, err)

	assert.Empty(t, s.GetCurrentProject(42))
	assert.Empty(t, s.GetThreadID(42, gonePath))
	assert.Equal(t, "T-stays", s.GetThreadID(42, staysPath))
}

func TestThreadIDsPerChatAndProject(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetThreadID(1, "default-1", ""))
	require.NoError(t, s.SetThreadID(1, "proj-1", "/p/one"))
	require.NoError(t, s.SetThreadID(2, "default-2", ""))

	assert.Equal(t, "default-1", s.GetThreadID(1, ""))
	assert.Equal(t, "proj-1", s.GetThreadID(1, "/p/one"))
	assert.Equal(t, "default-2", s.GetThreadID(2, ""))
	assert.Empty(t, s.GetThreadID(2, "/p/one"))
	assert.Empty(t, s.GetThreadID(3, ""))
}

func TestResetThreadID(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetThreadID(1, "default", ""))
	require.NoError(t, s.SetThreadID(1, "scoped", "/p/one"))

	require.NoError(t, s.ResetThreadID(1, "/p/one", false))
	assert.Empty(t, s.GetThreadID(1, "/p/one"))
	assert.Equal(t, "default", s.GetThreadID(1, ""))

	require.NoError(t, s.SetThreadID(1, "scoped", "/p/one"))
	require.NoError(t, s.ResetThreadID(1, "", true))
	assert.Empty(t, s.GetThreadID(1, ""))
	assert.Empty(t, s.GetThreadID(1, "/p/one"))

	// Resetting an unknown chat is a no-op, not an error.
	require.NoError(t, s.ResetThreadID(99, "", true))
}

func TestStatePersistsAcrossReload(t *testing.T) {
	root := t.TempDir()
	makeProject(t, root, "proj")
	path := filepath.Join(t.TempDir(), "projects.json")

	s := New(path)
	require.NoError(t, s.Initialize())
	_, _, err := s.AddRoot(root)
	require.NoError(t, err)
	projects := s.ListProjects()
	require.Len(t, projects, 1)
	require.NoError(t, s.SetCurrentProject(7, projects[0].Path))
	require.NoError(t, s.SetThreadID(7, "T7", projects[0].Path))

	reloaded := New(path)
	require.NoError(t, reloaded.Initialize())
	assert.Equal(t, s.ListRoots(), reloaded.ListRoots())
	assert.Equal(t, projects, reloaded.ListProjects())
	assert.Equal(t, projects[0].Path, reloaded.GetCurrentProject(7))
	assert.Equal(t, "T7", reloaded.GetThreadID(7, projects[0].Path))
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	doc := map[string]any{"version": 2, "roots": []string{}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s := New(path)
	err = s.Initialize()
	var versionErr *ConfigVersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, 2, versionErr.Version)
	assert.Equal(t, path, versionErr.Path)
}

func TestInitializeWithoutFileStartsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, s.Initialize())
	assert.Empty(t, s.ListRoots())
	assert.Empty(t, s.ListProjects())
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.json")
	s := New(path)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.SetThreadID(1, "T1", ""))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "projects.json", entries[0].Name())
}

func TestNormalizePathExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := NormalizePath("~")
	require.NoError(t, err)
	wantHome, err := NormalizePath(home)
	require.NoError(t, err)
	assert.Equal(t, wantHome, got)

	got, err = NormalizePath("~/sub/dir")
	require.NoError(t, err)
	assert.Contains(t, got, "sub")
	assert.True(t, filepath.IsAbs(got))
}
