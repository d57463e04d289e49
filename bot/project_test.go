package bot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/codexgram/store"
)

func newBotWithProjects(t *testing.T, names ...string) *Bot {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name, ".git"), 0o755))
	}
	s := store.New(filepath.Join(t.TempDir(), "projects.json"))
	require.NoError(t, s.Initialize())
	_, _, err := s.AddRoot(root)
	require.NoError(t, err)
	return &Bot{store: s}
}

func TestResolveProjectByIndex(t *testing.T) {
	b := newBotWithProjects(t, "alpha", "beta")

	p, ok := b.resolveProject("1")
	require.True(t, ok)
	assert.Equal(t, "alpha", p.Name)

	p, ok = b.resolveProject("2")
	require.True(t, ok)
	assert.Equal(t, "beta", p.Name)

	_, ok = b.resolveProject("0")
	assert.False(t, ok)
	_, ok = b.resolveProject("3")
	assert.False(t, ok)
}

func TestResolveProjectByName(t *testing.T) {
	b := newBotWithProjects(t, "alpha", "beta")

	p, ok := b.resolveProject("beta")
	require.True(t, ok)
	assert.Equal(t, "beta", p.Name)

	// Name matching is case-insensitive.
	p, ok = b.resolveProject("ALPHA")
	require.True(t, ok)
	assert.Equal(t, "alpha", p.Name)

	_, ok = b.resolveProject("gamma")
	assert.False(t, ok)
}

func TestResolveProjectByPath(t *testing.T) {
	b := newBotWithProjects(t, "alpha")
	projects := b.store.ListProjects()
	require.Len(t, projects, 1)

	p, ok := b.resolveProject(projects[0].Path)
	require.True(t, ok)
	assert.Equal(t, projects[0], p)
}

func TestFormatProjectList(t *testing.T) {
	projects := []store.Project{
		{Name: "alpha", Path: "/src/alpha"},
		{Name: "beta", Path: "/src/beta"},
	}
	got := formatProjectList(projects, "/src/beta")
	want := "Projects:\n1. alpha - /src/alpha\n2. beta - /src/beta (current)\n"
	assert.Equal(t, want, got)
}

func TestSplitArg(t *testing.T) {
	cases := []struct {
		in    string
		first string
		rest  string
	}{
		{"", "", ""},
		{"use", "use", ""},
		{"use alpha", "use", "alpha"},
		{"  use   alpha beta  ", "use", "alpha beta"},
	}
	for _, tc := range cases {
		first, rest := splitArg(tc.in)
		assert.Equal(t, tc.first, first, "input %q", tc.in)
		assert.Equal(t, tc.rest, rest, "input %q", tc.in)
	}
}
