package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/m4xw311/codexgram/errors"
)

// DataVersion is the persisted document layout version. Loading any other
// version fails loudly instead of guessing a migration.
const DataVersion = 1

// Project is a discovered version-controlled directory. Path is the unique
// key; Name is the directory basename and may repeat across projects.
type Project struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ChatState is the per-chat conversation context: which project the chat is
// pointed at and which thread id continues each conversation.
type ChatState struct {
	CurrentProject   string            `json:"current_project,omitempty"`
	ThreadsByProject map[string]string `json:"threads_by_project,omitempty"`
	DefaultThreadID  string            `json:"default_thread_id,omitempty"`
}

// ConfigVersionError reports a persisted document whose version this build
// does not understand.
type ConfigVersionError struct {
	Path    string
	Version int
}

func (e *ConfigVersionError) Error() string {
	return fmt.Sprintf("unsupported project data version %d in %s", e.Version, e.Path)
}

// Store is the durable mapping of chats and projects to conversation
// threads, plus the root registry that feeds project discovery. All
// operations serialize under one lock and every mutation rewrites the full
// document atomically, so a crash mid-write never corrupts committed state.
type Store struct {
	mu   sync.Mutex
	path string

	ignoreGlobs []string

	roots    []string
	projects map[string]Project
	chats    map[int64]*ChatState
}

// Option configures a Store before Initialize.
type Option func(*Store)

// WithIgnoreGlobs adds user-defined glob patterns that project discovery
// skips, on top of the built-in noise directory set.
func WithIgnoreGlobs(globs []string) Option {
	return func(s *Store) { s.ignoreGlobs = globs }
}

// New creates a store persisting to path. Call Initialize before use.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:     path,
		projects: make(map[string]Project),
		chats:    make(map[int64]*ChatState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads the persisted document, or starts empty when none exists.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Path returns the persistence location.
func (s *Store) Path() string { return s.path }

// AddRoot registers a directory to scan for projects. It returns whether the
// root was new plus its normalized path, and rescans on success. Fails when
// the path is not an existing directory.
func (s *Store) AddRoot(rawPath string) (bool, string, error) {
	normalized, err := NormalizePath(rawPath)
	if err != nil {
		return false, "", err
	}
	info, err := os.Stat(normalized)
	if err != nil || !info.IsDir() {
		return false, "", errors.New("root does not exist or is not a directory: %s", rawPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, root := range s.roots {
		if root == normalized {
			return false, normalized, nil
		}
	}
	s.roots = append(s.roots, normalized)
	sort.Strings(s.roots)
	if err := s.rescanLocked(); err != nil {
		return false, "", err
	}
	return true, normalized, nil
}

// RemoveRoot unregisters a root and rescans. Returns whether it was present.
func (s *Store) RemoveRoot(rawPath string) (bool, error) {
	normalized, err := NormalizePath(rawPath)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.roots[:0]
	removed := false
	for _, root := range s.roots {
		if root == normalized {
			removed = true
			continue
		}
		kept = append(kept, root)
	}
	if !removed {
		return false, nil
	}
	s.roots = kept
	if err := s.rescanLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Rescan re-walks every root, replaces the project set, and prunes chat
// state that references projects no longer known.
func (s *Store) Rescan() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rescanLocked(); err != nil {
		return 0, err
	}
	return len(s.projects), nil
}

func (s *Store) rescanLocked() error {
	s.projects = scanRoots(s.roots, s.ignoreGlobs)
	s.pruneLocked()
	return s.save()
}

// pruneLocked drops dangling project references so chat state always points
// at currently-known projects.
func (s *Store) pruneLocked() {
	for _, chat := range s.chats {
		if chat.CurrentProject != "" {
			if _, ok := s.projects[chat.CurrentProject]; !ok {
				chat.CurrentProject = ""
			}
		}
		for path := range chat.ThreadsByProject {
			if _, ok := s.projects[path]; !ok {
				delete(chat.ThreadsByProject, path)
			}
		}
	}
}

// ListRoots returns the registered roots in sorted order.
func (s *Store) ListRoots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// ListProjects returns every known project sorted by name then path, for
// deterministic display.
func (s *Store) ListProjects() []Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// GetProject looks a project up by its normalized path.
func (s *Store) GetProject(path string) (Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[path]
	return p, ok
}

// GetCurrentProject returns the chat's selected project path, empty when
// none is selected.
func (s *Store) GetCurrentProject(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		return chat.CurrentProject
	}
	return ""
}

// SetCurrentProject selects (or, with an empty path, clears) the chat's
// project.
func (s *Store) SetCurrentProject(chatID int64, projectPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatLocked(chatID).CurrentProject = projectPath
	return s.save()
}

// GetThreadID returns the thread continuing the chat's conversation for the
// given project, or the chat's default thread when projectPath is empty.
func (s *Store) GetThreadID(chatID int64, projectPath string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return ""
	}
	if projectPath != "" {
		return chat.ThreadsByProject[projectPath]
	}
	return chat.DefaultThreadID
}

// SetThreadID records the thread id for the chat's (project-scoped or
// default) conversation.
func (s *Store) SetThreadID(chatID int64, threadID, projectPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat := s.chatLocked(chatID)
	if projectPath != "" {
		if chat.ThreadsByProject == nil {
			chat.ThreadsByProject = make(map[string]string)
		}
		chat.ThreadsByProject[projectPath] = threadID
	} else {
		chat.DefaultThreadID = threadID
	}
	return s.save()
}

// ResetThreadID forgets the chat's conversation for the given project (or
// the default conversation when projectPath is empty). With all set, every
// mapping for the chat is cleared.
func (s *Store) ResetThreadID(chatID int64, projectPath string, all bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	switch {
	case all:
		chat.DefaultThreadID = ""
		chat.ThreadsByProject = nil
	case projectPath != "":
		delete(chat.ThreadsByProject, projectPath)
	default:
		chat.DefaultThreadID = ""
	}
	return s.save()
}

func (s *Store) chatLocked(chatID int64) *ChatState {
	chat, ok := s.chats[chatID]
	if !ok {
		chat = &ChatState{}
		s.chats[chatID] = chat
	}
	return chat
}

// NormalizePath expands ~ and resolves a path to its cleaned absolute form.
func NormalizePath(rawPath string) (string, error) {
	path := rawPath
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrapf(err, "could not expand ~ in %s", rawPath)
		}
		path = filepath.Join(home, path[1:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve path %s", rawPath)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// document is the persisted JSON layout. Chat ids are serialized as strings
// since JSON object keys must be strings.
type document struct {
	Version   int                   `json:"version"`
	Roots     []string              `json:"roots"`
	Projects  map[string]Project    `json:"projects"`
	ChatState map[string]*ChatState `json:"chat_state"`
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "could not read %s", s.path)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(err, "could not parse %s", s.path)
	}
	if doc.Version != DataVersion {
		return &ConfigVersionError{Path: s.path, Version: doc.Version}
	}

	s.roots = s.roots[:0]
	for _, root := range doc.Roots {
		if normalized, err := NormalizePath(root); err == nil {
			s.roots = append(s.roots, normalized)
		}
	}
	sort.Strings(s.roots)

	s.projects = make(map[string]Project, len(doc.Projects))
	for path, p := range doc.Projects {
		if p.Path == "" {
			p.Path = path
		}
		if p.Name == "" || p.Path == "" {
			continue
		}
		s.projects[p.Path] = p
	}

	s.chats = make(map[int64]*ChatState, len(doc.ChatState))
	for rawID, chat := range doc.ChatState {
		chatID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || chat == nil {
			continue
		}
		s.chats[chatID] = chat
	}
	return nil
}

// save writes the full state through a temp file and an atomic rename, so
// readers never observe a partially written document. Callers hold s.mu.
func (s *Store) save() error {
	doc := document{
		Version:   DataVersion,
		Roots:     append([]string{}, s.roots...),
		Projects:  s.projects,
		ChatState: make(map[string]*ChatState, len(s.chats)),
	}
	if doc.Roots == nil {
		doc.Roots = []string{}
	}
	for chatID, chat := range s.chats {
		doc.ChatState[strconv.FormatInt(chatID, 10)] = chat
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize store")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrapf(err, "could not create store directory")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "could not write %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "could not commit %s", s.path)
	}
	return nil
}
