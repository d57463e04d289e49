// Package store persists conversation state across bot restarts: which
// directories are scanned for projects, which projects were found, and which
// codex thread continues each chat's conversation per project.
//
// The whole state lives in one versioned JSON document rewritten atomically
// (temp file plus rename) on every mutation. A document with an unrecognized
// version is refused rather than migrated silently.
package store
