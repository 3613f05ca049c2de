// Package docstore persists versioned JSON documents of the shape
// {_metadata: {created, updated, version}, entries: {key -> entry}}.
// Documents are loaded fully, mutated in memory, and atomically rewritten.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SchemaVersion is written into every document's metadata.
const SchemaVersion = 1

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// Metadata is the store-level bookkeeping block.
type Metadata struct {
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	Version int       `json:"version"`
}

type document[T any] struct {
	Metadata Metadata     `json:"_metadata"`
	Entries  map[string]T `json:"entries"`
}

// Store holds one durable document. Entries are only ever upserted, never
// deleted; the file is rewritten wholesale on Flush.
type Store[T any] struct {
	path  string
	doc   document[T]
	dirty bool
	clock Clock
}

// Open loads the document at path, creating an empty version-1 document
// in memory when the file does not exist yet.
func Open[T any](path string, clock Clock) (*Store[T], error) {
	s := &Store[T]{path: path, clock: clock}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		now := clock.Now()
		s.doc = document[T]{
			Metadata: Metadata{Created: now, Updated: now, Version: SchemaVersion},
			Entries:  make(map[string]T),
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parse document %s: %w", path, err)
	}
	if s.doc.Entries == nil {
		s.doc.Entries = make(map[string]T)
	}
	if s.doc.Metadata.Version == 0 {
		s.doc.Metadata.Version = SchemaVersion
	}
	return s, nil
}

// Upsert stores value under key. Re-upserting an identical value is
// harmless; only the updated timestamp moves on the next Flush.
func (s *Store[T]) Upsert(key string, value T) {
	s.doc.Entries[key] = value
	s.dirty = true
}

// Get returns the entry for key.
func (s *Store[T]) Get(key string) (T, bool) {
	v, ok := s.doc.Entries[key]
	return v, ok
}

// Len returns the number of entries.
func (s *Store[T]) Len() int {
	return len(s.doc.Entries)
}

// Metadata returns a copy of the document metadata.
func (s *Store[T]) Metadata() Metadata {
	return s.doc.Metadata
}

// Dirty reports whether the in-memory document differs from disk.
func (s *Store[T]) Dirty() bool {
	return s.dirty
}

// Flush rewrites the document when it has unsaved changes, refreshing the
// updated timestamp. A clean store is a no-op.
func (s *Store[T]) Flush() error {
	if !s.dirty {
		return nil
	}
	s.doc.Metadata.Updated = s.clock.Now()
	if err := WriteFileAtomic(s.path, s.doc); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// WriteFileAtomic marshals v and renames a temp file over path so a crash
// mid-write never leaves a truncated document behind.
func WriteFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck // already failing
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("replace document %s: %w", path, err)
	}
	return nil
}
