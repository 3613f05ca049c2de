package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lmei/steamscout/internal/catalog"
	"github.com/lmei/steamscout/internal/docstore"
)

// quarantineDoc is the on-disk shape: {"invalid_or_failed": [...]}.
type quarantineDoc struct {
	InvalidOrFailed []catalog.QuarantineEntry `json:"invalid_or_failed"`
}

// Quarantine is the durable record of permanently failed identifiers.
// Entries are de-duplicated by id, and entries older than the retention
// window are dropped when the document is loaded.
type Quarantine struct {
	path    string
	entries map[catalog.AppID]catalog.QuarantineEntry
	order   []catalog.AppID
	dirty   bool
	clock   docstore.Clock
}

// OpenQuarantine loads the quarantine document at path, pruning expired
// entries.
func OpenQuarantine(path string, retention time.Duration, clock docstore.Clock) (*Quarantine, error) {
	q := &Quarantine{
		path:    path,
		entries: make(map[catalog.AppID]catalog.QuarantineEntry),
		clock:   clock,
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return q, nil
	case err != nil:
		return nil, fmt.Errorf("read quarantine %s: %w", path, err)
	}

	var doc quarantineDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse quarantine %s: %w", path, err)
	}

	cutoff := clock.Now().Add(-retention)
	for _, e := range doc.InvalidOrFailed {
		if retention > 0 && e.Timestamp.Before(cutoff) {
			// Expired entries are dropped; the next flush persists the prune.
			q.dirty = true
			continue
		}
		if _, seen := q.entries[e.AppID]; seen {
			continue
		}
		q.entries[e.AppID] = e
		q.order = append(q.order, e.AppID)
	}
	return q, nil
}

// Add records entry unless the id is already quarantined. Returns true
// when the entry is new.
func (q *Quarantine) Add(entry catalog.QuarantineEntry) bool {
	if _, seen := q.entries[entry.AppID]; seen {
		return false
	}
	q.entries[entry.AppID] = entry
	q.order = append(q.order, entry.AppID)
	q.dirty = true
	return true
}

// Contains reports whether id is quarantined.
func (q *Quarantine) Contains(id catalog.AppID) bool {
	_, ok := q.entries[id]
	return ok
}

// Len returns the number of quarantined identifiers.
func (q *Quarantine) Len() int {
	return len(q.entries)
}

// Flush rewrites the document when it changed, in insertion order.
func (q *Quarantine) Flush() error {
	if !q.dirty {
		return nil
	}
	doc := quarantineDoc{InvalidOrFailed: make([]catalog.QuarantineEntry, 0, len(q.order))}
	for _, id := range q.order {
		doc.InvalidOrFailed = append(doc.InvalidOrFailed, q.entries[id])
	}
	if err := docstore.WriteFileAtomic(q.path, doc); err != nil {
		return err
	}
	q.dirty = false
	return nil
}
