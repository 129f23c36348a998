/*
 * This file is part of Scribed (https://github.com/scribelabs/scribed).
 * Copyright (C) 2026 Scribe Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package transcripts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/scribelabs/scribed/internal/logging"
)

// Cache is an optional write-through performance cache over the index.
// Artifact filenames remain the source of truth; the cache is reset from a
// directory scan on every startup.
type Cache interface {
	Reset(records []Record) error
	Put(record Record) error
	Delete(id string) error
}

// Index is the process-wide in-memory transcript index keyed by id. The
// worker mutates status on completion; rename and delete handlers run on
// request goroutines. A single mutex covers both paths.
type Index struct {
	mu      sync.Mutex
	dir     string
	records map[string]*Record
	cache   Cache
}

// NewIndex creates a transcript index over the given artifacts directory
func NewIndex(dir string, cache Cache) *Index {
	return &Index{
		dir:     dir,
		records: make(map[string]*Record),
		cache:   cache,
	}
}

// Dir returns the artifacts directory
func (x *Index) Dir() string {
	return x.dir
}

// ArtifactPath returns the absolute artifact location for a record
func (x *Index) ArtifactPath(record Record) string {
	return filepath.Join(x.dir, record.Filename())
}

// Rebuild scans the artifacts directory and reloads the index from the
// persisted names. Files that do not parse are skipped, not deleted.
func (x *Index) Rebuild() error {
	if err := os.MkdirAll(x.dir, 0750); err != nil {
		return fmt.Errorf("create transcripts directory: %w", err)
	}

	entries, err := os.ReadDir(x.dir)
	if err != nil {
		return fmt.Errorf("scan transcripts directory: %w", err)
	}

	records := make(map[string]*Record)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		record, err := ParseFilename(entry.Name())
		if err != nil {
			logging.LogWarn("Skipping unparseable transcript artifact",
				zap.String("file", entry.Name()),
				zap.Error(err))
			continue
		}

		records[record.ID] = &record
	}

	x.mu.Lock()
	x.records = records
	snapshot := x.lockedRecords()
	x.mu.Unlock()

	if x.cache != nil {
		if err := x.cache.Reset(snapshot); err != nil {
			// The cache is advisory; a failed reset must not block startup.
			logging.LogError(err, "Failed to reset transcript cache")
		}
	}

	logging.LogStorageOperation("rebuild", x.dir, zap.Int("records", len(records)))
	return nil
}

// Put inserts or replaces a record
func (x *Index) Put(record Record) {
	x.mu.Lock()
	stored := record
	x.records[record.ID] = &stored
	x.mu.Unlock()

	x.cachePut(record)
}

// Get returns a copy of the record with the given id
func (x *Index) Get(id string) (Record, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	record, ok := x.records[id]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// SetStatus updates a record's status. Only the worker calls this.
func (x *Index) SetStatus(id string, status Status) bool {
	x.mu.Lock()
	record, ok := x.records[id]
	if ok {
		record.Status = status
	}
	var copied Record
	if ok {
		copied = *record
	}
	x.mu.Unlock()

	if ok {
		x.cachePut(copied)
	}
	return ok
}

// Rename updates the display name and moves the artifact to the new derived
// path. The move happens first: if it fails the record keeps pointing at the
// existing file.
func (x *Index) Rename(id, displayName string) (Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	record, ok := x.records[id]
	if !ok {
		return Record{}, fmt.Errorf("rename transcript %s: %w", id, ErrNotFound)
	}

	renamed := *record
	renamed.DisplayName = SanitizeDisplayName(displayName)

	oldPath := filepath.Join(x.dir, record.Filename())
	newPath := filepath.Join(x.dir, renamed.Filename())

	if oldPath != newPath {
		if err := os.Rename(oldPath, newPath); err != nil {
			return Record{}, fmt.Errorf("move transcript artifact: %w", err)
		}
	}

	*record = renamed
	x.cachePut(renamed)

	logging.LogStorageOperation("rename", id, zap.String("display_name", renamed.DisplayName))
	return renamed, nil
}

// Delete removes the record and its artifact
func (x *Index) Delete(id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	record, ok := x.records[id]
	if !ok {
		return fmt.Errorf("delete transcript %s: %w", id, ErrNotFound)
	}

	path := filepath.Join(x.dir, record.Filename())
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		// Artifact deletion failures are logged and swallowed so the index
		// does not keep advertising a transcript the user asked to remove.
		logging.LogError(err, "Failed to delete transcript artifact", zap.String("path", path))
	}

	delete(x.records, id)
	if x.cache != nil {
		if err := x.cache.Delete(id); err != nil {
			logging.LogError(err, "Failed to delete transcript from cache", zap.String("id", id))
		}
	}

	logging.LogStorageOperation("delete", id)
	return nil
}

// Snapshot returns all records as summaries ordered by creation time,
// newest first. Safe to broadcast after release of the index lock.
func (x *Index) Snapshot() []Summary {
	x.mu.Lock()
	records := x.lockedRecords()
	x.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	summaries := make([]Summary, len(records))
	for i, record := range records {
		summaries[i] = record.Summary()
	}
	return summaries
}

func (x *Index) lockedRecords() []Record {
	records := make([]Record, 0, len(x.records))
	for _, record := range x.records {
		records = append(records, *record)
	}
	return records
}

func (x *Index) cachePut(record Record) {
	if x.cache == nil {
		return
	}
	if err := x.cache.Put(record); err != nil {
		logging.LogError(err, "Failed to update transcript cache", zap.String("id", record.ID))
	}
}
