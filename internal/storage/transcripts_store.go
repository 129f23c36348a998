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

package storage

import (
	"fmt"
	"time"

	"github.com/scribelabs/scribed/internal/transcripts"
)

// TranscriptsStore is the write-through SQLite cache behind the in-memory
// transcript index. It implements transcripts.Cache.
type TranscriptsStore struct {
	db *Database
}

// NewTranscriptsStore creates a new transcripts store
func NewTranscriptsStore(db *Database) *TranscriptsStore {
	return &TranscriptsStore{db: db}
}

// Reset replaces the cached rows with the records recovered from the
// artifact directory scan.
func (s *TranscriptsStore) Reset(records []transcripts.Record) error {
	tx, err := s.db.DB().Begin()
	if err != nil {
		return fmt.Errorf("begin transcript cache reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM transcripts"); err != nil {
		return fmt.Errorf("clear transcript cache: %w", err)
	}

	for _, record := range records {
		if _, err := tx.Exec(upsertQuery,
			record.ID, record.DisplayName, record.Language, record.Model,
			record.Temperature, record.CreatedAt.Format(transcripts.TimeLayout), string(record.Status),
		); err != nil {
			return fmt.Errorf("cache transcript %s: %w", record.ID, err)
		}
	}

	return tx.Commit()
}

const upsertQuery = `
	INSERT INTO transcripts (id, display_name, language, model, temperature, created_at, status)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		display_name = excluded.display_name,
		language = excluded.language,
		model = excluded.model,
		temperature = excluded.temperature,
		created_at = excluded.created_at,
		status = excluded.status`

// Put inserts or updates one cached record
func (s *TranscriptsStore) Put(record transcripts.Record) error {
	_, err := s.db.DB().Exec(upsertQuery,
		record.ID, record.DisplayName, record.Language, record.Model,
		record.Temperature, record.CreatedAt.Format(transcripts.TimeLayout), string(record.Status),
	)
	if err != nil {
		return fmt.Errorf("cache transcript %s: %w", record.ID, err)
	}
	return nil
}

// Delete removes one cached record
func (s *TranscriptsStore) Delete(id string) error {
	if _, err := s.db.DB().Exec("DELETE FROM transcripts WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete cached transcript %s: %w", id, err)
	}
	return nil
}

// List returns all cached records ordered by creation time, newest first
func (s *TranscriptsStore) List() ([]transcripts.Record, error) {
	rows, err := s.db.DB().Query(`
		SELECT id, display_name, language, model, temperature, created_at, status
		FROM transcripts
		ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query transcript cache: %w", err)
	}
	defer rows.Close()

	var records []transcripts.Record
	for rows.Next() {
		var record transcripts.Record
		var createdAt, status string
		if err := rows.Scan(&record.ID, &record.DisplayName, &record.Language,
			&record.Model, &record.Temperature, &createdAt, &status); err != nil {
			return nil, fmt.Errorf("scan cached transcript: %w", err)
		}

		record.CreatedAt, err = time.ParseInLocation(transcripts.TimeLayout, createdAt, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parse cached timestamp %q: %w", createdAt, err)
		}
		record.Status = transcripts.Status(status)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript cache: %w", err)
	}

	return records, nil
}
