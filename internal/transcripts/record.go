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
	"strconv"
	"strings"
	"time"
)

// Status describes the lifecycle of a transcript record
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusStopped    Status = "stopped"
)

// TimeLayout is the creation timestamp format embedded in artifact names.
// It must stay stable: the filename is the persistence format.
const TimeLayout = "2006-01-02 15:04:05"

// fieldDelimiter separates the bracketed fields of an artifact name.
const fieldDelimiter = "]-["

// Record describes one finished or in-flight transcript. The artifact
// filename is derived deterministically from its fields and is the source
// of truth for recovery after a restart.
type Record struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Language    string    `json:"language"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `json:"-"`
	Status      Status    `json:"status"`
}

// Summary is the JSON shape broadcast to subscribers and returned by the API
type Summary struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Language    string  `json:"language"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	CreatedAt   string  `json:"created_at"`
	Status      string  `json:"status"`
}

// Summary returns the broadcast/API representation of the record
func (r Record) Summary() Summary {
	return Summary{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Language:    r.Language,
		Model:       r.Model,
		Temperature: r.Temperature,
		CreatedAt:   r.CreatedAt.Format(TimeLayout),
		Status:      string(r.Status),
	}
}

// Filename derives the artifact name from the record's fields:
//
//	[{id}]-[{created_at}]-[{language}]-[{model}]-[{display_name}]-[{temperature}].txt
//
// Square brackets inside the display name are stripped before substitution
// so the delimiter stays unambiguous.
func (r Record) Filename() string {
	return fmt.Sprintf("[%s]-[%s]-[%s]-[%s]-[%s]-[%s].txt",
		r.ID,
		r.CreatedAt.Format(TimeLayout),
		r.Language,
		r.Model,
		SanitizeDisplayName(r.DisplayName),
		formatTemperature(r.Temperature),
	)
}

// DownloadName is the filename offered on artifact download
func (r Record) DownloadName() string {
	return SanitizeDisplayName(r.DisplayName) + ".txt"
}

// SanitizeDisplayName strips the characters that would corrupt the
// bracket-delimited artifact name.
func SanitizeDisplayName(name string) string {
	name = strings.ReplaceAll(name, "[", "")
	name = strings.ReplaceAll(name, "]", "")
	name = strings.ReplaceAll(name, "/", "_")
	return name
}

// ParseFilename reconstructs a record from an artifact name. Names lacking
// at least 5 bracketed segments are rejected; callers skip those files
// during index rebuild. The temperature segment is optional for
// compatibility with artifacts written before it was recorded.
func ParseFilename(name string) (Record, error) {
	base, ok := strings.CutSuffix(name, ".txt")
	if !ok {
		return Record{}, fmt.Errorf("parse artifact name %q: not a .txt file", name)
	}

	parts := strings.Split(base, fieldDelimiter)
	if len(parts) < 5 {
		return Record{}, fmt.Errorf("parse artifact name %q: %d bracketed segments, want at least 5", name, len(parts))
	}

	// Strip residual brackets left at the edges after splitting.
	for i, part := range parts {
		parts[i] = strings.Trim(part, "[]")
	}

	createdAt, err := time.ParseInLocation(TimeLayout, parts[1], time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("parse artifact name %q: bad timestamp: %w", name, err)
	}

	record := Record{
		ID:          parts[0],
		CreatedAt:   createdAt,
		Language:    parts[2],
		Model:       parts[3],
		DisplayName: parts[4],
		Status:      StatusCompleted,
	}

	if len(parts) >= 6 {
		temperature, err := strconv.ParseFloat(parts[5], 64)
		if err != nil {
			return Record{}, fmt.Errorf("parse artifact name %q: bad temperature: %w", name, err)
		}
		record.Temperature = temperature
	}

	return record, nil
}

func formatTemperature(t float64) string {
	return strconv.FormatFloat(t, 'g', -1, 64)
}
