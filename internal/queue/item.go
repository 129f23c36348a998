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

package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/scribelabs/scribed/internal/engine"
	"github.com/scribelabs/scribed/internal/transcripts"
)

// Status describes the lifecycle of a queue item. Transitions only move
// forward: pending -> processing -> {completed, error, stopped}.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusStopped    Status = "stopped"
	StatusRemoved    Status = "removed"
)

// Terminal reports whether the status ends an item's lifecycle
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusStopped, StatusRemoved:
		return true
	}
	return false
}

// Item is one unit of queued transcription work. The Manager owns it while
// pending; status and progress writes after claiming go through the Manager
// so both sides observe consistent state under the same lock.
type Item struct {
	ID         string
	Filename   string
	SourcePath string
	Options    engine.Options
	AddInfo    bool
	Status     Status
	Progress   int
	CreatedAt  time.Time
}

// NewItem creates a pending item with a fresh id
func NewItem(filename, sourcePath string, opts engine.Options, addInfo bool) *Item {
	return &Item{
		ID:         uuid.NewString(),
		Filename:   filename,
		SourcePath: sourcePath,
		Options:    opts,
		AddInfo:    addInfo,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
}

// Summary is the JSON shape broadcast to subscribers and returned by the API
type Summary struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Language  string `json:"language"`
	Model     string `json:"model"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	CreatedAt string `json:"created_at"`
}

// Summary returns the broadcast/API representation of the item
func (i *Item) Summary() Summary {
	return Summary{
		ID:        i.ID,
		Filename:  i.Filename,
		Language:  i.Options.Language,
		Model:     i.Options.Model,
		Status:    string(i.Status),
		Progress:  i.Progress,
		CreatedAt: i.CreatedAt.Format(transcripts.TimeLayout),
	}
}
