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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scribelabs/scribed/internal/engine"
)

func newTestItem(filename string) *Item {
	return NewItem(filename, "", engine.DefaultOptions(), false)
}

func TestEnqueueRespectsCapacity(t *testing.T) {
	m := NewManager(20)

	for i := 0; i < 20; i++ {
		if err := m.Enqueue(newTestItem("clip.mp3")); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}

	err := m.Enqueue(newTestItem("overflow.mp3"))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if m.Len() != 20 {
		t.Fatalf("expected 20 items, got %d", m.Len())
	}
}

func TestEnqueueBatchAllOrNothing(t *testing.T) {
	m := NewManager(3)

	if err := m.Enqueue(newTestItem("a.mp3"), newTestItem("b.mp3")); err != nil {
		t.Fatalf("batch enqueue failed: %v", err)
	}

	// Two slots used, batch of two must be rejected in full.
	err := m.Enqueue(newTestItem("c.mp3"), newTestItem("d.mp3"))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("partial admission: expected 2 items, got %d", m.Len())
	}

	// A single item still fits.
	if err := m.Enqueue(newTestItem("c.mp3")); err != nil {
		t.Fatalf("single enqueue after rejected batch failed: %v", err)
	}
}

func TestTerminalItemsDoNotCountAgainstCapacity(t *testing.T) {
	m := NewManager(1)

	first := newTestItem("a.mp3")
	if err := m.Enqueue(first); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if _, ok := m.ClaimNext(); !ok {
		t.Fatal("expected to claim head")
	}
	m.MarkTerminal(first.ID, StatusCompleted)

	// The completed item is still visible but no longer occupies a slot.
	if err := m.Enqueue(newTestItem("b.mp3")); err != nil {
		t.Fatalf("enqueue after completion failed: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 items in view, got %d", m.Len())
	}
}

func TestClaimNextFIFO(t *testing.T) {
	m := NewManager(5)
	a := newTestItem("a.mp3")
	b := newTestItem("b.mp3")
	if err := m.Enqueue(a, b); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	claimed, ok := m.ClaimNext()
	if !ok {
		t.Fatal("expected a claim")
	}
	if claimed.ID != a.ID {
		t.Fatalf("expected head %s, got %s", a.ID, claimed.ID)
	}
	if claimed.Status != StatusProcessing {
		t.Fatalf("expected processing status, got %s", claimed.Status)
	}
}

func TestClaimNextRotatesStaleHead(t *testing.T) {
	m := NewManager(5)
	stale := newTestItem("stale.mp3")
	next := newTestItem("next.mp3")
	if err := m.Enqueue(stale, next); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if _, ok := m.ClaimNext(); !ok {
		t.Fatal("expected first claim")
	}
	m.MarkTerminal(stale.ID, StatusError)

	// The stale head rotates to the tail; the claim reports no work.
	if _, ok := m.ClaimNext(); ok {
		t.Fatal("expected no claim while rotating stale head")
	}

	claimed, ok := m.ClaimNext()
	if !ok {
		t.Fatal("expected claim after rotation")
	}
	if claimed.ID != next.ID {
		t.Fatalf("expected %s after rotation, got %s", next.ID, claimed.ID)
	}
}

func TestRemovePendingOnly(t *testing.T) {
	m := NewManager(5)
	item := newTestItem("a.mp3")
	if err := m.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if _, ok := m.ClaimNext(); !ok {
		t.Fatal("expected claim")
	}

	err := m.Remove(item.ID)
	if !errors.Is(err, ErrNotRemovable) {
		t.Fatalf("expected ErrNotRemovable for processing item, got %v", err)
	}

	if err := m.Remove("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveDeletesSourceFile(t *testing.T) {
	source := filepath.Join(t.TempDir(), "upload.mp3")
	if err := os.WriteFile(source, []byte("audio"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	m := NewManager(5)
	item := NewItem("upload.mp3", source, engine.DefaultOptions(), false)
	if err := m.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := m.Remove(item.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty queue, got %d items", m.Len())
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatal("expected source file to be deleted")
	}
}

func TestCancelProcessingOnly(t *testing.T) {
	m := NewManager(5)
	item := newTestItem("a.mp3")
	if err := m.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	err := m.Cancel(item.ID)
	if !errors.Is(err, ErrNotCancelable) {
		t.Fatalf("expected ErrNotCancelable for pending item, got %v", err)
	}

	if _, ok := m.ClaimNext(); !ok {
		t.Fatal("expected claim")
	}
	if err := m.Cancel(item.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !m.Token().Canceled() {
		t.Fatal("expected token to be canceled")
	}
	if m.Len() != 0 {
		t.Fatalf("expected canceled item removed from view, got %d items", m.Len())
	}
}

func TestSetProgressIsMonotoneAndClamped(t *testing.T) {
	m := NewManager(5)
	item := newTestItem("a.mp3")
	if err := m.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, ok := m.ClaimNext(); !ok {
		t.Fatal("expected claim")
	}

	m.SetProgress(item.ID, 40)
	m.SetProgress(item.ID, 20)
	m.SetProgress(item.ID, 250)

	snap := m.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one item, got %d", len(snap))
	}
	if snap[0].Progress != 100 {
		t.Fatalf("expected clamped progress 100, got %d", snap[0].Progress)
	}
}

func TestMarkTerminalCompletedForcesFullProgress(t *testing.T) {
	m := NewManager(5)
	item := newTestItem("a.mp3")
	if err := m.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, ok := m.ClaimNext(); !ok {
		t.Fatal("expected claim")
	}

	m.SetProgress(item.ID, 55)
	m.MarkTerminal(item.ID, StatusCompleted)

	snap := m.Snapshot()
	if snap[0].Status != string(StatusCompleted) {
		t.Fatalf("expected completed status, got %s", snap[0].Status)
	}
	if snap[0].Progress != 100 {
		t.Fatalf("expected progress 100 on completion, got %d", snap[0].Progress)
	}

	// Terminal marks for ids no longer in the view are ignored.
	m.MarkTerminal("gone", StatusError)
}

func TestScheduleDelayedRemovalEvicts(t *testing.T) {
	m := NewManager(5)
	item := newTestItem("a.mp3")
	if err := m.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, ok := m.ClaimNext(); !ok {
		t.Fatal("expected claim")
	}
	m.MarkTerminal(item.ID, StatusCompleted)

	m.ScheduleDelayedRemoval(item.ID, 10*time.Millisecond)
	// Second timer for the same id must be a harmless no-op when it fires.
	m.ScheduleDelayedRemoval(item.ID, 15*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for m.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for delayed removal")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueSignalsWake(t *testing.T) {
	m := NewManager(5)
	if err := m.Enqueue(newTestItem("a.mp3")); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case <-m.Wake():
	case <-time.After(time.Second):
		t.Fatal("expected wake signal after enqueue")
	}
}
