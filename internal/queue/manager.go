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
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scribelabs/scribed/internal/logging"
)

// Manager owns the bounded FIFO job queue. A single mutex guards the ordered
// item list and every item's status and progress fields. No operation blocks
// on the inference engine while holding the mutex, and change callbacks are
// always invoked after release so a subscriber cannot re-enter and deadlock.
type Manager struct {
	mu       sync.Mutex
	items    []*Item
	capacity int
	token    *Token
	onChange func()
	wake     chan struct{}
}

// NewManager creates a queue manager with the given admission capacity
func NewManager(capacity int) *Manager {
	return &Manager{
		capacity: capacity,
		token:    &Token{},
		wake:     make(chan struct{}, 1),
	}
}

// Token returns the cancellation token shared with the worker
func (m *Manager) Token() *Token {
	return m.token
}

// SetChangeCallback registers the function invoked (outside the lock) after
// every state-changing operation. Used to broadcast queue snapshots.
func (m *Manager) SetChangeCallback(fn func()) {
	m.onChange = fn
}

// Wake returns the channel signaled on enqueue so the worker can pick up new
// work immediately instead of waiting out its poll interval.
func (m *Manager) Wake() <-chan struct{} {
	return m.wake
}

// Capacity returns the configured admission limit
func (m *Manager) Capacity() int {
	return m.capacity
}

// Enqueue admits a batch of items atomically. It fails with ErrQueueFull
// when the number of pending and processing items plus the batch would
// exceed the capacity; in that case no item of the batch is admitted.
func (m *Manager) Enqueue(items ...*Item) error {
	if len(items) == 0 {
		return nil
	}

	m.mu.Lock()
	active := m.lockedActiveCount()
	if active+len(items) > m.capacity {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d active of %d", ErrQueueFull, active, m.capacity)
	}
	m.items = append(m.items, items...)
	m.mu.Unlock()

	for _, item := range items {
		logging.LogQueueOperation("enqueue", item.ID,
			zap.String("filename", item.Filename),
			zap.String("model", item.Options.Model))
	}

	m.notify()
	m.signalWake()
	return nil
}

// Remove drops a pending item from the queue. Items already processing or
// terminal cannot be silently dropped.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	index := m.lockedIndexOf(id)
	if index < 0 {
		m.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	item := m.items[index]
	if item.Status != StatusPending {
		m.mu.Unlock()
		return fmt.Errorf("remove %s (status %s): %w", id, item.Status, ErrNotRemovable)
	}
	item.Status = StatusRemoved
	m.items = append(m.items[:index], m.items[index+1:]...)
	sourcePath := item.SourcePath
	m.mu.Unlock()

	removeSourceFile(sourcePath)
	logging.LogQueueOperation("remove", id)
	m.notify()
	return nil
}

// Cancel stops the item currently being processed. It signals the worker's
// cancellation token and removes the item; the temporary source file is no
// longer needed even if the worker has not yet observed the signal.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	index := m.lockedIndexOf(id)
	if index < 0 {
		m.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", id, ErrNotFound)
	}
	item := m.items[index]
	if item.Status != StatusProcessing {
		m.mu.Unlock()
		return fmt.Errorf("cancel %s (status %s): %w", id, item.Status, ErrNotCancelable)
	}
	m.token.Cancel()
	m.items = append(m.items[:index], m.items[index+1:]...)
	sourcePath := item.SourcePath
	m.mu.Unlock()

	removeSourceFile(sourcePath)
	logging.LogQueueOperation("cancel", id)
	m.notify()
	return nil
}

// ClaimNext hands the head of the queue to the worker. A head already in a
// completed or error state is a stale entry the delayed-removal timer has
// not evicted yet; it is rotated to the tail so the queue does not stall.
// On a successful claim the item is marked processing and a configuration
// snapshot is returned.
func (m *Manager) ClaimNext() (Item, bool) {
	m.mu.Lock()
	if len(m.items) == 0 {
		m.mu.Unlock()
		return Item{}, false
	}

	head := m.items[0]
	if head.Status == StatusCompleted || head.Status == StatusError {
		m.items = append(m.items[1:], head)
		m.mu.Unlock()
		logging.LogQueueOperation("rotate-stale", head.ID, zap.String("status", string(head.Status)))
		return Item{}, false
	}

	head.Status = StatusProcessing
	snapshot := *head
	m.mu.Unlock()

	m.notify()
	return snapshot, true
}

// SetProgress updates a processing item's progress. Progress never moves
// backwards and never exceeds 100.
func (m *Manager) SetProgress(id string, progress int) {
	if progress > 100 {
		progress = 100
	}
	if progress < 0 {
		progress = 0
	}

	m.mu.Lock()
	if index := m.lockedIndexOf(id); index >= 0 {
		item := m.items[index]
		if progress > item.Progress {
			item.Progress = progress
		}
	}
	m.mu.Unlock()
}

// MarkTerminal records a job's final status. Completion forces progress to
// 100. Marking an item that was already removed (by Cancel or the delayed
// removal timer) is a no-op.
func (m *Manager) MarkTerminal(id string, status Status) {
	if !status.Terminal() {
		return
	}

	m.mu.Lock()
	if index := m.lockedIndexOf(id); index >= 0 {
		item := m.items[index]
		item.Status = status
		if status == StatusCompleted {
			item.Progress = 100
		}
	}
	m.mu.Unlock()

	m.notify()
}

// ScheduleDelayedRemoval evicts the item from the queue view after the grace
// period, whatever its status by then. Removal is idempotent: the timer
// firing after Cancel or an earlier removal is a no-op.
func (m *Manager) ScheduleDelayedRemoval(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if m.removeIfPresent(id) {
			logging.LogQueueOperation("evict", id)
			m.notify()
		}
	})
}

// Snapshot returns the queued items as summaries in arrival order. Safe to
// broadcast after the lock is released.
func (m *Manager) Snapshot() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summaries := make([]Summary, len(m.items))
	for i, item := range m.items {
		summaries[i] = item.Summary()
	}
	return summaries
}

// Len returns the number of items currently in the queue view
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Manager) removeIfPresent(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.lockedIndexOf(id)
	if index < 0 {
		return false
	}
	m.items = append(m.items[:index], m.items[index+1:]...)
	return true
}

func (m *Manager) lockedIndexOf(id string) int {
	for i, item := range m.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) lockedActiveCount() int {
	count := 0
	for _, item := range m.items {
		if item.Status == StatusPending || item.Status == StatusProcessing {
			count++
		}
	}
	return count
}

func (m *Manager) notify() {
	if m.onChange != nil {
		m.onChange()
	}
}

func (m *Manager) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// removeSourceFile deletes a temporary upload. Failures are logged and
// swallowed: cleanup must not mask the primary outcome.
func removeSourceFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.LogWarn("Failed to delete temporary source file",
			zap.String("path", path),
			zap.Error(err))
	}
}
