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

import "errors"

var (
	// ErrQueueFull reports that admission would exceed the queue capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrNotFound reports that no item with the requested id is queued
	ErrNotFound = errors.New("item not found in queue")

	// ErrNotRemovable reports a removal attempt on an item that is not pending
	ErrNotRemovable = errors.New("item is not pending")

	// ErrNotCancelable reports a cancel attempt on an item that is not processing
	ErrNotCancelable = errors.New("item is not processing")
)
