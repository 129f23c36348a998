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

import "sync/atomic"

// Token is the cooperative cancellation flag shared between the Manager and
// the Worker. It is reset at the start of each job, settable from any
// goroutine, and observed by the worker at segment boundaries only: an
// inference call already in flight cannot be interrupted.
type Token struct {
	canceled atomic.Bool
}

// Reset clears the flag before a new job starts
func (t *Token) Reset() {
	t.canceled.Store(false)
}

// Cancel sets the flag
func (t *Token) Cancel() {
	t.canceled.Store(true)
}

// Canceled reports whether the flag is set
func (t *Token) Canceled() bool {
	return t.canceled.Load()
}
