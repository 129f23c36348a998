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

package security

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidFilename is returned when an uploaded filename is unsafe to store
var ErrInvalidFilename = errors.New("invalid filename")

// SanitizeLogInput removes newline characters to prevent log injection attacks.
// This function should be used for all user-controlled data before logging.
func SanitizeLogInput(input string) string {
	sanitized := strings.ReplaceAll(input, "\n", "")
	sanitized = strings.ReplaceAll(sanitized, "\r", "")
	return sanitized
}

// ValidateUploadFilename ensures an uploaded filename is safe to place in the
// upload directory: no path separators, no parent directory references, no
// control characters and not empty or dot-only.
func ValidateUploadFilename(filename string) error {
	if filename == "" || filename == "." || filename == ".." {
		return ErrInvalidFilename
	}

	if strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return ErrInvalidFilename
	}

	for _, r := range filename {
		if unicode.IsControl(r) {
			return ErrInvalidFilename
		}
	}

	return nil
}
