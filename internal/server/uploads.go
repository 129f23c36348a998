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

package server

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/scribelabs/scribed/internal/logging"
)

// allowedExtensions is the audio file type allow-list for admission
var allowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".flac": true,
}

// ExtensionAllowed reports whether the filename carries an admissible
// audio extension
func ExtensionAllowed(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// CleanUploadDir removes stale audio uploads left behind by a previous run.
// Only files matching the admission allow-list are touched; anything else in
// the directory is left alone.
func CleanUploadDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.LogWarn("Failed to scan upload directory", zap.String("dir", dir), zap.Error(err))
		}
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !ExtensionAllowed(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logging.LogWarn("Failed to remove stale upload", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		logging.Sugar.Infow("🧹 Cleaned stale uploads", "dir", dir, "removed", removed)
	}
}
