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

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// probeResult is the subset of the ffprobe JSON output we care about.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration returns the total duration of an audio file by invoking
// ffprobe. The call is blocking and may take a while on slow storage.
func ProbeDuration(ctx context.Context, binary, path string) (time.Duration, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return 0, errors.New("probe duration: empty path")
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-of", "json",
		"--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}

	return parseProbeDuration(result.Format.Duration)
}

// parseProbeDuration converts ffprobe's seconds string into a duration.
// Containers without a duration estimate yield zero, not an error; the
// worker reports progress as 0 in that case instead of dividing by zero.
func parseProbeDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "N/A" {
		return 0, nil
	}

	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", value, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("ffprobe duration %q: negative", value)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}
