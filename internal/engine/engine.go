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
	"fmt"
	"time"
)

// Options carries per-job decoding parameters. Parameters the active engine
// implementation does not support are passed through opaquely and ignored.
type Options struct {
	Language                  string // ISO code or "auto"
	Model                     string
	BeamSize                  int
	Temperature               float64
	BestOf                    int
	CompressionRatioThreshold float64
	NoRepeatNgramSize         int
	VADFilter                 bool
	VADMinSilence             time.Duration
	Patience                  *float64
}

// DefaultOptions returns the decoding defaults applied when the admission
// request leaves a parameter unset.
func DefaultOptions() Options {
	return Options{
		Language:                  "auto",
		Model:                     "small",
		BeamSize:                  5,
		Temperature:               0.0,
		BestOf:                    5,
		CompressionRatioThreshold: 2.4,
		NoRepeatNgramSize:         0,
		VADFilter:                 false,
		VADMinSilence:             time.Second,
	}
}

// SupportedModels is the fixed set of model identifiers accepted at admission.
var SupportedModels = []string{"tiny", "base", "small", "medium", "large-v3"}

// IsSupportedModel reports whether name is one of the enumerated models.
func IsSupportedModel(name string) bool {
	for _, m := range SupportedModels {
		if m == name {
			return true
		}
	}
	return false
}

// Segment is a timed span of recognized speech.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Info holds metadata detected during transcription.
type Info struct {
	Language string
}

// Stream is a lazy, finite, ordered sequence of segments produced by one
// transcription call. Next returns io.EOF after the final segment.
type Stream interface {
	Info() Info
	Next() (Segment, error)
	Close() error
}

// Engine defines the interface for the speech-to-text inference engine.
// Implementations are blocking and hold at most one active call at a time;
// the single worker goroutine enforces exclusivity.
type Engine interface {
	// Transcribe runs inference on an audio file and returns the segment stream.
	Transcribe(ctx context.Context, path string, opts Options) (Stream, error)

	// Device reports the execution resource in use ("cpu", "cuda", "none").
	Device() string

	// GPUAvailable reports whether GPU inference is available.
	GPUAvailable() bool

	// Close cleans up resources
	Close() error
}

// FormatTimestamp renders a segment boundary as HH:MM:SS for annotated output.
func FormatTimestamp(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
