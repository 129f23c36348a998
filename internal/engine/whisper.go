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

//go:build whisper

package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/scribelabs/scribed/internal/config"
	"github.com/scribelabs/scribed/internal/logging"
)

// whisper.cpp expects 16kHz mono float32 samples.
const whisperSampleRate = 16000

// WhisperEngine runs speech-to-text through whisper.cpp. The model is loaded
// per job so different queue items can request different model sizes.
type WhisperEngine struct {
	cfg config.EngineConfig
}

// NewWhisperEngine creates a whisper.cpp backed engine
func NewWhisperEngine(cfg config.EngineConfig) (*WhisperEngine, error) {
	if _, err := os.Stat(cfg.ModelDir); err != nil {
		return nil, fmt.Errorf("whisper model directory %s: %w", cfg.ModelDir, err)
	}
	return &WhisperEngine{cfg: cfg}, nil
}

// Transcribe decodes the audio file and runs whisper.cpp inference over it.
// The call blocks until inference finishes; segments are then drained lazily
// through the returned stream.
func (e *WhisperEngine) Transcribe(ctx context.Context, path string, opts Options) (Stream, error) {
	samples, err := decodeSamples(ctx, e.cfg.FFmpegBinary, path)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}

	modelPath := filepath.Join(e.cfg.ModelDir, "ggml-"+opts.Model+".bin")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper model %s: %w", modelPath, err)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}

	wctx, err := model.NewContext()
	if err != nil {
		model.Close()
		return nil, fmt.Errorf("create whisper context: %w", err)
	}

	wctx.SetTranslate(false)
	wctx.SetThreads(uint(e.cfg.Threads))
	if opts.BeamSize > 0 {
		wctx.SetBeamSize(opts.BeamSize)
	}
	wctx.SetTemperature(float32(opts.Temperature))
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "auto"
	}
	if err := wctx.SetLanguage(language); err != nil {
		model.Close()
		return nil, fmt.Errorf("set language %q: %w", language, err)
	}

	// Remaining decoding parameters (best-of, compression ratio threshold,
	// no-repeat n-gram, VAD, patience) are not exposed by whisper.cpp and
	// are ignored by this engine.
	logging.Sugar.Infow("🧠 Whisper inference starting",
		"model", opts.Model,
		"language", language,
		"samples", len(samples),
		"device", e.cfg.Device)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		model.Close()
		return nil, fmt.Errorf("whisper process: %w", err)
	}

	detected := language
	if language == "auto" {
		detected = wctx.DetectedLanguage()
	}

	return &whisperStream{
		model: model,
		ctx:   wctx,
		info:  Info{Language: detected},
	}, nil
}

// Device reports the configured execution resource
func (e *WhisperEngine) Device() string {
	return e.cfg.Device
}

// GPUAvailable reports whether the engine was configured for GPU inference
func (e *WhisperEngine) GPUAvailable() bool {
	return e.cfg.Device == "cuda"
}

// Close cleans up resources
func (e *WhisperEngine) Close() error {
	return nil
}

// whisperStream drains segments out of a processed whisper context.
type whisperStream struct {
	model whisper.Model
	ctx   whisper.Context
	info  Info
}

func (s *whisperStream) Info() Info {
	return s.info
}

func (s *whisperStream) Next() (Segment, error) {
	segment, err := s.ctx.NextSegment()
	if err != nil {
		if err == io.EOF {
			return Segment{}, io.EOF
		}
		return Segment{}, fmt.Errorf("next segment: %w", err)
	}

	return Segment{
		Start: segment.Start,
		End:   segment.End,
		Text:  strings.TrimSpace(segment.Text),
	}, nil
}

func (s *whisperStream) Close() error {
	if s.model != nil {
		s.model.Close()
		s.model = nil
	}
	return nil
}

// decodeSamples shells out to ffmpeg to turn any supported container into
// raw 16kHz mono pcm_s16le, then converts to the float32 samples whisper
// expects. Streaming through stdout avoids a temp WAV file.
func decodeSamples(ctx context.Context, ffmpegBinary, path string) ([]float32, error) {
	bin := strings.TrimSpace(ffmpegBinary)
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", whisperSampleRate),
		"-f", "s16le",
		"-")
	var stderr strings.Builder
	cmd.Stderr = &stderr

	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		sample := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(sample) / float32(math.MaxInt16)
	}
	return samples, nil
}
