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
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scribelabs/scribed/internal/engine"
	"github.com/scribelabs/scribed/internal/logging"
	"github.com/scribelabs/scribed/internal/transcripts"
)

// WorkerConfig holds the worker's timing knobs and probe binary
type WorkerConfig struct {
	PollInterval     time.Duration
	RemovalDelay     time.Duration
	ProgressInterval time.Duration
	FFprobeBinary    string
}

// Prober measures the total duration of an audio file. It is a blocking
// call; the default implementation shells out to ffprobe.
type Prober func(ctx context.Context, path string) (time.Duration, error)

// Worker is the single background loop that drives the inference engine.
// Exactly one instance runs per process: the engine holds one exclusive
// GPU/CPU inference context and exclusivity is enforced by having exactly
// one worker goroutine. There is no timeout on an inference call; a hung
// engine call blocks the whole queue. That is an accepted limitation.
type Worker struct {
	queue  *Manager
	index  *transcripts.Index
	engine engine.Engine
	probe  Prober
	cfg    WorkerConfig

	mu          sync.Mutex
	status      string
	currentFile string

	onQueueChange       func()
	onTranscriptsChange func()
	onComplete          func(transcripts.Record)
}

// State is the worker's observable status, broadcast with queue snapshots
type State struct {
	Status       string `json:"transcriber_status"`
	CurrentFile  string `json:"current_file"`
	Device       string `json:"current_device"`
	GPUAvailable bool   `json:"gpu_available"`
}

// NewWorker creates the transcription worker
func NewWorker(manager *Manager, index *transcripts.Index, eng engine.Engine, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ProgressInterval < 0 {
		cfg.ProgressInterval = 0
	}

	w := &Worker{
		queue:  manager,
		index:  index,
		engine: eng,
		cfg:    cfg,
		status: "idle",
	}
	w.probe = func(ctx context.Context, path string) (time.Duration, error) {
		return engine.ProbeDuration(ctx, cfg.FFprobeBinary, path)
	}
	return w
}

// SetProber overrides the duration probe
func (w *Worker) SetProber(probe Prober) {
	w.probe = probe
}

// SetChangeCallbacks registers the broadcast hooks invoked after state
// changes. Both are always called outside the queue and worker locks.
func (w *Worker) SetChangeCallbacks(onQueue, onTranscripts func()) {
	w.onQueueChange = onQueue
	w.onTranscriptsChange = onTranscripts
}

// SetCompletionCallback registers an optional hook invoked after a job
// completes successfully, outside any lock.
func (w *Worker) SetCompletionCallback(fn func(transcripts.Record)) {
	w.onComplete = fn
}

// State returns the worker's observable status
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	return State{
		Status:       w.status,
		CurrentFile:  w.currentFile,
		Device:       w.engine.Device(),
		GPUAvailable: w.engine.GPUAvailable(),
	}
}

// Run executes the worker loop until the context is canceled. The loop
// wakes on enqueue and additionally ticks at the poll interval so stale
// head entries are recovered even without new work arriving.
func (w *Worker) Run(ctx context.Context) {
	logging.Sugar.Infow("🎙️ Transcription worker started",
		"poll_interval", w.cfg.PollInterval,
		"device", w.engine.Device())

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Sugar.Infow("🛑 Transcription worker stopped")
			return
		case <-ticker.C:
		case <-w.queue.Wake():
		}

		w.processNext(ctx)
	}
}

// processNext claims and runs at most one job. Failures are absorbed at
// this boundary: one bad job must never terminate the loop.
func (w *Worker) processNext(ctx context.Context) {
	item, ok := w.queue.ClaimNext()
	if !ok {
		return
	}

	w.queue.Token().Reset()
	w.setState("processing", item.Filename)
	w.notifyQueue()

	// Guaranteed cleanup: runs on success, error, cancellation and panic.
	defer w.finishJob(item)
	defer func() {
		if r := recover(); r != nil {
			logging.LogError(fmt.Errorf("panic: %v", r), "Transcription job panicked",
				zap.String("item_id", item.ID))
			w.failJob(item, fmt.Errorf("engine panic: %v", r))
		}
	}()

	w.runJob(ctx, item)
}

// finishJob is the guaranteed-cleanup block. It clears the current-file
// indicator, forces the status back to idle if no terminal status was set,
// emits one final notification and schedules eviction of the queue entry.
func (w *Worker) finishJob(item Item) {
	w.mu.Lock()
	w.currentFile = ""
	if w.status == "processing" {
		// Defensive fallback: every normal path sets a terminal status first.
		w.status = "idle"
	}
	w.mu.Unlock()

	w.notifyQueue()

	w.queue.ScheduleDelayedRemoval(item.ID, w.cfg.RemovalDelay)
	removeSourceFile(item.SourcePath)
}

// runJob drives one transcription from probe to terminal status.
func (w *Worker) runJob(ctx context.Context, item Item) {
	logging.LogTranscription(item.ID, "start",
		zap.String("filename", item.Filename),
		zap.String("model", item.Options.Model),
		zap.String("language", item.Options.Language))

	record := transcripts.Record{
		ID:          item.ID,
		DisplayName: item.Filename,
		Language:    item.Options.Language,
		Model:       item.Options.Model,
		Temperature: item.Options.Temperature,
		CreatedAt:   item.CreatedAt,
		Status:      transcripts.StatusProcessing,
	}
	w.index.Put(record)
	w.notifyTranscripts()

	// Total duration turns segment end times into percentages. Zero or
	// unknown duration reports progress 0 instead of dividing by zero.
	total, err := w.probe(ctx, item.SourcePath)
	if err != nil {
		w.failJob(item, fmt.Errorf("probe duration: %w", err))
		return
	}

	stream, err := w.engine.Transcribe(ctx, item.SourcePath, item.Options)
	if err != nil {
		w.failJob(item, fmt.Errorf("transcribe: %w", err))
		return
	}
	defer func() { _ = stream.Close() }()

	if record.Language == "" || record.Language == "auto" {
		if detected := stream.Info().Language; detected != "" {
			record.Language = detected
			w.index.Put(record)
		}
	}

	path := w.index.ArtifactPath(record)
	file, err := os.Create(path)
	if err != nil {
		w.failJob(item, fmt.Errorf("create artifact: %w", err))
		return
	}
	defer func() { _ = file.Close() }()

	stopped, err := w.writeSegments(file, item, stream, total)
	if err != nil {
		w.failJob(item, err)
		return
	}

	if stopped {
		// Cancellation is deliberate, not an error. The partial artifact
		// written so far is retained.
		w.index.SetStatus(item.ID, transcripts.StatusStopped)
		w.setStatus("stopped")
		logging.LogTranscription(item.ID, "stopped")
		w.notifyTranscripts()
		w.notifyQueue()
		return
	}

	w.queue.MarkTerminal(item.ID, StatusCompleted)
	w.index.SetStatus(item.ID, transcripts.StatusCompleted)
	w.setStatus("completed")
	logging.LogTranscription(item.ID, "completed", zap.String("language", record.Language))
	w.notifyTranscripts()
	w.notifyQueue()

	if w.onComplete != nil {
		record.Status = transcripts.StatusCompleted
		w.onComplete(record)
	}
}

// writeSegments drains the segment stream into the artifact file, updating
// and throttling progress along the way. It returns stopped=true when the
// cancellation token interrupted the iteration.
func (w *Worker) writeSegments(file *os.File, item Item, stream engine.Stream, total time.Duration) (bool, error) {
	var lastBroadcast time.Time
	lastProgress := -1

	for {
		segment, err := stream.Next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read segment: %w", err)
		}

		// Cancellation is observed between segments. A cancel that arrives
		// while a segment is being decoded discards that segment.
		if w.queue.Token().Canceled() {
			return true, nil
		}

		percent := progressPercent(segment.End, total)
		progress := int(math.Floor(percent))

		// Per-segment updates would flood subscribers: broadcast only when
		// the integer percentage moved and enough wall clock passed. The
		// broadcast itself happens with no lock held.
		if progress > lastProgress && time.Since(lastBroadcast) >= w.cfg.ProgressInterval {
			w.queue.SetProgress(item.ID, progress)
			lastProgress = progress
			lastBroadcast = time.Now()
			w.notifyQueue()
		}

		if err := writeSegmentLine(file, item.AddInfo, segment, percent); err != nil {
			return false, fmt.Errorf("write artifact: %w", err)
		}
	}
}

// failJob records an error outcome on both the live item and the record.
func (w *Worker) failJob(item Item, err error) {
	logging.LogError(err, "Transcription job failed",
		zap.String("item_id", item.ID),
		zap.String("filename", item.Filename))

	w.queue.MarkTerminal(item.ID, StatusError)
	w.index.SetStatus(item.ID, transcripts.StatusError)
	w.setStatus("error")
	w.notifyTranscripts()
	w.notifyQueue()
}

func (w *Worker) setState(status, currentFile string) {
	w.mu.Lock()
	w.status = status
	w.currentFile = currentFile
	w.mu.Unlock()
}

func (w *Worker) setStatus(status string) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}

func (w *Worker) notifyQueue() {
	if w.onQueueChange != nil {
		w.onQueueChange()
	}
}

func (w *Worker) notifyTranscripts() {
	if w.onTranscriptsChange != nil {
		w.onTranscriptsChange()
	}
}

// progressPercent converts a segment end time into a completion percentage,
// clamped to [0,100]. Container duration estimates can undershoot the real
// stream, so segment ends past the probed total are expected.
func progressPercent(end, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	percent := float64(end) / float64(total) * 100
	if percent > 100 {
		return 100
	}
	if percent < 0 {
		return 0
	}
	return percent
}

// writeSegmentLine appends one segment to the artifact, optionally prefixed
// with the fixed-width timing/progress annotation.
func writeSegmentLine(file *os.File, addInfo bool, segment engine.Segment, percent float64) error {
	text := strings.TrimSpace(segment.Text)

	var line string
	if addInfo {
		annotation := fmt.Sprintf("[%s -> %s] [Progress: %.3f%%] ",
			engine.FormatTimestamp(segment.Start),
			engine.FormatTimestamp(segment.End),
			percent)
		line = fmt.Sprintf("%-45s: %s", annotation, text)
	} else {
		line = text
	}

	_, err := file.WriteString(line + "\n")
	return err
}
