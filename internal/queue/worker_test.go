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
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/scribelabs/scribed/internal/engine"
	"github.com/scribelabs/scribed/internal/logging"
	"github.com/scribelabs/scribed/internal/transcripts"
)

type fakeStream struct {
	language string
	segments []engine.Segment
	failAt   int
	err      error
	next     int
	closed   bool
}

func (s *fakeStream) Info() engine.Info {
	return engine.Info{Language: s.language}
}

func (s *fakeStream) Next() (engine.Segment, error) {
	if s.err != nil && s.next == s.failAt {
		return engine.Segment{}, s.err
	}
	if s.next >= len(s.segments) {
		return engine.Segment{}, io.EOF
	}
	segment := s.segments[s.next]
	s.next++
	return segment, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeEngine struct {
	stream       *fakeStream
	transcribeErr error
	// onNext lets a test act between segments, e.g. to cancel mid-stream.
	onNext func(n int)
}

func (e *fakeEngine) Transcribe(_ context.Context, _ string, _ engine.Options) (engine.Stream, error) {
	if e.transcribeErr != nil {
		return nil, e.transcribeErr
	}
	if e.onNext != nil {
		stream := e.stream
		hook := e.onNext
		return hookedStream{stream, hook}, nil
	}
	return e.stream, nil
}

func (e *fakeEngine) Device() string      { return "cpu" }
func (e *fakeEngine) GPUAvailable() bool  { return false }
func (e *fakeEngine) Close() error        { return nil }

type hookedStream struct {
	*fakeStream
	hook func(n int)
}

func (s hookedStream) Next() (engine.Segment, error) {
	s.hook(s.fakeStream.next)
	return s.fakeStream.Next()
}

func newTestWorker(t *testing.T, eng engine.Engine) (*Worker, *Manager, *transcripts.Index) {
	t.Helper()

	if err := logging.Initialize(); err != nil {
		t.Fatalf("initialize logging: %v", err)
	}

	manager := NewManager(20)
	index := transcripts.NewIndex(t.TempDir(), nil)
	worker := NewWorker(manager, index, eng, WorkerConfig{
		PollInterval:     50 * time.Millisecond,
		RemovalDelay:     10 * time.Millisecond,
		ProgressInterval: 0,
	})
	worker.SetProber(func(context.Context, string) (time.Duration, error) {
		return 10 * time.Second, nil
	})
	return worker, manager, index
}

func TestWorkerCompletesJob(t *testing.T) {
	stream := &fakeStream{
		language: "en",
		segments: []engine.Segment{
			{Start: 0, End: 4 * time.Second, Text: " Hello there."},
			{Start: 4 * time.Second, End: 10 * time.Second, Text: " General remarks."},
		},
	}
	worker, manager, index := newTestWorker(t, &fakeEngine{stream: stream})

	var completed []transcripts.Record
	worker.SetCompletionCallback(func(r transcripts.Record) {
		completed = append(completed, r)
	})

	item := NewItem("meeting.mp3", "", engine.DefaultOptions(), false)
	if err := manager.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	worker.processNext(context.Background())

	record, ok := index.Get(item.ID)
	if !ok {
		t.Fatal("expected record in index")
	}
	if record.Status != transcripts.StatusCompleted {
		t.Fatalf("expected completed record, got %s", record.Status)
	}
	if record.Language != "en" {
		t.Fatalf("expected detected language en, got %q", record.Language)
	}

	data, err := os.ReadFile(index.ArtifactPath(record))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	want := "Hello there.\nGeneral remarks.\n"
	if string(data) != want {
		t.Fatalf("artifact mismatch:\n got %q\nwant %q", data, want)
	}

	if !stream.closed {
		t.Fatal("expected stream to be closed")
	}
	if len(completed) != 1 || completed[0].ID != item.ID {
		t.Fatalf("expected one completion callback for %s, got %v", item.ID, completed)
	}
	if state := worker.State(); state.Status != "completed" || state.CurrentFile != "" {
		t.Fatalf("unexpected worker state after completion: %+v", state)
	}
}

func TestWorkerWritesAnnotatedLines(t *testing.T) {
	stream := &fakeStream{
		language: "en",
		segments: []engine.Segment{
			{Start: 0, End: 5 * time.Second, Text: "Annotated."},
		},
	}
	worker, manager, index := newTestWorker(t, &fakeEngine{stream: stream})

	item := NewItem("meeting.mp3", "", engine.DefaultOptions(), true)
	if err := manager.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	worker.processNext(context.Background())

	record, ok := index.Get(item.ID)
	if !ok {
		t.Fatal("expected record in index")
	}
	data, err := os.ReadFile(index.ArtifactPath(record))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}

	line := strings.TrimRight(string(data), "\n")
	if !strings.HasPrefix(line, "[00:00:00 -> 00:00:05] [Progress: 50.000%] ") {
		t.Fatalf("unexpected annotation prefix: %q", line)
	}
	if !strings.HasSuffix(line, ": Annotated.") {
		t.Fatalf("unexpected line suffix: %q", line)
	}
	// The annotation is padded to a fixed column before the separator.
	if idx := strings.Index(line, ": Annotated."); idx < 45 {
		t.Fatalf("expected annotation padded to 45 columns, separator at %d", idx)
	}
}

func TestWorkerReportsProgress(t *testing.T) {
	stream := &fakeStream{
		language: "en",
		segments: []engine.Segment{
			{Start: 0, End: 3 * time.Second, Text: "a"},
			{Start: 3 * time.Second, End: 6 * time.Second, Text: "b"},
			{Start: 6 * time.Second, End: 12 * time.Second, Text: "c"},
		},
	}
	worker, manager, _ := newTestWorker(t, &fakeEngine{stream: stream})

	var progress []int
	worker.SetChangeCallbacks(func() {
		for _, s := range manager.Snapshot() {
			progress = append(progress, s.Progress)
		}
	}, nil)

	item := NewItem("meeting.mp3", "", engine.DefaultOptions(), false)
	if err := manager.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	worker.processNext(context.Background())

	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress moved backwards: %v", progress)
		}
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("expected final progress 100, got %v", progress)
	}
}

func TestWorkerErrorIsAbsorbed(t *testing.T) {
	worker, manager, index := newTestWorker(t, &fakeEngine{
		transcribeErr: errors.New("model load failed"),
	})

	item := NewItem("broken.mp3", "", engine.DefaultOptions(), false)
	if err := manager.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	worker.processNext(context.Background())

	record, ok := index.Get(item.ID)
	if !ok {
		t.Fatal("expected record in index even after failure")
	}
	if record.Status != transcripts.StatusError {
		t.Fatalf("expected error record, got %s", record.Status)
	}
	if state := worker.State(); state.Status != "error" {
		t.Fatalf("expected error worker status, got %q", state.Status)
	}

	// A failed job must not poison the loop: the next job still runs.
	stream := &fakeStream{language: "en", segments: []engine.Segment{
		{Start: 0, End: 10 * time.Second, Text: "ok"},
	}}
	worker.engine = &fakeEngine{stream: stream}

	next := NewItem("fine.mp3", "", engine.DefaultOptions(), false)
	if err := manager.Enqueue(next); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	// First pass rotates the stale errored head to the tail, second claims.
	worker.processNext(context.Background())
	worker.processNext(context.Background())

	if record, _ := index.Get(next.ID); record.Status != transcripts.StatusCompleted {
		t.Fatalf("expected follow-up job to complete, got %s", record.Status)
	}
}

func TestWorkerMidStreamErrorMarksError(t *testing.T) {
	stream := &fakeStream{
		language: "en",
		segments: []engine.Segment{
			{Start: 0, End: 2 * time.Second, Text: "partial"},
		},
		failAt: 1,
		err:    errors.New("decoder blew up"),
	}
	worker, manager, index := newTestWorker(t, &fakeEngine{stream: stream})

	item := NewItem("flaky.mp3", "", engine.DefaultOptions(), false)
	if err := manager.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	worker.processNext(context.Background())

	record, _ := index.Get(item.ID)
	if record.Status != transcripts.StatusError {
		t.Fatalf("expected error record, got %s", record.Status)
	}
}

func TestWorkerCancellationStopsJob(t *testing.T) {
	stream := &fakeStream{
		language: "en",
		segments: []engine.Segment{
			{Start: 0, End: 2 * time.Second, Text: "first"},
			{Start: 2 * time.Second, End: 4 * time.Second, Text: "never written"},
		},
	}

	worker, manager, index := newTestWorker(t, nil)
	item := NewItem("long.mp3", "", engine.DefaultOptions(), false)

	eng := &fakeEngine{stream: stream}
	eng.onNext = func(n int) {
		// Cancel after the first segment has been consumed.
		if n == 1 {
			if err := manager.Cancel(item.ID); err != nil {
				t.Errorf("cancel failed: %v", err)
			}
		}
	}
	worker.engine = eng

	if err := manager.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	worker.processNext(context.Background())

	record, ok := index.Get(item.ID)
	if !ok {
		t.Fatal("expected record in index")
	}
	if record.Status != transcripts.StatusStopped {
		t.Fatalf("expected stopped record, got %s", record.Status)
	}

	// The partial artifact survives cancellation.
	data, err := os.ReadFile(index.ArtifactPath(record))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "first\n" {
		t.Fatalf("unexpected partial artifact: %q", data)
	}
	if state := worker.State(); state.Status != "stopped" {
		t.Fatalf("expected stopped worker status, got %q", state.Status)
	}
}

func TestWorkerZeroDurationReportsNoProgress(t *testing.T) {
	stream := &fakeStream{
		language: "en",
		segments: []engine.Segment{
			{Start: 0, End: 3 * time.Second, Text: "short"},
		},
	}
	worker, manager, index := newTestWorker(t, &fakeEngine{stream: stream})
	worker.SetProber(func(context.Context, string) (time.Duration, error) {
		return 0, nil
	})

	item := NewItem("stream.mp3", "", engine.DefaultOptions(), false)
	if err := manager.Enqueue(item); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	worker.processNext(context.Background())

	// Unknown duration still completes; completion forces progress to 100.
	record, _ := index.Get(item.ID)
	if record.Status != transcripts.StatusCompleted {
		t.Fatalf("expected completed record, got %s", record.Status)
	}
}

func TestWorkerRunStopsOnContextCancel(t *testing.T) {
	stream := &fakeStream{language: "en"}
	worker, _, _ := newTestWorker(t, &fakeEngine{stream: stream})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name  string
		end   time.Duration
		total time.Duration
		want  float64
	}{
		{"half", 5 * time.Second, 10 * time.Second, 50},
		{"overshoot clamped", 12 * time.Second, 10 * time.Second, 100},
		{"zero total", 5 * time.Second, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progressPercent(tt.end, tt.total); got != tt.want {
				t.Fatalf("progressPercent(%v, %v) = %v, want %v", tt.end, tt.total, got, tt.want)
			}
		})
	}
}
