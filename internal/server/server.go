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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/scribelabs/scribed/internal/config"
	"github.com/scribelabs/scribed/internal/logging"
	"github.com/scribelabs/scribed/internal/queue"
	"github.com/scribelabs/scribed/internal/transcripts"
)

// Server is the HTTP surface of the transcription hub
type Server struct {
	cfg    *config.Config
	mux    *http.ServeMux
	server *http.Server

	manager *queue.Manager
	worker  *queue.Worker
	index   *transcripts.Index

	// Invoked after a transcript mutation so the change can be broadcast.
	// Queue mutations broadcast through the manager's own change callback.
	onTranscriptsChange func()

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the hub server over the given queue, worker and index
func New(cfg *config.Config, manager *queue.Manager, worker *queue.Worker, index *transcripts.Index) *Server {
	mux := http.NewServeMux()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:     cfg,
		mux:     mux,
		manager: manager,
		worker:  worker,
		index:   index,
		ctx:     ctx,
		cancel:  cancel,
	}

	s.server = &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      s.mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.routes()

	return s
}

// SetTranscriptsChangeCallback registers the broadcast hook for transcript
// mutations performed by request handlers
func (s *Server) SetTranscriptsChangeCallback(fn func()) {
	s.onTranscriptsChange = fn
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start() error {
	logging.Sugar.Infow("🚀 Scribed hub starting",
		"http_port", s.cfg.Server.Port,
		"queue_capacity", s.manager.Capacity())

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	logging.Sugar.Infow("🛑 Shutting down Scribed hub")

	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logging.Sugar.Infow("✅ Scribed hub shut down successfully")
	return nil
}

// routes sets up HTTP routing
func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /transcribe", s.handleTranscribe)

	s.mux.HandleFunc("GET /transcriptions", s.handleListTranscriptions)
	s.mux.HandleFunc("GET /transcription/{id}", s.handleGetTranscription)
	s.mux.HandleFunc("PUT /transcription/{id}", s.handleRenameTranscription)
	s.mux.HandleFunc("DELETE /transcription/{id}", s.handleDeleteTranscription)
	s.mux.HandleFunc("GET /transcription/{id}/download", s.handleDownloadTranscription)

	s.mux.HandleFunc("DELETE /queue/{id}", s.handleRemoveQueued)
	s.mux.HandleFunc("DELETE /queue/{id}/stop", s.handleStopProcessing)

	logging.Sugar.Infow("🌐 HTTP routes configured",
		"admission_endpoint", "/transcribe",
		"transcriptions_endpoint", "/transcriptions",
		"queue_endpoint", "/queue/{id}")
}

// handleHealth provides system health information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.worker.State()

	health := map[string]interface{}{
		"status":             "ok",
		"timestamp":          time.Now(),
		"transcriber_status": state.Status,
		"current_device":     state.Device,
		"gpu_available":      state.GPUAvailable,
		"queue_length":       s.manager.Len(),
		"queue_capacity":     s.manager.Capacity(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := writeJSON(w, health); err != nil {
		logging.Sugar.Errorw("Failed to write health response", "error", err)
	}
}

// handleListTranscriptions returns the transcript listing, newest first
func (s *Server) handleListTranscriptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := writeJSON(w, map[string]interface{}{
		"transcriptions": s.index.Snapshot(),
	}); err != nil {
		logging.Sugar.Errorw("Failed to write transcriptions response", "error", err)
	}
}

// handleGetTranscription returns the transcript text inline
func (s *Server) handleGetTranscription(w http.ResponseWriter, r *http.Request) {
	record, ok := s.index.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Transcription not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, s.index.ArtifactPath(record))
}

// handleDownloadTranscription serves the artifact as an attachment named
// after the display name
func (s *Server) handleDownloadTranscription(w http.ResponseWriter, r *http.Request) {
	record, ok := s.index.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Transcription not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", record.DownloadName()))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, s.index.ArtifactPath(record))
}

// handleRenameTranscription updates a transcript's display name
func (s *Server) handleRenameTranscription(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DisplayName string `json:"display_name"`
	}
	if err := readJSON(r, &request); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if request.DisplayName == "" {
		http.Error(w, "display_name required", http.StatusBadRequest)
		return
	}

	record, err := s.index.Rename(r.PathValue("id"), request.DisplayName)
	if err != nil {
		if errors.Is(err, transcripts.ErrNotFound) {
			http.Error(w, "Transcription not found", http.StatusNotFound)
			return
		}
		logging.Sugar.Errorw("Failed to rename transcription", "error", err)
		http.Error(w, "Rename failed", http.StatusInternalServerError)
		return
	}

	s.notifyTranscripts()

	w.Header().Set("Content-Type", "application/json")
	if err := writeJSON(w, record.Summary()); err != nil {
		logging.Sugar.Errorw("Failed to write rename response", "error", err)
	}
}

// handleDeleteTranscription removes a transcript and its artifact
func (s *Server) handleDeleteTranscription(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, transcripts.ErrNotFound) {
			http.Error(w, "Transcription not found", http.StatusNotFound)
			return
		}
		logging.Sugar.Errorw("Failed to delete transcription", "error", err)
		http.Error(w, "Delete failed", http.StatusInternalServerError)
		return
	}

	s.notifyTranscripts()
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveQueued drops a pending item from the queue
func (s *Server) handleRemoveQueued(w http.ResponseWriter, r *http.Request) {
	err := s.manager.Remove(r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, queue.ErrNotFound):
		http.Error(w, "Item not found", http.StatusNotFound)
	case errors.Is(err, queue.ErrNotRemovable):
		http.Error(w, "Item is not pending", http.StatusConflict)
	default:
		logging.Sugar.Errorw("Failed to remove queued item", "error", err)
		http.Error(w, "Remove failed", http.StatusInternalServerError)
	}
}

// handleStopProcessing cancels the item currently being transcribed
func (s *Server) handleStopProcessing(w http.ResponseWriter, r *http.Request) {
	err := s.manager.Cancel(r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, queue.ErrNotFound):
		http.Error(w, "Item not found", http.StatusNotFound)
	case errors.Is(err, queue.ErrNotCancelable):
		http.Error(w, "Item is not processing", http.StatusConflict)
	default:
		logging.Sugar.Errorw("Failed to stop processing item", "error", err)
		http.Error(w, "Stop failed", http.StatusInternalServerError)
	}
}

func (s *Server) notifyTranscripts() {
	if s.onTranscriptsChange != nil {
		s.onTranscriptsChange()
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, data interface{}) error {
	return json.NewEncoder(w).Encode(data)
}

func readJSON(r *http.Request, data interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	defer func() { _ = r.Body.Close() }()

	return json.Unmarshal(body, data)
}
