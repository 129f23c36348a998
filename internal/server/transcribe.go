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
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/scribelabs/scribed/internal/engine"
	"github.com/scribelabs/scribed/internal/logging"
	"github.com/scribelabs/scribed/internal/queue"
	"github.com/scribelabs/scribed/internal/security"
)

// rejectedFile reports a per-file admission failure
type rejectedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// handleTranscribe admits a batch of audio files into the queue. Files with
// disallowed extensions are rejected individually; admission of the accepted
// files is all-or-nothing against the queue capacity.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadSize); err != nil {
		http.Error(w, "Invalid multipart request", http.StatusBadRequest)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	opts, addInfo, err := parseTranscribeOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		http.Error(w, "No files provided", http.StatusBadRequest)
		return
	}

	var items []*queue.Item
	var rejected []rejectedFile
	var savedPaths []string

	for _, header := range uploads {
		filename := filepath.Base(header.Filename)
		if err := security.ValidateUploadFilename(filename); err != nil {
			rejected = append(rejected, rejectedFile{
				Filename: security.SanitizeLogInput(filename),
				Reason:   "invalid filename",
			})
			continue
		}
		if !ExtensionAllowed(filename) {
			rejected = append(rejected, rejectedFile{
				Filename: filename,
				Reason:   "unsupported file type",
			})
			continue
		}

		path, storedName, err := s.saveUpload(header, filename)
		if err != nil {
			logging.Sugar.Errorw("Failed to save upload",
				"filename", security.SanitizeLogInput(filename), "error", err)
			rejected = append(rejected, rejectedFile{
				Filename: filename,
				Reason:   "failed to store upload",
			})
			continue
		}

		savedPaths = append(savedPaths, path)
		items = append(items, queue.NewItem(storedName, path, opts, addInfo))
	}

	if len(items) == 0 {
		writeTranscribeResponse(w, http.StatusBadRequest, nil, rejected)
		return
	}

	if err := s.manager.Enqueue(items...); err != nil {
		for _, path := range savedPaths {
			_ = os.Remove(path)
		}
		if errors.Is(err, queue.ErrQueueFull) {
			http.Error(w, "Queue is full", http.StatusTooManyRequests)
			return
		}
		logging.Sugar.Errorw("Failed to enqueue uploads", "error", err)
		http.Error(w, "Failed to enqueue", http.StatusInternalServerError)
		return
	}

	queued := make([]queue.Summary, len(items))
	for i, item := range items {
		queued[i] = item.Summary()
	}

	status := http.StatusOK
	if len(rejected) > 0 {
		status = http.StatusMultiStatus
	}
	writeTranscribeResponse(w, status, queued, rejected)
}

func writeTranscribeResponse(w http.ResponseWriter, status int, queued []queue.Summary, rejected []rejectedFile) {
	response := map[string]interface{}{
		"queued": queued,
	}
	if len(rejected) > 0 {
		response["rejected"] = rejected
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := writeJSON(w, response); err != nil {
		logging.Sugar.Errorw("Failed to write transcribe response", "error", err)
	}
}

// saveUpload stores the uploaded file in the upload directory. A name that is
// already taken gets a numeric suffix: clip.mp3, clip(1).mp3, clip(2).mp3.
func (s *Server) saveUpload(header *multipart.FileHeader, filename string) (string, string, error) {
	source, err := header.Open()
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = source.Close() }()

	storedName := filename
	path := filepath.Join(s.cfg.Paths.UploadDir, storedName)
	ext := filepath.Ext(filename)
	stem := filename[:len(filename)-len(ext)]

	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		storedName = fmt.Sprintf("%s(%d)%s", stem, n, ext)
		path = filepath.Join(s.cfg.Paths.UploadDir, storedName)
	}

	target, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create upload file: %w", err)
	}
	defer func() { _ = target.Close() }()

	if _, err := io.Copy(target, source); err != nil {
		_ = os.Remove(path)
		return "", "", fmt.Errorf("write upload file: %w", err)
	}

	return path, storedName, nil
}

// parseTranscribeOptions reads the per-job configuration from the form,
// falling back to the documented defaults for absent fields.
func parseTranscribeOptions(r *http.Request) (engine.Options, bool, error) {
	opts := engine.DefaultOptions()
	addInfo := false

	if v := r.FormValue("language"); v != "" {
		opts.Language = v
	}
	if v := r.FormValue("model"); v != "" {
		if !engine.IsSupportedModel(v) {
			return opts, false, fmt.Errorf("unsupported model %q", v)
		}
		opts.Model = v
	}

	var err error
	if addInfo, err = formBool(r, "add_info", false); err != nil {
		return opts, false, err
	}
	if opts.VADFilter, err = formBool(r, "vad_filter", opts.VADFilter); err != nil {
		return opts, false, err
	}
	if opts.BeamSize, err = formInt(r, "beam_size", opts.BeamSize); err != nil {
		return opts, false, err
	}
	if opts.BestOf, err = formInt(r, "best_of", opts.BestOf); err != nil {
		return opts, false, err
	}
	if opts.NoRepeatNgramSize, err = formInt(r, "no_repeat_ngram_size", opts.NoRepeatNgramSize); err != nil {
		return opts, false, err
	}
	if opts.Temperature, err = formFloat(r, "temperature", opts.Temperature); err != nil {
		return opts, false, err
	}
	if opts.CompressionRatioThreshold, err = formFloat(r, "compression_ratio_threshold", opts.CompressionRatioThreshold); err != nil {
		return opts, false, err
	}

	if v := r.FormValue("vad_min_silence"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return opts, false, fmt.Errorf("invalid vad_min_silence %q", v)
		}
		opts.VADMinSilence = time.Duration(ms) * time.Millisecond
	}
	if v := r.FormValue("patience"); v != "" {
		patience, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, false, fmt.Errorf("invalid patience %q", v)
		}
		opts.Patience = &patience
	}

	return opts, addInfo, nil
}

func formBool(r *http.Request, field string, fallback bool) (bool, error) {
	v := r.FormValue(field)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q", field, v)
	}
	return parsed, nil
}

func formInt(r *http.Request, field string, fallback int) (int, error) {
	v := r.FormValue(field)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q", field, v)
	}
	return parsed, nil
}

func formFloat(r *http.Request, field string, fallback float64) (float64, error) {
	v := r.FormValue(field)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q", field, v)
	}
	return parsed, nil
}
