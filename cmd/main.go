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

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/scribelabs/scribed/internal/config"
	"github.com/scribelabs/scribed/internal/engine"
	"github.com/scribelabs/scribed/internal/logging"
	"github.com/scribelabs/scribed/internal/messaging"
	"github.com/scribelabs/scribed/internal/queue"
	"github.com/scribelabs/scribed/internal/server"
	"github.com/scribelabs/scribed/internal/storage"
	"github.com/scribelabs/scribed/internal/transcripts"
)

func main() {
	// Initialize structured logging
	if err := logging.Initialize(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		logging.LogError(err, "Invalid configuration")
		log.Fatalf("Invalid configuration: %v", err)
	}

	// One process per host: the inference engine is an exclusive resource
	// and a second instance would also fight over the transcripts directory.
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.LockPath), 0750); err != nil {
		log.Fatalf("Failed to create lock directory: %v", err)
	}
	lock := flock.New(cfg.Paths.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("Failed to acquire instance lock: %v", err)
	}
	if !locked {
		log.Fatalf("Another scribed instance is already running (lock: %s)", cfg.Paths.LockPath)
	}
	defer func() { _ = lock.Unlock() }()

	// Uploads from a previous run are orphans: their queue entries died with
	// the process.
	server.CleanUploadDir(cfg.Paths.UploadDir)

	database, err := storage.NewDatabase(storage.DatabaseConfig{Path: cfg.Paths.DBPath})
	if err != nil {
		logging.LogError(err, "Failed to open transcript cache database")
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = database.Close() }()

	index := transcripts.NewIndex(cfg.Paths.TranscriptsDir, storage.NewTranscriptsStore(database))
	if err := index.Rebuild(); err != nil {
		logging.LogError(err, "Failed to rebuild transcript index")
		log.Fatalf("Failed to rebuild transcript index: %v", err)
	}

	eng, err := engine.NewWhisperEngine(cfg.Engine)
	if err != nil {
		logging.LogError(err, "Failed to initialize transcription engine")
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer func() { _ = eng.Close() }()

	manager := queue.NewManager(cfg.Queue.Capacity)
	worker := queue.NewWorker(manager, index, eng, queue.WorkerConfig{
		PollInterval:     cfg.Queue.PollInterval,
		RemovalDelay:     cfg.Queue.RemovalDelay,
		ProgressInterval: cfg.Queue.ProgressInterval,
		FFprobeBinary:    cfg.Engine.FFprobeBinary,
	})

	nats := messaging.NewNATSService(cfg.NATS.URL)
	if err := nats.Connect(); err != nil {
		// Push notifications are an enhancement; clients can poll the API.
		logging.LogError(err, "NATS unavailable, continuing without push notifications")
	}
	defer nats.Close()

	broadcaster := messaging.NewBroadcaster(nats, manager, worker, index)
	manager.SetChangeCallback(broadcaster.BroadcastQueueStatus)
	worker.SetChangeCallbacks(broadcaster.BroadcastQueueStatus, broadcaster.BroadcastTranscriptions)

	srv := server.New(cfg, manager, worker, index)
	srv.SetTranscriptsChangeCallback(broadcaster.BroadcastTranscriptions)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	go worker.Run(workerCtx)

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		logging.Sugar.Infow("Received shutdown signal", "signal", sig.String())

		stopWorker()
		if err := srv.Stop(); err != nil {
			logging.LogError(err, "Shutdown failed")
		}
	}()

	logging.Sugar.Infow("🚀 scribed starting",
		"http_port", cfg.Server.Port,
		"transcripts_dir", cfg.Paths.TranscriptsDir,
		"db_path", cfg.Paths.DBPath,
		"device", eng.Device(),
	)

	if err := srv.Start(); err != nil {
		stopWorker()
		logging.LogError(err, "Failed to start server")
		log.Fatalf("Failed to start server: %v", err)
	}
}
