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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Scribed hub
type Config struct {
	Server  ServerConfig
	Queue   QueueConfig
	Paths   PathsConfig
	Engine  EngineConfig
	Logging LoggingConfig
	NATS    NATSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxUploadSize int64
}

// QueueConfig holds job queue and worker configuration
type QueueConfig struct {
	Capacity         int           // maximum pending+processing items admitted
	PollInterval     time.Duration // worker fallback tick between head checks
	RemovalDelay     time.Duration // grace period before terminal items leave the queue view
	ProgressInterval time.Duration // minimum wall-clock gap between progress broadcasts
}

// PathsConfig holds filesystem locations used by the hub
type PathsConfig struct {
	TranscriptsDir string // persisted transcript artifacts (source of truth)
	UploadDir      string // temporary audio uploads
	DBPath         string // sqlite transcript index cache
	LockPath       string // single-instance daemon lock file
}

// EngineConfig holds inference engine configuration
type EngineConfig struct {
	ModelDir      string // directory containing ggml model files
	Device        string // "cpu" or "cuda"
	Threads       int
	FFmpegBinary  string
	FFprobeBinary string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	URL           string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:          getEnvString("SCRIBED_HOST", "0.0.0.0"),
			Port:          getEnvInt("SCRIBED_PORT", 12345),
			ReadTimeout:   getEnvDuration("SCRIBED_READ_TIMEOUT", 10*time.Minute),
			WriteTimeout:  getEnvDuration("SCRIBED_WRITE_TIMEOUT", 10*time.Minute),
			MaxUploadSize: getEnvInt64("SCRIBED_MAX_UPLOAD_SIZE", 1<<30),
		},
		Queue: QueueConfig{
			Capacity:         getEnvInt("SCRIBED_QUEUE_CAPACITY", 20),
			PollInterval:     getEnvDuration("SCRIBED_POLL_INTERVAL", 2*time.Second),
			RemovalDelay:     getEnvDuration("SCRIBED_REMOVAL_DELAY", 60*time.Second),
			ProgressInterval: getEnvDuration("SCRIBED_PROGRESS_INTERVAL", 500*time.Millisecond),
		},
		Paths: PathsConfig{
			TranscriptsDir: getEnvString("SCRIBED_TRANSCRIPTS_DIR", "./data/transcriptions"),
			UploadDir:      getEnvString("SCRIBED_UPLOAD_DIR", os.TempDir()),
			DBPath:         getEnvString("SCRIBED_DB_PATH", "./data/scribed.db"),
			LockPath:       getEnvString("SCRIBED_LOCK_PATH", "./data/scribed.lock"),
		},
		Engine: EngineConfig{
			ModelDir:      getEnvString("SCRIBED_MODEL_DIR", "./models"),
			Device:        getEnvString("SCRIBED_DEVICE", "cpu"),
			Threads:       getEnvInt("SCRIBED_THREADS", 4),
			FFmpegBinary:  getEnvString("SCRIBED_FFMPEG", "ffmpeg"),
			FFprobeBinary: getEnvString("SCRIBED_FFPROBE", "ffprobe"),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		NATS: NATSConfig{
			URL:           getEnvString("NATS_URL", "nats://localhost:4222"),
			MaxReconnect:  getEnvInt("NATS_MAX_RECONNECT", 10),
			ReconnectWait: getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive: %d", c.Queue.Capacity)
	}

	if c.Queue.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %v", c.Queue.PollInterval)
	}

	if c.Queue.ProgressInterval < 0 {
		return fmt.Errorf("progress interval must not be negative: %v", c.Queue.ProgressInterval)
	}

	if c.Paths.TranscriptsDir == "" {
		return fmt.Errorf("transcripts directory must be provided")
	}

	if c.Paths.UploadDir == "" {
		return fmt.Errorf("upload directory must be provided")
	}

	if c.Engine.Device != "cpu" && c.Engine.Device != "cuda" {
		return fmt.Errorf("unknown engine device: %q", c.Engine.Device)
	}

	if c.Engine.Threads <= 0 {
		return fmt.Errorf("engine threads must be positive: %d", c.Engine.Threads)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
