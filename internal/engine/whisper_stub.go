//go:build !whisper

package engine

import (
	"context"
	"fmt"

	"github.com/scribelabs/scribed/internal/config"
)

// WhisperEngine stub implementation when whisper is disabled
type WhisperEngine struct {
	cfg config.EngineConfig
}

// NewWhisperEngine creates a stub engine when whisper is disabled
func NewWhisperEngine(cfg config.EngineConfig) (*WhisperEngine, error) {
	return &WhisperEngine{cfg: cfg}, nil
}

// Transcribe stub implementation always fails
func (e *WhisperEngine) Transcribe(ctx context.Context, path string, opts Options) (Stream, error) {
	return nil, fmt.Errorf("whisper engine disabled (build with -tags whisper to enable)")
}

// Device stub implementation
func (e *WhisperEngine) Device() string {
	return "none"
}

// GPUAvailable stub implementation
func (e *WhisperEngine) GPUAvailable() bool {
	return false
}

// Close stub implementation
func (e *WhisperEngine) Close() error {
	return nil
}
