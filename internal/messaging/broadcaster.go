package messaging

import (
	"go.uber.org/zap"

	"github.com/scribelabs/scribed/internal/logging"
	"github.com/scribelabs/scribed/internal/queue"
	"github.com/scribelabs/scribed/internal/transcripts"
)

// Broadcaster assembles full state snapshots and pushes them to NATS. It is
// wired as the change callback of the queue manager, the worker and the
// request handlers. Publishing is best effort: when NATS is down the service
// keeps running and clients fall back to polling the HTTP API.
type Broadcaster struct {
	nats    *NATSService
	manager *queue.Manager
	worker  *queue.Worker
	index   *transcripts.Index
}

// NewBroadcaster creates a broadcaster over the given state sources
func NewBroadcaster(nats *NATSService, manager *queue.Manager, worker *queue.Worker, index *transcripts.Index) *Broadcaster {
	return &Broadcaster{
		nats:    nats,
		manager: manager,
		worker:  worker,
		index:   index,
	}
}

// QueueStatus assembles the current queue snapshot event
func (b *Broadcaster) QueueStatus() *QueueStatusEvent {
	state := b.worker.State()
	return &QueueStatusEvent{
		Queue:             b.manager.Snapshot(),
		TranscriberStatus: state.Status,
		CurrentFile:       state.CurrentFile,
		CurrentDevice:     state.Device,
		GPUAvailable:      state.GPUAvailable,
	}
}

// Transcriptions assembles the current transcript listing event
func (b *Broadcaster) Transcriptions() *TranscriptionsEvent {
	return &TranscriptionsEvent{Transcriptions: b.index.Snapshot()}
}

// BroadcastQueueStatus publishes the current queue snapshot
func (b *Broadcaster) BroadcastQueueStatus() {
	if b.nats == nil || !b.nats.IsConnected() {
		return
	}
	if err := b.nats.PublishQueueStatus(b.QueueStatus()); err != nil {
		logging.LogWarn("Failed to broadcast queue status", zap.Error(err))
	}
}

// BroadcastTranscriptions publishes the current transcript listing
func (b *Broadcaster) BroadcastTranscriptions() {
	if b.nats == nil || !b.nats.IsConnected() {
		return
	}
	if err := b.nats.PublishTranscriptions(b.Transcriptions()); err != nil {
		logging.LogWarn("Failed to broadcast transcript listing", zap.Error(err))
	}
}
