package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/scribelabs/scribed/internal/queue"
	"github.com/scribelabs/scribed/internal/transcripts"
)

// NATSService publishes Scribed state change events to subscribers
type NATSService struct {
	conn *nats.Conn
	url  string
}

// QueueStatusEvent is the full queue snapshot broadcast on every queue or
// worker state change
type QueueStatusEvent struct {
	Queue             []queue.Summary `json:"queue"`
	TranscriberStatus string          `json:"transcriber_status"`
	CurrentFile       string          `json:"current_file"`
	CurrentDevice     string          `json:"current_device"`
	GPUAvailable      bool            `json:"gpu_available"`
}

// TranscriptionsEvent is the full transcript listing broadcast whenever the
// transcript set changes
type TranscriptionsEvent struct {
	Transcriptions []transcripts.Summary `json:"transcriptions"`
}

// NATS subjects for the two broadcast channels
const (
	SubjectQueueStatus    = "scribed.queue.status"
	SubjectTranscriptions = "scribed.transcriptions.update"
)

// NewNATSService creates a new NATS service instance
func NewNATSService(url string) *NATSService {
	if url == "" {
		url = nats.DefaultURL
	}
	return &NATSService{url: url}
}

// Connect establishes connection to NATS server
func (ns *NATSService) Connect() error {
	log.Printf("🔌 Connecting to NATS at %s", ns.url)

	// Connection options with retry logic
	opts := []nats.Option{
		nats.Name("scribed"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1), // Retry indefinitely
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️  NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("🔄 NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("🔌 NATS connection closed")
		}),
	}

	conn, err := nats.Connect(ns.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ns.conn = conn
	log.Printf("✅ Connected to NATS server at %s", conn.ConnectedUrl())
	return nil
}

// PublishQueueStatus publishes a queue snapshot event
func (ns *NATSService) PublishQueueStatus(event *QueueStatusEvent) error {
	if ns.conn == nil {
		return fmt.Errorf("NATS connection not established")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal queue status event: %w", err)
	}

	if err := ns.conn.Publish(SubjectQueueStatus, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", SubjectQueueStatus, err)
	}
	return nil
}

// PublishTranscriptions publishes a transcript listing event
func (ns *NATSService) PublishTranscriptions(event *TranscriptionsEvent) error {
	if ns.conn == nil {
		return fmt.Errorf("NATS connection not established")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transcriptions event: %w", err)
	}

	if err := ns.conn.Publish(SubjectTranscriptions, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", SubjectTranscriptions, err)
	}
	return nil
}

// SubscribeToQueueStatus subscribes to queue snapshot events
func (ns *NATSService) SubscribeToQueueStatus(handler func(*QueueStatusEvent)) (*nats.Subscription, error) {
	if ns.conn == nil {
		return nil, fmt.Errorf("NATS connection not established")
	}

	return ns.conn.Subscribe(SubjectQueueStatus, func(msg *nats.Msg) {
		var event QueueStatusEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("❌ Error unmarshaling queue status: %v", err)
			return
		}
		handler(&event)
	})
}

// SubscribeToTranscriptions subscribes to transcript listing events
func (ns *NATSService) SubscribeToTranscriptions(handler func(*TranscriptionsEvent)) (*nats.Subscription, error) {
	if ns.conn == nil {
		return nil, fmt.Errorf("NATS connection not established")
	}

	return ns.conn.Subscribe(SubjectTranscriptions, func(msg *nats.Msg) {
		var event TranscriptionsEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("❌ Error unmarshaling transcriptions update: %v", err)
			return
		}
		handler(&event)
	})
}

// Close closes the NATS connection
func (ns *NATSService) Close() {
	if ns.conn != nil {
		ns.conn.Close()
		log.Println("🔌 NATS connection closed")
	}
}

// IsConnected returns true if connected to NATS
func (ns *NATSService) IsConnected() bool {
	return ns.conn != nil && ns.conn.IsConnected()
}

// GetStats returns connection statistics
func (ns *NATSService) GetStats() nats.Statistics {
	if ns.conn != nil {
		return ns.conn.Stats()
	}
	return nats.Statistics{}
}
