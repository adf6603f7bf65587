package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/aleotx/client"
)

// Publisher defines the interface for publishing operation events to NATS.
type Publisher interface {
	// PublishOperation publishes a single operation event to JetStream.
	// The event is published to the subject "ops.{kind}".
	PublishOperation(ctx context.Context, event *OperationEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// PublishRecorder receives publish measurements.
type PublishRecorder interface {
	RecordNATSPublish(subject, status string, duration float64)
}

const (
	// StreamName is the name of the JetStream stream for operations.
	StreamName = "OPERATIONS"

	// SubjectPrefix prefixes every operation subject.
	SubjectPrefix = "ops."

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "ops.*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// JetStreamPublisher publishes operation events to NATS JetStream.
type JetStreamPublisher struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	recorder PublishRecorder
	logger   *slog.Logger
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("aleotx-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// WithRecorder attaches a publish recorder and returns p.
func (p *JetStreamPublisher) WithRecorder(r PublishRecorder) *JetStreamPublisher {
	p.recorder = r
	return p
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Recorded transaction operations",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishOperation publishes a single operation event.
func (p *JetStreamPublisher) PublishOperation(ctx context.Context, event *OperationEvent) error {
	subject := event.Subject()
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal operation event: %w", err)
	}

	// The entry id doubles as the message id so JetStream drops redeliveries.
	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.EntryID))
	if p.recorder != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.recorder.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish operation: %w", err)
	}

	p.logger.Debug("published operation event",
		"subject", subject,
		"entry_id", event.EntryID,
		"state", event.State,
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// Notifier adapts a Publisher to client.Notifier.
type Notifier struct {
	Publisher Publisher
}

var _ client.Notifier = Notifier{}

// NotifyRecorded publishes the recorded entry.
func (n Notifier) NotifyRecorded(ctx context.Context, entry client.HistoryEntry) error {
	return n.Publisher.PublishOperation(ctx, FromHistoryEntry(entry))
}
