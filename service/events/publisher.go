package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/veilcash/veil/service/metrics"
)

// Publisher defines the interface for publishing wallet events.
type Publisher interface {
	// PublishBalance publishes a balance-change event to the subject
	// "veil.balance.{address}".
	PublishBalance(ctx context.Context, event *BalanceEvent) error

	// PublishOperation publishes an orchestration diagnostic event to the
	// subject "veil.ops.{operation}".
	PublishOperation(ctx context.Context, event *OperationEvent) error

	// Close closes the connection to NATS.
	Close() error
}

const (
	// StreamName is the name of the JetStream stream for wallet events.
	StreamName = "VEIL_EVENTS"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "veil.>"

	// StreamRetention is how long messages are retained.
	StreamRetention = 30 * 24 * time.Hour
)

// JetStreamPublisher publishes wallet events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a new JetStream publisher. It connects to NATS and
// ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("veil-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
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
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
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

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Balance and orchestration events from the veil wallet core",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishBalance publishes a balance-change event.
func (p *JetStreamPublisher) PublishBalance(ctx context.Context, event *BalanceEvent) error {
	event.PublishedAt = time.Now().UTC()
	return p.publish(ctx, fmt.Sprintf("veil.balance.%s", event.Address), event)
}

// PublishOperation publishes an orchestration diagnostic event.
func (p *JetStreamPublisher) PublishOperation(ctx context.Context, event *OperationEvent) error {
	event.PublishedAt = time.Now().UTC()
	return p.publish(ctx, fmt.Sprintf("veil.ops.%s", event.Operation), event)
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, status, duration)
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("published event", "subject", subject)
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

var _ Publisher = (*JetStreamPublisher)(nil)
