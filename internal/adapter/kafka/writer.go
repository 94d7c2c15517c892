package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes scan summaries to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes the summaries and writes them in a single
// WriteMessages call.
func (w *Writer) Publish(ctx context.Context, summaries []domain.ScanSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(summaries))
	for i := range summaries {
		msg, err := serializeToMessage(summaries[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d scan summaries: %w", len(msgs), err)
	}
	w.logger.Debug("scan summaries written", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ScanSummary into a Kafka message keyed by
// summary ID.
func serializeToMessage(s domain.ScanSummary) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize scan summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(s.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(s.RunID)},
			{Key: "product", Value: []byte(s.Product)},
			{Key: "processed_at", Value: []byte(s.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
