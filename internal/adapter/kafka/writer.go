package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/config"
	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes cleaned feature rows to a Kafka topic.
// It implements pipeline.RowPublisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured forcing topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// RowMessage is the JSON value of one published row.
type RowMessage struct {
	Time   time.Time          `json:"time"`
	RunID  string             `json:"run_id"`
	Source string             `json:"source"`
	Values map[string]float64 `json:"values"`
}

// Publish writes every row of the table in a single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, runID, source string, table domain.FeatureTable) error {
	if table.Len() == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, table.Len())
	for i, r := range table.Rows {
		msg, err := serializeToMessage(runID, source, r)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d rows: %w", len(msgs), err)
	}
	w.logger.Debug("rows published", "run_id", runID, "source", source, "rows", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a feature row into a Kafka message keyed by its timestamp.
func serializeToMessage(runID, source string, r domain.Row) (kafkago.Message, error) {
	values := make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			values[k] = v
		}
	}
	ts := r.Time.UTC()
	data, err := json.Marshal(RowMessage{Time: ts, RunID: runID, Source: source, Values: values})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize row %s: %w", ts.Format(time.RFC3339), err)
	}
	return kafkago.Message{
		Key:   []byte(ts.Format(time.RFC3339)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "source", Value: []byte(source)},
		},
	}, nil
}
