package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mlidstrom/castellan/internal/event"
)

// messageReader is the subset of *kafka.Reader the live collector depends
// on. Abstracted so unit tests can inject a fake without a broker; the
// integration test exercises the real *kafka.Reader against a testcontainer.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConfig configures the live collector's connection to the topic a
// Windows Event Forwarder (or an intermediate shipper) publishes records to.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	// MinBytes/MaxBytes tune the reader's fetch batching. Zero values fall
	// back to kafka-go's own defaults.
	MinBytes int
	MaxBytes int
}

// wireLogEvent is the JSON shape a collector source publishes. It exists so
// the wire format (snake_case, RFC3339 timestamp) can evolve independently
// of the internal event.LogEvent field names.
type wireLogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	Channel   string    `json:"channel"`
	EventID   int       `json:"event_id"`
	Level     string    `json:"level"`
	User      string    `json:"user"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
	UniqueID  string    `json:"unique_id"`
}

// ErrMissingUniqueID indicates a decoded wire record had no unique_id.
// Collectors MUST assign one; it is the sole key for equality and dedupe,
// and KafkaCollector refuses to synthesize one on the consumer's behalf.
var ErrMissingUniqueID = errors.New("collector: record missing unique_id")

// KafkaCollector is a live, unbounded Collector reading Windows event-log
// records forwarded onto a Kafka topic.
type KafkaCollector struct {
	name   string
	cfg    KafkaConfig
	logger *slog.Logger

	// newReader is overridable for tests; defaults to wrapping
	// kafka.NewReader.
	newReader func(KafkaConfig) messageReader
}

// NewKafkaCollector returns a KafkaCollector for cfg.
func NewKafkaCollector(name string, cfg KafkaConfig, logger *slog.Logger) *KafkaCollector {
	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaCollector{
		name:   name,
		cfg:    cfg,
		logger: logger,
		newReader: func(c KafkaConfig) messageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:  c.Brokers,
				Topic:    c.Topic,
				GroupID:  c.GroupID,
				MinBytes: c.MinBytes,
				MaxBytes: c.MaxBytes,
			})
		},
	}
}

// Name implements Collector.
func (k *KafkaCollector) Name() string {
	return k.name
}

// Collect implements Collector. It opens a fresh reader on every call, so
// KafkaCollector is restartable after a prior ctx was cancelled.
func (k *KafkaCollector) Collect(ctx context.Context) (<-chan Record, error) {
	reader := k.newReader(k.cfg)

	out := make(chan Record)

	go func() {
		defer close(out)
		defer func() {
			if err := reader.Close(); err != nil {
				k.logger.Warn("kafka collector: close failed",
					slog.String("collector", k.name),
					slog.String("error", err.Error()))
			}
		}()

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}

				select {
				case out <- Record{Err: fmt.Errorf("kafka collector %s: read: %w", k.name, err)}:
				case <-ctx.Done():
					return
				}

				continue
			}

			rec, decodeErr := decodeWireLogEvent(msg.Value)
			if decodeErr != nil {
				select {
				case out <- Record{Err: fmt.Errorf("kafka collector %s: decode: %w", k.name, decodeErr)}:
				case <-ctx.Done():
					return
				}

				continue
			}

			select {
			case out <- Record{Event: rec}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// decodeWireLogEvent parses a JSON wire record into event.LogEvent.
func decodeWireLogEvent(payload []byte) (event.LogEvent, error) {
	var w wireLogEvent

	if err := json.Unmarshal(payload, &w); err != nil {
		return event.LogEvent{}, fmt.Errorf("unmarshal: %w", err)
	}

	if w.UniqueID == "" {
		return event.LogEvent{}, ErrMissingUniqueID
	}

	return event.LogEvent{
		Timestamp: w.Timestamp,
		Host:      w.Host,
		Channel:   w.Channel,
		EventID:   w.EventID,
		Level:     w.Level,
		User:      w.User,
		Message:   w.Message,
		Raw:       w.Raw,
		UniqueID:  w.UniqueID,
	}, nil
}
