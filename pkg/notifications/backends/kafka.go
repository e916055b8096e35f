package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// DefaultKafkaTopic is the topic changes are produced to when none is
// configured.
const DefaultKafkaTopic = "rdocs.document-changes"

// Producer is the subset of the franz-go client the kafka backend uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaBackendConfig holds configuration for the kafka backend
type KafkaBackendConfig struct {
	Brokers []string
	Topic   string
}

// KafkaBackend produces the JSON change envelope of every change to a
// Redpanda/Kafka topic, keyed by document so that changes to one document
// stay ordered within a partition.
type KafkaBackend struct {
	client Producer
	topic  string
}

// NewKafkaBackend creates a franz-go producer for the configured brokers.
func NewKafkaBackend(cfg KafkaBackendConfig) (*KafkaBackend, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultKafkaTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(topic),

		// Wait for all in-sync replicas to acknowledge.
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		// Linear backoff capped at 10s; the document write has already
		// succeeded so the request should not hang on a slow broker.
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(5),
		kgo.ProducerLinger(10*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return NewKafkaBackendWithProducer(client, topic), nil
}

// NewKafkaBackendWithProducer wraps an existing producer.
func NewKafkaBackendWithProducer(client Producer, topic string) *KafkaBackend {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &KafkaBackend{client: client, topic: topic}
}

// Name returns the backend identifier
func (b *KafkaBackend) Name() string {
	return "kafka"
}

// Topic returns the topic changes are produced to.
func (b *KafkaBackend) Topic() string {
	return b.topic
}

// Handle produces the change envelope
func (b *KafkaBackend) Handle(ctx context.Context, change *models.Change) error {
	value, err := json.Marshal(change)
	if err != nil {
		return NewBackendError(b.Name(), "encode", false, err)
	}

	record := &kgo.Record{
		Topic: b.topic,
		Key:   []byte(models.DocumentKey(change.DocumentID)),
		Value: value,
	}
	if err := b.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return NewBackendError(b.Name(), "produce", true, err)
	}
	return nil
}

// Close flushes and closes the producer
func (b *KafkaBackend) Close() error {
	b.client.Close()
	return nil
}
