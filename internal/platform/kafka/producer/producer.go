package producer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes records to Kafka.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
	Close()
}

// Kafka is a Producer backed by a franz-go client.
type Kafka struct {
	client *kgo.Client
	logger *slog.Logger
}

// New connects to the given brokers. Brokers is a comma-separated list.
func New(logger *slog.Logger, brokers string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, logger: logger}, nil
}

func (k *Kafka) Publish(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

func (k *Kafka) Close() {
	k.client.Close()
}

// Noop is a Producer that drops everything. Used when Kafka is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, []byte, []byte) error { return nil }
func (Noop) Close()                                                {}
