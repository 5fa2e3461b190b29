package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/engine"
)

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes event documents keyed by address. Decode failures go to the
// dead-letter writer when one is configured.
type Kafka struct {
	out MessageWriter
	dlq MessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 5 * time.Millisecond,
		Compression:  kafka.Snappy,
		RequiredAcks: kafka.RequireOne,
	}
}

// DialKafka builds writers for topic and, when dlqTopic is set, the DLQ.
func DialKafka(brokers []string, topic, dlqTopic string) *Kafka {
	k := &Kafka{out: NewKafkaWriter(brokers, topic)}
	if dlqTopic != "" {
		k.dlq = NewKafkaWriter(brokers, dlqTopic)
	}
	return k
}

func NewKafka(out, dlq MessageWriter) *Kafka {
	return &Kafka{out: out, dlq: dlq}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Publish(ctx context.Context, ev continuity.Event) error {
	b, err := EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("sink: encode event: %w", err)
	}
	err = k.out.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Address.String()),
		Value: b,
		Time:  ev.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("sink: kafka write: %w", err)
	}
	return nil
}

func (k *Kafka) PublishError(ctx context.Context, de *engine.DecodeError) error {
	if k.dlq == nil {
		return nil
	}
	b, err := encodeDecodeError(de)
	if err != nil {
		return err
	}
	return k.dlq.WriteMessages(ctx, kafka.Message{
		Key:   []byte(de.Address.String()),
		Value: b,
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(de.Err.Error())},
		},
	})
}

func (k *Kafka) Close() error {
	var errs []error
	if err := k.out.Close(); err != nil {
		errs = append(errs, err)
	}
	if k.dlq != nil {
		if err := k.dlq.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
