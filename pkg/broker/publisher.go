package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Event names, prefixed with the configured topic prefix on publish.
const (
	EventPaymentCompleted  = "payment.completed"
	EventPaymentFailed     = "payment.failed"
	EventVoucherActivated  = "voucher.activated"
	EventSessionTerminated = "session.terminated"
)

type Publisher interface {
	Publish(ctx context.Context, event, key string, payload []byte) error
	Close() error
}

// ==================== Kafka ====================

type KafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
	log      *zap.Logger
}

// NewKafkaPublisher dials the brokers with a synchronous, fully acknowledged
// producer.
func NewKafkaPublisher(brokers []string, prefix string, log *zap.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 250 * time.Millisecond
	config.Net.DialTimeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer, prefix, log), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, prefix string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		prefix:   prefix,
		log:      log.With(zap.String("publisher", "kafka")),
	}
}

// Topic maps an event name to its Kafka topic.
func (p *KafkaPublisher) Topic(event string) string {
	if p.prefix == "" {
		return event
	}
	return p.prefix + "." + event
}

func (p *KafkaPublisher) Publish(ctx context.Context, event, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.Topic(event),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("Failed to publish event",
			zap.Error(err),
			zap.String("topic", msg.Topic),
			zap.String("key", key),
		)
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}

	p.log.Debug("Event published",
		zap.String("topic", msg.Topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// ==================== Log ====================

// LogPublisher records events in the application log when no brokers are
// configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.With(zap.String("publisher", "log"))}
}

func (p *LogPublisher) Publish(_ context.Context, event, key string, payload []byte) error {
	p.log.Info("Event",
		zap.String("event", event),
		zap.String("key", key),
		zap.ByteString("payload", payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
