package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ignatzorin/barter-backend/internal/domain/repository"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в топик. Ключ сообщения - ID агрегата,
// поэтому события одной заявки попадают в одну партицию по порядку.
type KafkaPublisher struct {
	writer messageWriter
}

var _ repository.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, event repository.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: не удалось сериализовать событие: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID.String()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka: не удалось отправить %s: %w", event.Type, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
