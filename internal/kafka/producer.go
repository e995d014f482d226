package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer writes synchronously so the outbox relay only marks an event sent
// after the brokers acknowledged it. Topic is set per message.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

// Message is one record; Key keeps every event of an order on one partition.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	EventType string
}

func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, kafka.Message{
			Topic: m.Topic,
			Key:   m.Key,
			Value: m.Value,
			Time:  time.Now(),
			Headers: []kafka.Header{
				{Key: "x-event-type", Value: []byte(m.EventType)},
				{Key: "x-event-version", Value: []byte("1")},
			},
		})
	}
	return p.w.WriteMessages(ctx, out...)
}

func (p *Producer) Close() error { return p.w.Close() }
