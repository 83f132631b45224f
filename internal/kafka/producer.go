package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes to a single topic. In async mode WriteMessages returns
// immediately and delivery outcomes arrive through onComplete.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string, async bool, onComplete func([]kafka.Message, error)) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        async,
		Completion:   onComplete,
	}
	return &Producer{w: w}
}

// Publish writes one message keyed by key so a user's messages stay ordered.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
}

func (p *Producer) Close() error { return p.w.Close() }
