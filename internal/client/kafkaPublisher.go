package client

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Message struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher hashes keys to partitions so events of one aggregate stay
// in order.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...Message) error {
	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		headers := make([]kafka.Header, 0, len(m.Headers))
		for k, v := range m.Headers {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		out[i] = kafka.Message{
			Key:     []byte(m.Key),
			Value:   m.Value,
			Headers: headers,
			Time:    time.Now(),
		}
	}
	return p.writer.WriteMessages(ctx, out...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
