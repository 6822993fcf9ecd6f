package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cisse-224/clappybackend/internal/models"
)

// PositionProducer publishes driver GPS samples to Kafka for the position
// consumer to fold into the Redis index.
type PositionProducer struct {
	writer *kafka.Writer
}

func NewPositionProducer(brokers []string, topic string) *PositionProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &PositionProducer{writer: w}
}

func (p *PositionProducer) Publish(pos models.Position) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(pos)
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(pos.DriverID), Value: b})
}

func (p *PositionProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
