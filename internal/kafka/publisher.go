package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher announces exported batches; the value is the batch sidecar.
type Publisher struct {
	w messageWriter
}

func NewPublisher(c Config) *Publisher {
	return &Publisher{w: &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// BatchExported publishes meta keyed by batch type so events of one kind stay ordered.
func (p *Publisher) BatchExported(ctx context.Context, meta model.BatchMetadata) error {
	val, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal batch event: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(meta.BatchType),
		Value: val,
		Time:  meta.ExportedAt,
	})
}

func (p *Publisher) Close() error { return p.w.Close() }
