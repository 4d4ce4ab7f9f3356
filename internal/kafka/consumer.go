package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int
	MaxBytes       int
	CommitInterval time.Duration
	MaxWait        time.Duration
}

// readerConfig fills reader defaults: 1KB min fetch, 10MB max fetch, 1s
// commit flush, 500ms max wait.
func readerConfig(c Config) kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       c.MinBytes,
		MaxBytes:       c.MaxBytes,
		CommitInterval: c.CommitInterval,
		MaxWait:        c.MaxWait,
	}
	if rc.MinBytes <= 0 {
		rc.MinBytes = 1 << 10
	}
	if rc.MaxBytes <= 0 {
		rc.MaxBytes = 10 << 20
	}
	if rc.CommitInterval <= 0 {
		rc.CommitInterval = time.Second
	}
	if rc.MaxWait <= 0 {
		rc.MaxWait = 500 * time.Millisecond
	}
	return rc
}

// Event is one batch announcement. Err is set when the payload is not a
// batch sidecar; such events still have to be acked.
type Event struct {
	Meta model.BatchMetadata
	Err  error

	msg kafka.Message
}

// DecodeEvent reads the sidecar carried by m.
func DecodeEvent(m kafka.Message) Event {
	ev := Event{msg: m}
	if err := json.Unmarshal(m.Value, &ev.Meta); err != nil {
		ev.Err = fmt.Errorf("decode batch event at offset %d: %w", m.Offset, err)
	}
	return ev
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BatchEvents reads the announcements Publisher writes, as a member of the
// configured consumer group. Offsets only move on Ack.
type BatchEvents struct {
	r messageReader
}

func NewBatchEvents(c Config) *BatchEvents {
	return &BatchEvents{r: kafka.NewReader(readerConfig(c))}
}

func (b *BatchEvents) Next(ctx context.Context) (Event, error) {
	m, err := b.r.FetchMessage(ctx)
	if err != nil {
		return Event{}, err
	}
	return DecodeEvent(m), nil
}

func (b *BatchEvents) Ack(ctx context.Context, ev Event) error {
	return b.r.CommitMessages(ctx, ev.msg)
}

func (b *BatchEvents) Close() error { return b.r.Close() }
