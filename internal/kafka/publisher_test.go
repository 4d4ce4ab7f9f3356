package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestBatchExportedPublishesSidecar(t *testing.T) {
	rw := &recordingWriter{}
	p := &Publisher{w: rw}
	meta := model.BatchMetadata{
		BatchID:     "01HZ0000000000000000000000",
		BatchType:   "requests",
		Filename:    "requests_20240501_101530_01HZ0000000000000000000000.jsonl",
		RecordCount: 3,
		Checksum:    "ab",
		ExportedAt:  time.Date(2024, 5, 1, 10, 15, 30, 0, time.UTC),
		Version:     1,
	}
	if err := p.BatchExported(context.Background(), meta); err != nil {
		t.Fatal(err)
	}
	if len(rw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(rw.msgs))
	}
	m := rw.msgs[0]
	if string(m.Key) != "requests" {
		t.Errorf("key: %q", m.Key)
	}
	var got model.BatchMetadata
	if err := json.Unmarshal(m.Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.BatchID != meta.BatchID || got.Checksum != meta.Checksum || !got.ExportedAt.Equal(meta.ExportedAt) {
		t.Errorf("payload mismatch: %+v", got)
	}
}
