package transfer

import (
	"errors"
	"strings"
	"testing"

	"github.com/alioptr7/the-first-sub000/internal/model"
)

func TestChecksumKnownValue(t *testing.T) {
	// sha256("")
	if got := Checksum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("unexpected checksum %s", got)
	}
}

func TestSplitLines(t *testing.T) {
	lines := SplitLines([]byte("{\"a\":1}\r\n\n  \n{\"b\":2}"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].No != 1 || string(lines[0].Data) != `{"a":1}` {
		t.Errorf("line 1: %+v", lines[0])
	}
	if lines[1].No != 4 || string(lines[1].Data) != `{"b":2}` {
		t.Errorf("line 2: %d %s", lines[1].No, lines[1].Data)
	}
}

func TestDecodeMetadata(t *testing.T) {
	good := model.BatchMetadata{
		BatchID:   "01HX",
		BatchType: "users",
		Checksum:  strings.Repeat("a", 64),
		Version:   model.MetadataVersion,
	}
	tests := []struct {
		name   string
		mutate func(*model.BatchMetadata)
		ok     bool
	}{
		{"valid", func(*model.BatchMetadata) {}, true},
		{"wrong version", func(m *model.BatchMetadata) { m.Version = 2 }, false},
		{"wrong type", func(m *model.BatchMetadata) { m.BatchType = "settings" }, false},
		{"upper hex", func(m *model.BatchMetadata) { m.Checksum = strings.Repeat("A", 64) }, false},
		{"short checksum", func(m *model.BatchMetadata) { m.Checksum = "abc" }, false},
		{"no batch id", func(m *model.BatchMetadata) { m.BatchID = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := good
			tt.mutate(&m)
			raw, err := EncodeMetadata(m)
			if err != nil {
				t.Fatal(err)
			}
			_, err = DecodeMetadata(raw, KindUsers)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidMetadata) {
				t.Fatalf("expected ErrInvalidMetadata, got %v", err)
			}
		})
	}

	if _, err := DecodeMetadata([]byte("{"), KindUsers); !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("truncated json: got %v", err)
	}
}

func TestKindDecodeReportsField(t *testing.T) {
	_, err := KindUsers.Decode([]byte(`{"id":"4f1c2d3e-0000-4000-8000-000000000001","username":"a","profile_type":"gold"}`))
	var se *SchemaError
	if !errors.As(err, &se) || se.Field != "profile_type" {
		t.Fatalf("expected profile_type schema error, got %v", err)
	}
	if _, err := ParseKind("orders"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("ParseKind: got %v", err)
	}
}
