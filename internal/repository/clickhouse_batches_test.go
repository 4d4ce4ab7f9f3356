package repository

import (
	"strings"
	"testing"

	"github.com/alioptr7/the-first-sub000/internal/model"
)

func TestListBatchesQuery(t *testing.T) {
	q, args := listBatchesQuery(BatchFilter{Direction: "import", Kind: "results", Limit: 5000, Offset: -1})
	if !strings.Contains(q, "direction = ?") || !strings.Contains(q, "batch_type = ?") {
		t.Errorf("filters missing from query: %s", q)
	}
	if strings.Contains(q, "status = ?") {
		t.Error("empty status must not filter")
	}
	if len(args) != 4 || args[2] != 50 || args[3] != 0 {
		t.Errorf("unexpected args %v", args)
	}
}

func TestBatchTable(t *testing.T) {
	for dir, want := range map[model.Direction]string{
		model.DirectionExport: "export_batches",
		model.DirectionImport: "import_batches",
	} {
		got, err := batchTable(dir)
		if err != nil || got != want {
			t.Errorf("%s: got %q, %v", dir, got, err)
		}
	}
	if _, err := batchTable("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
}
