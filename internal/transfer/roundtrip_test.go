package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
)

// carry copies every published batch of kind from the export dir into the
// import inbox, data before metadata, the way the transfer agent does.
func carry(t *testing.T, from, to Layout, kind Kind) int {
	t.Helper()
	names, err := listBatches(from.ExportDir(kind), kind)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		for _, f := range []string{n, MetaFilename(n)} {
			b, err := os.ReadFile(filepath.Join(from.ExportDir(kind), f))
			if err != nil {
				t.Fatal(err)
			}
			writeInbox(t, to, kind, f, b)
		}
	}
	return len(names)
}

func TestRequestsRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExporter(t)
	imp, _ := newTestImporter(t)

	src := &fakeRequests{}
	low1 := src.add(5, t0.Add(-2*time.Minute))
	low2 := src.add(5, t0.Add(-time.Minute))
	high := src.add(9, t0)
	e.Pending[KindRequests] = src
	sink := newFakeSink()
	imp.Incremental[KindRequests] = sink

	exp, err := e.Export(ctx, KindRequests, 100)
	if err != nil {
		t.Fatal(err)
	}
	if exp.RecordCount != 3 {
		t.Fatalf("expected 3 records, got %d", exp.RecordCount)
	}
	if n := carry(t, e.Layout, imp.Layout, KindRequests); n != 1 {
		t.Fatalf("expected one batch, got %d", n)
	}

	res, err := imp.ImportAvailable(ctx, KindRequests)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusSuccess || res.RecordsImported != 3 {
		t.Fatalf("unexpected import %+v", res)
	}
	want := []string{high.ID, low1.ID, low2.ID}
	for i, id := range want {
		if sink.applied[i] != id {
			t.Errorf("apply order[%d]: expected %s, got %s", i, id, sink.applied[i])
		}
	}

	again, err := imp.ImportAvailable(ctx, KindRequests)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != StatusNoFiles {
		t.Errorf("rerun: expected no_files, got %s", again.Status)
	}
	if exp2, _ := e.Export(ctx, KindRequests, 100); exp2.Status != StatusNoChanges {
		t.Errorf("re-export: expected no_changes, got %s", exp2.Status)
	}
}

func TestSettingsSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExporter(t)
	imp, _ := newTestImporter(t)

	e.Snapshots[KindSettings] = newFakeSnapshotStore(
		model.SettingRecord{Key: "max_query_rows", Value: "10000", UpdatedAt: t0},
	)
	target := newFakeSnapshotStore()
	imp.Snapshots[KindSettings] = target

	if _, err := e.Export(ctx, KindSettings, 0); err != nil {
		t.Fatal(err)
	}
	carry(t, e.Layout, imp.Layout, KindSettings)

	res, err := imp.ImportAvailable(ctx, KindSettings)
	if err != nil {
		t.Fatal(err)
	}
	if res.RecordsImported != 1 {
		t.Fatalf("unexpected import %+v", res)
	}
	got, ok := target.records["max_query_rows"].(model.SettingRecord)
	if !ok || got.Value != "10000" {
		t.Errorf("setting not mirrored: %+v", target.records)
	}
}
