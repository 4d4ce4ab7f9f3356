package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/config"
	"github.com/alioptr7/the-first-sub000/internal/transfer"
)

func testConfig(t *testing.T, side string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Network.Side = side
	cfg.Transfer.ExportDir = t.TempDir()
	cfg.Transfer.ImportDir = t.TempDir()
	return cfg
}

func TestBuildSideDirections(t *testing.T) {
	tests := []struct {
		side    string
		exports []transfer.Kind
		imports []transfer.Kind
	}{
		{config.SideRequest, []transfer.Kind{transfer.KindRequests}, []transfer.Kind{transfer.KindResults, transfer.KindUsers, transfer.KindSettings}},
		{config.SideResponse, []transfer.Kind{transfer.KindResults, transfer.KindUsers, transfer.KindSettings}, []transfer.Kind{transfer.KindRequests}},
	}
	for _, tt := range tests {
		t.Run(tt.side, func(t *testing.T) {
			cfg := testConfig(t, tt.side)
			s, err := BuildSide(SideDeps{Config: cfg})
			if err != nil {
				t.Fatalf("BuildSide: %v", err)
			}
			for _, k := range tt.exports {
				if _, err := s.ExportJobFor(k, cfg.Transfer); err != nil {
					t.Errorf("export %s: %v", k, err)
				}
				if _, err := s.ImportJobFor(k, cfg.Transfer); !errors.Is(err, transfer.ErrUnknownKind) {
					t.Errorf("%s must not be imported on this side", k)
				}
			}
			for _, k := range tt.imports {
				if _, err := s.ImportJobFor(k, cfg.Transfer); err != nil {
					t.Errorf("import %s: %v", k, err)
				}
			}
			if got := len(s.Jobs(cfg.Transfer)); got != len(tt.exports)+len(tt.imports) {
				t.Errorf("expected %d jobs, got %d", len(tt.exports)+len(tt.imports), got)
			}
		})
	}
}

func TestSideJobsUseSnapshotInterval(t *testing.T) {
	cfg := testConfig(t, config.SideResponse)
	cfg.Transfer.Intervals.Snapshot = 7 * time.Minute
	s, err := BuildSide(SideDeps{Config: cfg})
	if err != nil {
		t.Fatal(err)
	}
	for _, j := range s.Jobs(cfg.Transfer) {
		if j.Name == "export:users" && j.Interval != 7*time.Minute {
			t.Errorf("users export interval: %s", j.Interval)
		}
		if j.Name == "export:results" && j.Interval != cfg.Transfer.Intervals.Export {
			t.Errorf("results export interval: %s", j.Interval)
		}
	}
}

func TestBuildSideUnknown(t *testing.T) {
	if _, err := BuildSide(SideDeps{Config: testConfig(t, "dmz")}); err == nil {
		t.Error("expected error for unknown side")
	}
}
