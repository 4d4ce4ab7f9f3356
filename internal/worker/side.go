package worker

import (
	"fmt"

	"github.com/alioptr7/the-first-sub000/internal/config"
	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/repository"
	"github.com/alioptr7/the-first-sub000/internal/transfer"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Side is the exporter and importer of one side of the gap, with the kinds
// each direction handles there.
type Side struct {
	Name     string
	Exporter *transfer.Exporter
	Importer *transfer.Importer
	Exports  []transfer.Kind
	Imports  []transfer.Kind
}

type SideDeps struct {
	Config   config.Config
	DB       *sqlx.DB
	Cache    transfer.Invalidator // request side; nil disables invalidation
	Notifier transfer.Notifier    // nil when kafka is disabled
	Log      *zap.Logger
}

// BuildSide wires the MySQL stores of the configured side into an exporter
// and importer.
func BuildSide(d SideDeps) (*Side, error) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg := d.Config
	layout := transfer.Layout{ExportRoot: cfg.Transfer.ExportDir, ImportRoot: cfg.Transfer.ImportDir}

	exportLedger, err := repository.NewBatchesRepository(d.DB, model.DirectionExport)
	if err != nil {
		return nil, err
	}
	importLedger, err := repository.NewBatchesRepository(d.DB, model.DirectionImport)
	if err != nil {
		return nil, err
	}

	exp := transfer.NewExporter(layout, exportLedger, log.Named("exporter"))
	if d.Notifier != nil {
		exp.Notifier = d.Notifier
	}
	imp := transfer.NewImporter(layout, importLedger, log.Named("importer"))
	if cfg.Transfer.StaleAfter > 0 {
		imp.StaleAfter = cfg.Transfer.StaleAfter
	}

	users := repository.NewUsersRepository(d.DB)
	settings := repository.NewSettingsRepository(d.DB)

	s := &Side{Name: cfg.Network.Side, Exporter: exp, Importer: imp}
	switch cfg.Network.Side {
	case config.SideRequest:
		exp.Pending[transfer.KindRequests] = repository.NewRequestsRepository(d.DB)
		imp.Incremental[transfer.KindResults] = repository.NewResponsesRepository(d.DB)
		imp.Snapshots[transfer.KindUsers] = users
		imp.Snapshots[transfer.KindSettings] = settings
		if d.Cache != nil {
			imp.Cache = d.Cache
		}
		s.Exports = []transfer.Kind{transfer.KindRequests}
		s.Imports = []transfer.Kind{transfer.KindResults, transfer.KindUsers, transfer.KindSettings}
	case config.SideResponse:
		exp.Pending[transfer.KindResults] = repository.NewQueryResultsRepository(d.DB)
		exp.Snapshots[transfer.KindUsers] = users
		exp.Snapshots[transfer.KindSettings] = settings
		imp.Incremental[transfer.KindRequests] = repository.NewIncomingRequestsRepository(d.DB)
		s.Exports = []transfer.Kind{transfer.KindResults, transfer.KindUsers, transfer.KindSettings}
		s.Imports = []transfer.Kind{transfer.KindRequests}
	default:
		return nil, fmt.Errorf("unknown network side %q", cfg.Network.Side)
	}
	return s, nil
}

// Jobs schedules every export and import of the side. Snapshot exports run
// on the snapshot interval.
func (s *Side) Jobs(tc config.TransferConfig) []Job {
	var jobs []Job
	for _, k := range s.Exports {
		interval := tc.Intervals.Export
		if k.Style() == transfer.Snapshot {
			interval = tc.Intervals.Snapshot
		}
		jobs = append(jobs, ExportJob(s.Exporter, k, tc.BatchSize, interval))
	}
	for _, k := range s.Imports {
		jobs = append(jobs, ImportJob(s.Importer, k, tc.Intervals.Import))
	}
	return jobs
}

// ImportJobs indexes the import jobs by kind for the event watcher.
func (s *Side) ImportJobs(tc config.TransferConfig) map[transfer.Kind]Job {
	out := make(map[transfer.Kind]Job, len(s.Imports))
	for _, k := range s.Imports {
		out[k] = ImportJob(s.Importer, k, tc.Intervals.Import)
	}
	return out
}

func (s *Side) exports(k transfer.Kind) bool { return contains(s.Exports, k) }
func (s *Side) imports(k transfer.Kind) bool { return contains(s.Imports, k) }

func contains(ks []transfer.Kind, k transfer.Kind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

// ExportJobFor returns the one-shot export job for k, or ErrUnknownKind when
// this side does not export k.
func (s *Side) ExportJobFor(k transfer.Kind, tc config.TransferConfig) (Job, error) {
	if !s.exports(k) {
		return Job{}, fmt.Errorf("%w: %s side does not export %s", transfer.ErrUnknownKind, s.Name, k)
	}
	return ExportJob(s.Exporter, k, tc.BatchSize, 0), nil
}

// ImportJobFor is ExportJobFor for imports.
func (s *Side) ImportJobFor(k transfer.Kind, tc config.TransferConfig) (Job, error) {
	if !s.imports(k) {
		return Job{}, fmt.Errorf("%w: %s side does not import %s", transfer.ErrUnknownKind, s.Name, k)
	}
	return ImportJob(s.Importer, k, tc.Intervals.Import), nil
}
