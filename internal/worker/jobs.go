package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/transfer"
)

// ExportJob wraps Exporter.Export for kind.
func ExportJob(exp *transfer.Exporter, kind transfer.Kind, batchSize int, interval time.Duration) Job {
	return Job{
		Name:     "export:" + kind.String(),
		Interval: interval,
		Run: func(ctx context.Context) Result {
			res, err := exp.Export(ctx, kind, batchSize)
			if err != nil {
				return Failed(err, "export "+kind.String())
			}
			return OK(fmt.Sprintf("status=%s records=%d batch=%s", res.Status, res.RecordCount, res.BatchID))
		},
	}
}

// ImportJob wraps Importer.ImportAvailable for kind. Partial success is OK;
// a run where every file was quarantined or failed is fatal because those
// files are out of the inbox and a retry would find nothing.
func ImportJob(imp *transfer.Importer, kind transfer.Kind, interval time.Duration) Job {
	return Job{
		Name:     "import:" + kind.String(),
		Interval: interval,
		Run: func(ctx context.Context) Result {
			res, err := imp.ImportAvailable(ctx, kind)
			summary := ImportSummary(res)
			if err != nil {
				return Failed(err, summary)
			}
			if res.Status == transfer.StatusFailed {
				return Result{Outcome: OutcomeFatal, Err: errors.New(strings.Join(res.Errors, "; ")), Summary: summary}
			}
			return OK(summary)
		},
	}
}

func ImportSummary(r transfer.ImportResult) string {
	return fmt.Sprintf("status=%s files=%d archived=%d quarantined=%d failed=%d duplicates=%d imported=%d updated=%d skipped=%d record_errors=%d",
		r.Status, r.FilesProcessed, r.FilesArchived, r.FilesQuarantined, r.FilesFailed,
		r.DuplicateBatches, r.RecordsImported, r.RecordsUpdated, r.RecordsSkipped, r.RecordsFailed)
}
