package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	dataExt = ".jsonl"
	metaExt = ".meta.json"

	tmpDir        = ".tmp"
	processingDir = "processing"
	archiveDir    = "archive"
	failedDir     = "failed"
)

// Layout roots the per-kind export and import directories:
//
//	exports/<kind>/            published batches (+ .tmp/ staging)
//	imports/<kind>/            inbox
//	imports/<kind>/processing  claimed by a running importer
//	imports/<kind>/archive     imported
//	imports/<kind>/failed      quarantined or failed
type Layout struct {
	ExportRoot string
	ImportRoot string
}

func (l Layout) ExportDir(k Kind) string  { return filepath.Join(l.ExportRoot, string(k)) }
func (l Layout) StagingDir(k Kind) string { return filepath.Join(l.ExportDir(k), tmpDir) }
func (l Layout) Inbox(k Kind) string      { return filepath.Join(l.ImportRoot, string(k)) }
func (l Layout) Processing(k Kind) string { return filepath.Join(l.Inbox(k), processingDir) }
func (l Layout) Archive(k Kind) string    { return filepath.Join(l.Inbox(k), archiveDir) }
func (l Layout) Failed(k Kind) string     { return filepath.Join(l.Inbox(k), failedDir) }

func (l Layout) ensureExport(k Kind) error {
	return mkdirs(l.ExportDir(k), l.StagingDir(k))
}

func (l Layout) ensureImport(k Kind) error {
	return mkdirs(l.Inbox(k), l.Processing(k), l.Archive(k), l.Failed(k))
}

func mkdirs(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return transient("mkdir", d, err)
		}
	}
	return nil
}

// BatchFilename is <kind>_YYYYMMDD_HHMMSS_<batch id>.jsonl. Names sort oldest first.
func BatchFilename(k Kind, at time.Time, batchID string) string {
	return fmt.Sprintf("%s_%s_%s%s", k, at.UTC().Format("20060102_150405"), batchID, dataExt)
}

// MetaFilename is the sidecar name for a batch data file.
func MetaFilename(dataName string) string {
	return strings.TrimSuffix(dataName, dataExt) + metaExt
}

func isBatchFile(k Kind, name string) bool {
	return strings.HasPrefix(name, string(k)+"_") && strings.HasSuffix(name, dataExt)
}
