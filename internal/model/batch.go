package model

import "time"

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

func (s BatchStatus) String() string {
	return string(s)
}

func (s BatchStatus) Valid() bool {
	switch s {
	case BatchPending, BatchProcessing, BatchCompleted, BatchFailed:
		return true
	}
	return false
}

type Direction string

const (
	DirectionExport Direction = "export"
	DirectionImport Direction = "import"
)

// TransferBatch is a row of export_batches / import_batches.
type TransferBatch struct {
	ID            string      `db:"id"`
	Kind          string      `db:"batch_type"`
	SourceBatchID *string     `db:"source_batch_id"` // import side: batch_id from the sidecar
	Filename      string      `db:"filename"`
	FilePath      string      `db:"file_path"`
	SizeBytes     int64       `db:"size_bytes"`
	RecordCount   int         `db:"record_count"`
	Checksum      string      `db:"checksum"`
	Status        BatchStatus `db:"status"`
	ErrorMessage  *string     `db:"error_message"`
	CreatedAt     time.Time   `db:"created_at"`
	CompletedAt   *time.Time  `db:"completed_at"`
}

// BatchMetadata is the .meta.json sidecar written next to every batch file.
type BatchMetadata struct {
	BatchID     string    `json:"batch_id"`
	BatchType   string    `json:"batch_type"`
	Filename    string    `json:"filename"`
	FileSize    int64     `json:"file_size"`
	RecordCount int       `json:"record_count"`
	Checksum    string    `json:"checksum"`
	ExportedAt  time.Time `json:"exported_at"`
	Version     int       `json:"version"`
}

const MetadataVersion = 1
