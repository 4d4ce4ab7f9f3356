package model

import (
	"encoding/json"
	"time"
)

type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// ResultRecord is the "results" line schema.
type ResultRecord struct {
	ID              string          `json:"id"`
	RequestID       string          `json:"request_id"`
	Status          ResultStatus    `json:"status"`
	ResultData      json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	RecordCount     int             `json:"record_count"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	CompletedAt     time.Time       `json:"completed_at"`
}

func (r ResultRecord) RecordID() string { return r.ID }

func (r ResultRecord) Validate() error {
	if err := requireUUID("id", r.ID); err != nil {
		return err
	}
	if err := requireUUID("request_id", r.RequestID); err != nil {
		return err
	}
	switch r.Status {
	case ResultSuccess:
		if len(r.ResultData) > 0 && !json.Valid(r.ResultData) {
			return invalid("result_data", "invalid json")
		}
	case ResultFailed:
		if r.ErrorMessage == "" {
			return invalid("error_message", "required for failed results")
		}
	default:
		return invalid("status", "must be success or failed")
	}
	if r.RecordCount < 0 {
		return invalid("record_count", "negative")
	}
	if r.CompletedAt.IsZero() {
		return invalid("completed_at", "required")
	}
	return nil
}

// Response is a result received on the request side (responses table).
type Response struct {
	ID              string       `db:"id"`
	RequestID       string       `db:"request_id"`
	UserID          string       `db:"user_id"`
	Status          ResultStatus `db:"status"`
	ResultData      []byte       `db:"result_data"`
	ErrorMessage    *string      `db:"error_message"`
	RecordCount     int          `db:"record_count"`
	ExecutionTimeMs int64        `db:"execution_time_ms"`
	CompletedAt     time.Time    `db:"completed_at"`
	ReceivedAt      time.Time    `db:"received_at"`
}

// Cached converts the row into the cache representation.
func (r Response) Cached(at time.Time) CachedResponse {
	c := CachedResponse{
		RequestID:       r.RequestID,
		SubjectID:       r.UserID,
		Status:          r.Status,
		ResultData:      json.RawMessage(r.ResultData),
		RecordCount:     r.RecordCount,
		ExecutionTimeMs: r.ExecutionTimeMs,
		CompletedAt:     r.CompletedAt.UTC(),
		CachedAt:        at.UTC(),
	}
	if r.ErrorMessage != nil {
		c.ErrorMessage = *r.ErrorMessage
	}
	return c
}

// QueryResult is an executed query waiting for export (response side).
type QueryResult struct {
	ID              string       `db:"id"`
	RequestID       string       `db:"request_id"`
	Status          ResultStatus `db:"status"`
	ResultData      []byte       `db:"result_data"`
	ErrorMessage    *string      `db:"error_message"`
	RecordCount     int          `db:"record_count"`
	ExecutionTimeMs int64        `db:"execution_time_ms"`
	CompletedAt     time.Time    `db:"completed_at"`
	ExportBatchID   *string      `db:"export_batch_id"`
	ExportedAt      *time.Time   `db:"exported_at"`
}

func (q QueryResult) Record() ResultRecord {
	r := ResultRecord{
		ID:              q.ID,
		RequestID:       q.RequestID,
		Status:          q.Status,
		ResultData:      json.RawMessage(q.ResultData),
		RecordCount:     q.RecordCount,
		ExecutionTimeMs: q.ExecutionTimeMs,
		CompletedAt:     q.CompletedAt.UTC(),
	}
	if q.ErrorMessage != nil {
		r.ErrorMessage = *q.ErrorMessage
	}
	return r
}

// CachedResponse is the value stored under response:{request_id}.
type CachedResponse struct {
	RequestID       string          `json:"request_id"`
	SubjectID       string          `json:"subject_id"`
	Status          ResultStatus    `json:"status"`
	ResultData      json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	RecordCount     int             `json:"record_count"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	CompletedAt     time.Time       `json:"completed_at"`
	CachedAt        time.Time       `json:"cached_at"`
}
