package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestExported  RequestStatus = "exported"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

func (s RequestStatus) String() string {
	return string(s)
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestExported, RequestCompleted, RequestFailed:
		return true
	}
	return false
}

// Request is the DB entity persisted in the requests table (request side).
type Request struct {
	ID            string        `db:"id"`
	UserID        string        `db:"user_id"`
	QueryType     string        `db:"query_type"`
	QueryParams   []byte        `db:"query_params"`
	Priority      int           `db:"priority"`
	Status        RequestStatus `db:"status"`
	ExportBatchID *string       `db:"export_batch_id"`
	CreatedAt     time.Time     `db:"created_at"`
	ExportedAt    *time.Time    `db:"exported_at"`
	CompletedAt   *time.Time    `db:"completed_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

// Record converts the row into its transfer form.
func (r Request) Record() RequestRecord {
	return RequestRecord{
		ID:          r.ID,
		UserID:      r.UserID,
		QueryType:   r.QueryType,
		QueryParams: json.RawMessage(r.QueryParams),
		Priority:    r.Priority,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// RequestRecord is the "requests" line schema.
type RequestRecord struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	QueryType   string          `json:"query_type"`
	QueryParams json.RawMessage `json:"query_params"`
	Priority    int             `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (r RequestRecord) RecordID() string { return r.ID }

func (r RequestRecord) Validate() error {
	if err := requireUUID("id", r.ID); err != nil {
		return err
	}
	if err := requireUUID("user_id", r.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(r.QueryType) == "" {
		return invalid("query_type", "required")
	}
	p := bytes.TrimSpace(r.QueryParams)
	if len(p) == 0 || p[0] != '{' || !json.Valid(p) {
		return invalid("query_params", "must be a json object")
	}
	if r.Priority < 1 || r.Priority > 10 {
		return invalid("priority", "must be between 1 and 10")
	}
	if r.CreatedAt.IsZero() {
		return invalid("created_at", "required")
	}
	return nil
}

// IncomingRequest is a request received from the request side (response side table).
type IncomingRequest struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	QueryType   string    `db:"query_type"`
	QueryParams []byte    `db:"query_params"`
	Priority    int       `db:"priority"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	ReceivedAt  time.Time `db:"received_at"`
}
