package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const (
	reqID  = "0b6f6a34-3f7e-4c52-9a43-7f0d3f8c2a11"
	userID = "5d2c1a0e-8b1f-4f0e-9e51-2a6d5c7e9b03"
)

func TestRequestRecordValidate(t *testing.T) {
	valid := RequestRecord{
		ID:          reqID,
		UserID:      userID,
		QueryType:   "search",
		QueryParams: json.RawMessage(`{"q":"x"}`),
		Priority:    5,
		CreatedAt:   time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	tests := []struct {
		name  string
		field string
		edit  func(*RequestRecord)
	}{
		{"bad id", "id", func(r *RequestRecord) { r.ID = "abc" }},
		{"missing user", "user_id", func(r *RequestRecord) { r.UserID = "" }},
		{"blank type", "query_type", func(r *RequestRecord) { r.QueryType = "  " }},
		{"params array", "query_params", func(r *RequestRecord) { r.QueryParams = json.RawMessage(`[1]`) }},
		{"priority low", "priority", func(r *RequestRecord) { r.Priority = 0 }},
		{"no created_at", "created_at", func(r *RequestRecord) { r.CreatedAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.edit(&r)
			var ve *ValidationError
			if err := r.Validate(); !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestResultRecordValidate(t *testing.T) {
	ok := ResultRecord{
		ID:          userID,
		RequestID:   reqID,
		Status:      ResultSuccess,
		ResultData:  json.RawMessage(`{"hits":[]}`),
		CompletedAt: time.Now(),
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid result rejected: %v", err)
	}

	failed := ok
	failed.Status = ResultFailed
	if err := failed.Validate(); err == nil {
		t.Error("failed result without error_message accepted")
	}
	failed.ErrorMessage = "timeout"
	if err := failed.Validate(); err != nil {
		t.Errorf("failed result with message rejected: %v", err)
	}

	unknown := ok
	unknown.Status = "pending"
	if err := unknown.Validate(); err == nil {
		t.Error("unknown status accepted")
	}
}

func TestUserRecordValidate(t *testing.T) {
	zero := int64(0)
	u := UserRecord{ID: userID, Username: "alice", ProfileType: "basic", IsActive: true}
	if err := u.Validate(); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}
	u.ProfileType = "gold"
	if err := u.Validate(); err == nil {
		t.Error("unknown profile accepted")
	}
	u.ProfileType = "free"
	u.RateLimits.Hour = &zero
	if err := u.Validate(); err == nil {
		t.Error("zero override accepted")
	}
}

func TestSettingRecordValidate(t *testing.T) {
	if err := (SettingRecord{Key: "max_results", Value: "100"}).Validate(); err != nil {
		t.Fatalf("valid setting rejected: %v", err)
	}
	if err := (SettingRecord{Value: "x"}).Validate(); err == nil {
		t.Error("empty key accepted")
	}
}
