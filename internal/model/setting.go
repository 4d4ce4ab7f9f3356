package model

import (
	"strings"
	"time"
)

// Setting is a key/value row of the settings table.
type Setting struct {
	Key         string    `db:"setting_key"`
	Value       string    `db:"setting_value"`
	Description *string   `db:"description"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (s Setting) Record() SettingRecord {
	r := SettingRecord{Key: s.Key, Value: s.Value, UpdatedAt: s.UpdatedAt.UTC()}
	if s.Description != nil {
		r.Description = *s.Description
	}
	return r
}

// SettingRecord is the "settings" snapshot line schema.
type SettingRecord struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s SettingRecord) RecordID() string { return s.Key }

func (s SettingRecord) Validate() error {
	if strings.TrimSpace(s.Key) == "" {
		return invalid("key", "required")
	}
	if len(s.Key) > 128 {
		return invalid("key", "longer than 128 bytes")
	}
	return nil
}
