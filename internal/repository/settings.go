package repository

import (
	"context"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/jmoiron/sqlx"
)

type SettingsRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db, now: time.Now}
}

func (r *SettingsRepository) SelectSnapshot(ctx context.Context) ([]model.Record, error) {
	var rows []model.Setting
	err := r.db.SelectContext(ctx, &rows, `
		SELECT setting_key, setting_value, description, updated_at
		  FROM settings
		 ORDER BY setting_key
	`)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, len(rows))
	for i, s := range rows {
		out[i] = s.Record()
	}
	return out, nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, rec model.Record) (bool, error) {
	s, ok := rec.(model.SettingRecord)
	if !ok {
		return false, wrongRecord("setting", rec)
	}
	var desc *string
	if s.Description != "" {
		desc = &s.Description
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = r.now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (setting_key, setting_value, description, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		    setting_value = VALUES(setting_value),
		    description   = VALUES(description),
		    updated_at    = VALUES(updated_at)
	`, s.Key, s.Value, desc, updated)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
