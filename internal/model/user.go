package model

import (
	"strings"
	"time"
)

var profileTypes = map[string]struct{}{
	"free": {}, "basic": {}, "premium": {}, "enterprise": {},
}

// User is the users table row. Authored on the response side, mirrored on the request side.
type User struct {
	ID              string    `db:"id"`
	Username        string    `db:"username"`
	Email           string    `db:"email"`
	ProfileType     string    `db:"profile_type"`
	IsActive        bool      `db:"is_active"`
	RateLimitMinute *int64    `db:"rate_limit_minute"`
	RateLimitHour   *int64    `db:"rate_limit_hour"`
	RateLimitDay    *int64    `db:"rate_limit_day"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (u User) Record() UserRecord {
	return UserRecord{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		ProfileType: u.ProfileType,
		IsActive:    u.IsActive,
		RateLimits: RateLimits{
			Minute: u.RateLimitMinute,
			Hour:   u.RateLimitHour,
			Day:    u.RateLimitDay,
		},
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}

// RateLimits holds optional per-user overrides of the profile tier.
type RateLimits struct {
	Minute *int64 `json:"minute,omitempty"`
	Hour   *int64 `json:"hour,omitempty"`
	Day    *int64 `json:"day,omitempty"`
}

// UserRecord is the "users" snapshot line schema.
type UserRecord struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	ProfileType string     `json:"profile_type"`
	IsActive    bool       `json:"is_active"`
	RateLimits  RateLimits `json:"rate_limits"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (u UserRecord) RecordID() string { return u.ID }

func (u UserRecord) Validate() error {
	if err := requireUUID("id", u.ID); err != nil {
		return err
	}
	if strings.TrimSpace(u.Username) == "" {
		return invalid("username", "required")
	}
	if _, ok := profileTypes[u.ProfileType]; !ok {
		return invalid("profile_type", "unknown profile "+u.ProfileType)
	}
	for field, v := range map[string]*int64{
		"rate_limits.minute": u.RateLimits.Minute,
		"rate_limits.hour":   u.RateLimits.Hour,
		"rate_limits.day":    u.RateLimits.Day,
	} {
		if v != nil && *v <= 0 {
			return invalid(field, "must be positive")
		}
	}
	return nil
}
