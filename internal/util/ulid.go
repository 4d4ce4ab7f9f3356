package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID generates a new ULID string for the given time.
func NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// New generates a new ULID string
func New() string {
	return NewULID(time.Now())
}
