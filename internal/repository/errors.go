package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/alioptr7/the-first-sub000/internal/model"
)

var ErrNotFound = errors.New("not found")

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// wrongRecord reports a record handed to a store of another kind.
func wrongRecord(want string, got model.Record) error {
	return fmt.Errorf("expected %s record, got %T", want, got)
}
