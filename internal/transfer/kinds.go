package transfer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alioptr7/the-first-sub000/internal/model"
)

// Kind is the closed set of record kinds that cross the gap.
type Kind string

const (
	KindRequests Kind = "requests"
	KindResults  Kind = "results"
	KindUsers    Kind = "users"
	KindSettings Kind = "settings"
)

var Kinds = []Kind{KindRequests, KindResults, KindUsers, KindSettings}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindRequests, KindResults, KindUsers, KindSettings:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) String() string { return string(k) }

// Style separates per-record transfers from whole-payload snapshots.
type Style int

const (
	Incremental Style = iota
	Snapshot
)

func (s Style) String() string {
	if s == Snapshot {
		return "snapshot"
	}
	return "incremental"
}

// Style of k. Incremental kinds dedupe by record id, snapshots by payload checksum.
func (k Kind) Style() Style {
	switch k {
	case KindUsers, KindSettings:
		return Snapshot
	default:
		return Incremental
	}
}

// Decode parses and validates one batch line as the schema of k.
func (k Kind) Decode(line []byte) (model.Record, error) {
	switch k {
	case KindRequests:
		return decode[model.RequestRecord](line)
	case KindResults:
		return decode[model.ResultRecord](line)
	case KindUsers:
		return decode[model.UserRecord](line)
	case KindSettings:
		return decode[model.SettingRecord](line)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
}

func decode[T model.Record](line []byte) (model.Record, error) {
	var rec T
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}
	if err := rec.Validate(); err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			return nil, &SchemaError{Field: ve.Field, Reason: ve.Reason}
		}
		return nil, &SchemaError{Reason: err.Error()}
	}
	return rec, nil
}
