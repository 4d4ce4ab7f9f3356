package transfer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/alioptr7/the-first-sub000/internal/model"
)

var checksumRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Checksum is the lowercase hex sha-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EncodeNDJSON writes one JSON object per line without a trailing newline.
func EncodeNDJSON(recs []model.Record) ([]byte, error) {
	var buf bytes.Buffer
	for i, r := range recs {
		line, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", r.RecordID(), err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// Line is one non-blank line of a batch with its 1-based number.
type Line struct {
	No   int
	Data []byte
}

// SplitLines splits a batch body, skipping blank lines and tolerating CRLF.
func SplitLines(data []byte) []Line {
	var out []Line
	for i, raw := range bytes.Split(data, []byte{'\n'}) {
		raw = bytes.TrimSuffix(raw, []byte{'\r'})
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		out = append(out, Line{No: i + 1, Data: raw})
	}
	return out
}

func EncodeMetadata(m model.BatchMetadata) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// DecodeMetadata parses a sidecar and checks it describes a batch of kind.
func DecodeMetadata(raw []byte, kind Kind) (model.BatchMetadata, error) {
	var m model.BatchMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	switch {
	case m.Version != model.MetadataVersion:
		return m, fmt.Errorf("%w: version %d", ErrInvalidMetadata, m.Version)
	case m.BatchType != string(kind):
		return m, fmt.Errorf("%w: batch_type %q in %s inbox", ErrInvalidMetadata, m.BatchType, kind)
	case !checksumRe.MatchString(m.Checksum):
		return m, fmt.Errorf("%w: checksum %q", ErrInvalidMetadata, m.Checksum)
	case m.BatchID == "":
		return m, fmt.Errorf("%w: empty batch_id", ErrInvalidMetadata)
	}
	return m, nil
}
