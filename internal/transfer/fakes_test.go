package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/google/uuid"
)

type fakeLedger struct {
	mu      sync.Mutex
	batches map[string]*model.TransferBatch
	order   []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{batches: map[string]*model.TransferBatch{}}
}

func (l *fakeLedger) Begin(_ context.Context, b model.TransferBatch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.batches[b.ID]; dup {
		return fmt.Errorf("duplicate batch id %s", b.ID)
	}
	l.batches[b.ID] = &b
	l.order = append(l.order, b.ID)
	return nil
}

func (l *fakeLedger) Complete(_ context.Context, id string, n int, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.batches[id]
	if !ok {
		return errors.New("unknown batch")
	}
	b.Status, b.RecordCount, b.CompletedAt = model.BatchCompleted, n, &at
	return nil
}

func (l *fakeLedger) Fail(_ context.Context, id, reason string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.batches[id]
	if !ok {
		return errors.New("unknown batch")
	}
	b.Status, b.ErrorMessage, b.CompletedAt = model.BatchFailed, &reason, &at
	return nil
}

func (l *fakeLedger) ChecksumSeen(_ context.Context, kind, sum string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.batches {
		if b.Kind == kind && b.Checksum == sum && b.Status == model.BatchCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) LastCompletedChecksum(_ context.Context, kind string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.order) - 1; i >= 0; i-- {
		b := l.batches[l.order[i]]
		if b.Kind == kind && b.Status == model.BatchCompleted {
			return b.Checksum, nil
		}
	}
	return "", nil
}

func (l *fakeLedger) withStatus(st model.BatchStatus) []model.TransferBatch {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.TransferBatch
	for _, id := range l.order {
		if b := l.batches[id]; b.Status == st {
			out = append(out, *b)
		}
	}
	return out
}

// fakeRequests mimics the requests table for export.
type fakeRequests struct {
	mu       sync.Mutex
	rows     []model.Request
	markErr  error
	selected [][]string
}

func (f *fakeRequests) add(priority int, created time.Time) model.Request {
	r := model.Request{
		ID:          uuid.NewString(),
		UserID:      uuid.NewString(),
		QueryType:   "search",
		QueryParams: []byte(`{"q":"ping"}`),
		Priority:    priority,
		Status:      model.RequestPending,
		CreatedAt:   created,
	}
	f.rows = append(f.rows, r)
	return r
}

func (f *fakeRequests) SelectPending(_ context.Context, limit int) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []model.Request
	for _, r := range f.rows {
		if r.Status == model.RequestPending {
			pending = append(pending, r)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]model.Record, len(pending))
	ids := make([]string, len(pending))
	for i, r := range pending {
		out[i] = r.Record()
		ids[i] = r.ID
	}
	f.selected = append(f.selected, ids)
	return out, nil
}

func (f *fakeRequests) MarkExported(_ context.Context, ids []string, batchID string, at time.Time) (int64, error) {
	if f.markErr != nil {
		return 0, f.markErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for i := range f.rows {
		r := &f.rows[i]
		if want[r.ID] && r.Status == model.RequestPending {
			r.Status = model.RequestExported
			r.ExportBatchID = &batchID
			r.ExportedAt = &at
			n++
		}
	}
	return n, nil
}

func (f *fakeRequests) status(id string) model.RequestStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return r.Status
		}
	}
	return ""
}

// fakeSink is an incremental target store.
type fakeSink struct {
	mu      sync.Mutex
	records map[string]model.Record
	applied []string
	failOn  string
}

func newFakeSink() *fakeSink { return &fakeSink{records: map[string]model.Record{}} }

func (s *fakeSink) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok, nil
}

// Apply keeps one result per request, like the unique key on responses.
func (s *fakeSink) Apply(_ context.Context, rec model.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.RecordID() == s.failOn {
		return false, errors.New("deadlock found when trying to get lock")
	}
	if r, ok := rec.(model.ResultRecord); ok {
		for _, have := range s.records {
			if h, ok := have.(model.ResultRecord); ok && h.RequestID == r.RequestID {
				return false, nil
			}
		}
	}
	s.records[rec.RecordID()] = rec
	s.applied = append(s.applied, rec.RecordID())
	return true, nil
}

// fakeSnapshotStore is both a snapshot source and sink.
type fakeSnapshotStore struct {
	mu      sync.Mutex
	records map[string]model.Record
	upserts int
}

func newFakeSnapshotStore(recs ...model.Record) *fakeSnapshotStore {
	s := &fakeSnapshotStore{records: map[string]model.Record{}}
	for _, r := range recs {
		s.records[r.RecordID()] = r
	}
	return s
}

func (s *fakeSnapshotStore) SelectSnapshot(context.Context) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.Record, len(ids))
	for i, id := range ids {
		out[i] = s.records[id]
	}
	return out, nil
}

func (s *fakeSnapshotStore) Upsert(_ context.Context, rec model.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.records[rec.RecordID()]
	s.records[rec.RecordID()] = rec
	s.upserts++
	return !existed, nil
}

type fakeInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return true
}

type fakeNotifier struct {
	events []model.BatchMetadata
}

func (n *fakeNotifier) BatchExported(_ context.Context, m model.BatchMetadata) error {
	n.events = append(n.events, m)
	return nil
}

func requestLine(t interface{ Fatal(...any) }, priority int) []byte {
	rec := model.RequestRecord{
		ID:          uuid.NewString(),
		UserID:      uuid.NewString(),
		QueryType:   "search",
		QueryParams: json.RawMessage(`{"q":"x"}`),
		Priority:    priority,
		CreatedAt:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
