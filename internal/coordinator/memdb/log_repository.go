package memdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/sagalog"
)

type logRecord struct {
	ID             string
	SagaInstanceID string
	SagaStepID     string
	Seq            uint64
	Entry          sagalog.SagaLog
}

// LogRepository is the in-memory implementation of sagalog.Repository.
type LogRepository struct {
	store *Store
}

var _ sagalog.Repository = (*LogRepository)(nil)

// Save appends entry. Reusing an id is an error, as in the SQL store.
func (r *LogRepository) Save(_ context.Context, entry *sagalog.SagaLog) error {
	txn := r.store.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableLogs, indexID, entry.ID)
	if err != nil {
		return fmt.Errorf("memdb: save saga log %q: %w", entry.ID, err)
	}
	if existing != nil {
		return fmt.Errorf("memdb: save saga log %q: duplicate id", entry.ID)
	}

	rec := &logRecord{
		ID:             entry.ID,
		SagaInstanceID: entry.SagaInstanceID,
		SagaStepID:     entry.SagaStepID,
		Seq:            r.store.nextSeq(),
		Entry:          *entry,
	}
	if err := txn.Insert(tableLogs, rec); err != nil {
		return fmt.Errorf("memdb: save saga log %q: %w", entry.ID, err)
	}
	txn.Commit()
	return nil
}

func (r *LogRepository) FindBySagaInstanceID(_ context.Context, sagaInstanceID string) ([]*sagalog.SagaLog, error) {
	return r.list(indexInstance, sagaInstanceID)
}

func (r *LogRepository) FindBySagaStepID(_ context.Context, sagaStepID string) ([]*sagalog.SagaLog, error) {
	return r.list(indexStep, sagaStepID)
}

func (r *LogRepository) list(index, value string) ([]*sagalog.SagaLog, error) {
	txn := r.store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableLogs, index, value)
	if err != nil {
		return nil, fmt.Errorf("memdb: list saga logs by %s %q: %w", index, value, err)
	}

	var recs []*logRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		recs = append(recs, obj.(*logRecord))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })

	out := make([]*sagalog.SagaLog, 0, len(recs))
	for _, rec := range recs {
		entry := rec.Entry
		out = append(out, &entry)
	}
	return out, nil
}
