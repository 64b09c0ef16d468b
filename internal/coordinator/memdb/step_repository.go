package memdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/step"
)

type stepRecord struct {
	ID             string
	SagaInstanceID string
	Data           step.Primitives
	Deleted        bool
}

// StepRepository is the in-memory implementation of step.Repository.
type StepRepository struct {
	store *Store
}

var _ step.Repository = (*StepRepository)(nil)

func (r *StepRepository) FindByID(_ context.Context, id string) (*step.SagaStep, error) {
	txn := r.store.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableSteps, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("memdb: find saga step %q: %w", id, err)
	}
	if raw == nil {
		return nil, nil
	}
	rec := raw.(*stepRecord)
	if rec.Deleted {
		return nil, nil
	}
	return step.FromPrimitives(rec.Data), nil
}

func (r *StepRepository) FindBySagaInstanceID(_ context.Context, sagaInstanceID string) ([]*step.SagaStep, error) {
	txn := r.store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableSteps, indexInstance, sagaInstanceID)
	if err != nil {
		return nil, fmt.Errorf("memdb: list saga steps of %q: %w", sagaInstanceID, err)
	}

	var recs []*stepRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		if rec := obj.(*stepRecord); !rec.Deleted {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Data, recs[j].Data
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	out := make([]*step.SagaStep, 0, len(recs))
	for _, rec := range recs {
		out = append(out, step.FromPrimitives(rec.Data))
	}
	return out, nil
}

func (r *StepRepository) Save(_ context.Context, s *step.SagaStep) error {
	p := s.ToPrimitives()

	txn := r.store.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableSteps, &stepRecord{ID: p.ID, SagaInstanceID: p.SagaInstanceID, Data: p}); err != nil {
		return fmt.Errorf("memdb: save saga step %q: %w", p.ID, err)
	}
	txn.Commit()
	return nil
}

func (r *StepRepository) Delete(_ context.Context, id string) error {
	txn := r.store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableSteps, indexID, id)
	if err != nil {
		return fmt.Errorf("memdb: delete saga step %q: %w", id, err)
	}
	if raw == nil {
		return nil
	}
	rec := *raw.(*stepRecord)
	rec.Deleted = true
	if err := txn.Insert(tableSteps, &rec); err != nil {
		return fmt.Errorf("memdb: delete saga step %q: %w", id, err)
	}
	txn.Commit()
	return nil
}
