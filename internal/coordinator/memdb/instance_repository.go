package memdb

import (
	"context"
	"fmt"

	"github.com/jcmexdev/saga-coordinator/internal/coordinator/instance"
)

type instanceRecord struct {
	ID      string
	Data    instance.Primitives
	Deleted bool
}

// InstanceRepository is the in-memory implementation of instance.Repository.
type InstanceRepository struct {
	store *Store
}

var _ instance.Repository = (*InstanceRepository)(nil)

func (r *InstanceRepository) FindByID(_ context.Context, id string) (*instance.SagaInstance, error) {
	txn := r.store.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableInstances, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("memdb: find saga instance %q: %w", id, err)
	}
	if raw == nil {
		return nil, nil
	}
	rec := raw.(*instanceRecord)
	if rec.Deleted {
		return nil, nil
	}
	return instance.FromPrimitives(rec.Data), nil
}

func (r *InstanceRepository) Save(_ context.Context, s *instance.SagaInstance) error {
	p := s.ToPrimitives()

	txn := r.store.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableInstances, &instanceRecord{ID: p.ID, Data: p}); err != nil {
		return fmt.Errorf("memdb: save saga instance %q: %w", p.ID, err)
	}
	txn.Commit()
	return nil
}

func (r *InstanceRepository) Delete(_ context.Context, id string) error {
	txn := r.store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableInstances, indexID, id)
	if err != nil {
		return fmt.Errorf("memdb: delete saga instance %q: %w", id, err)
	}
	if raw == nil {
		return nil
	}
	// Records are immutable once inserted; replace instead of mutating.
	rec := *raw.(*instanceRecord)
	rec.Deleted = true
	if err := txn.Insert(tableInstances, &rec); err != nil {
		return fmt.Errorf("memdb: delete saga instance %q: %w", id, err)
	}
	txn.Commit()
	return nil
}
