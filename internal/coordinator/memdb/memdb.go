// Package memdb provides in-memory implementations of the saga instance,
// saga step and saga log repositories on top of hashicorp/go-memdb.
//
// It backs the "memory" storage driver and the application tests. Every
// method runs in its own memdb transaction, so concurrent callers observe
// whole records only.
package memdb

import (
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"
)

const (
	tableInstances = "saga_instances"
	tableSteps     = "saga_steps"
	tableLogs      = "saga_logs"

	indexID       = "id"
	indexInstance = "saga_instance_id"
	indexStep     = "saga_step_id"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableInstances: {
			Name: tableInstances,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
			},
		},
		tableSteps: {
			Name: tableSteps,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				indexInstance: {
					Name:         indexInstance,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "SagaInstanceID"},
				},
			},
		},
		tableLogs: {
			Name: tableLogs,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				indexInstance: {
					Name:         indexInstance,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "SagaInstanceID"},
				},
				indexStep: {
					Name:         indexStep,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "SagaStepID"},
				},
			},
		},
	},
}

// Store is a shared handle for the three repositories.
type Store struct {
	db  *memdb.MemDB
	seq atomic.Uint64
}

// New creates an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("memdb: create: %w", err)
	}
	return &Store{db: db}, nil
}

// Instances returns the saga instance repository.
func (s *Store) Instances() *InstanceRepository { return &InstanceRepository{store: s} }

// Steps returns the saga step repository.
func (s *Store) Steps() *StepRepository { return &StepRepository{store: s} }

// Logs returns the saga log repository.
func (s *Store) Logs() *LogRepository { return &LogRepository{store: s} }

func (s *Store) nextSeq() uint64 { return s.seq.Add(1) }
