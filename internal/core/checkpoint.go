package core

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/store"
)

// CheckpointKey identifies the checkpoint of one import source.
type CheckpointKey struct {
	Entity string
	Source string
}

// Checkpoint records the next batch to process for a source. It exists only
// while a batched run is in progress.
type Checkpoint struct {
	Key             CheckpointKey
	ID              string // backend record id, set by Save
	NextBatchOffset int
	BatchSize       int
	UpdatedAt       time.Time
}

// CheckpointStore persists checkpoints across invocations. Load returns
// (nil, nil) when no checkpoint exists. Deleting a missing checkpoint is not
// an error.
type CheckpointStore interface {
	Load(ctx context.Context, key CheckpointKey) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	Delete(ctx context.Context, cp *Checkpoint) error
}

// BatchModel names the store entity that holds checkpoints and its fields.
type BatchModel struct {
	Entity      string `json:"entity" yaml:"entity"`
	SourceField string `json:"sourceField" yaml:"sourceField"`
	OffsetField string `json:"offsetField" yaml:"offsetField"`
	SizeField   string `json:"sizeField" yaml:"sizeField"`
}

// Defaults fills unset names.
func (m BatchModel) Defaults() BatchModel {
	if m.Entity == "" {
		m.Entity = "ImportBatch"
	}
	if m.SourceField == "" {
		m.SourceField = "file"
	}
	if m.OffsetField == "" {
		m.OffsetField = "offset"
	}
	if m.SizeField == "" {
		m.SizeField = "size"
	}
	return m
}

// RemoteCheckpoints keeps checkpoints as records of a batch entity in the
// target store, one record per source identity.
type RemoteCheckpoints struct {
	Exec  Executor
	Model BatchModel
}

// Load implements CheckpointStore.
func (r RemoteCheckpoints) Load(ctx context.Context, key CheckpointKey) (*Checkpoint, error) {
	m := r.Model.Defaults()
	rec, err := r.Exec.One(ctx, m.Entity, store.Eq(m.SourceField, key.Source),
		[]string{m.SourceField, m.OffsetField, m.SizeField})
	if err != nil || rec == nil {
		return nil, err
	}
	offset, _ := parseNumber(stringify(rec[m.OffsetField]))
	size, _ := parseNumber(stringify(rec[m.SizeField]))
	return &Checkpoint{
		Key:             key,
		ID:              stringify(rec["id"]),
		NextBatchOffset: int(offset),
		BatchSize:       int(size),
	}, nil
}

// Save implements CheckpointStore.
func (r RemoteCheckpoints) Save(ctx context.Context, cp *Checkpoint) error {
	m := r.Model.Defaults()
	input := Record{m.OffsetField: cp.NextBatchOffset, m.SizeField: cp.BatchSize}
	if cp.ID == "" {
		input[m.SourceField] = cp.Key.Source
		id, err := r.Exec.CreateOne(ctx, m.Entity, input)
		if err != nil {
			return err
		}
		cp.ID = id
	} else if err := r.Exec.UpdateOne(ctx, m.Entity, cp.ID, input); err != nil {
		return err
	}
	cp.UpdatedAt = time.Now()
	return nil
}

// Delete implements CheckpointStore.
func (r RemoteCheckpoints) Delete(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.ID == "" {
		return nil
	}
	return r.Exec.DeleteOne(ctx, r.Model.Defaults().Entity, cp.ID)
}

// MemoryCheckpoints is an in-process CheckpointStore.
type MemoryCheckpoints struct {
	mu    sync.Mutex
	items map[CheckpointKey]Checkpoint
	seq   int
}

// NewMemoryCheckpoints returns an empty store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{items: make(map[CheckpointKey]Checkpoint)}
}

// Load implements CheckpointStore.
func (m *MemoryCheckpoints) Load(_ context.Context, key CheckpointKey) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

// Save implements CheckpointStore.
func (m *MemoryCheckpoints) Save(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cp.ID == "" {
		m.seq++
		cp.ID = strconv.Itoa(m.seq)
	}
	cp.UpdatedAt = time.Now()
	m.items[cp.Key] = *cp
	return nil
}

// Delete implements CheckpointStore.
func (m *MemoryCheckpoints) Delete(_ context.Context, cp *Checkpoint) error {
	if cp == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, cp.Key)
	return nil
}

// Len returns the number of stored checkpoints.
func (m *MemoryCheckpoints) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
