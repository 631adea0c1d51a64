package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
)

// Store is an in-memory implementation of docstore.Store.
// It is safe for concurrent use. Data is lost on restart; use the sqlite
// store for persistence.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage

	commitSizes []int
	failCommit  func(ops []docstore.Op) error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]json.RawMessage),
	}
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return docstore.Snapshot{}, fmt.Errorf("get %s/%s: %w", collection, id, domain.ErrNotFound)
	}

	// Return a copy to avoid external modifications
	return docstore.Snapshot{Collection: collection, ID: id, Data: append(json.RawMessage(nil), data...)}, nil
}

// List implements docstore.Store.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	result := make([]docstore.Snapshot, 0, len(docs))
	for id, data := range docs {
		result = append(result, docstore.Snapshot{Collection: collection, ID: id, Data: append(json.RawMessage(nil), data...)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// NewBatch implements docstore.Store.
func (s *Store) NewBatch() docstore.Batch {
	return docstore.NewOpBatch(s.commit)
}

// Close implements docstore.Store.
func (s *Store) Close() error { return nil }

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// CommitSizes returns the number of operations of every successful commit, in order.
func (s *Store) CommitSizes() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.commitSizes...)
}

// FailCommits installs a hook that can reject commits. A nil hook clears it.
func (s *Store) FailCommits(fn func(ops []docstore.Op) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommit = fn
}

// commit applies ops all-or-nothing: merged documents are computed first and
// only swapped in once every op succeeded.
func (s *Store) commit(ctx context.Context, ops []docstore.Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommit != nil {
		if err := s.failCommit(ops); err != nil {
			return err
		}
	}

	type key struct{ collection, id string }
	pending := make(map[key]json.RawMessage)
	deleted := make(map[key]bool)

	current := func(k key) json.RawMessage {
		if deleted[k] {
			return nil
		}
		if data, ok := pending[k]; ok {
			return data
		}
		return s.collections[k.collection][k.id]
	}

	for _, op := range ops {
		k := key{op.Collection, op.ID}
		switch op.Kind {
		case docstore.OpDelete:
			delete(pending, k)
			deleted[k] = true
		case docstore.OpSet:
			data := op.Data
			if op.Merge {
				merged, err := docstore.MergePatch(current(k), op.Data)
				if err != nil {
					return fmt.Errorf("commit %s/%s: %w", op.Collection, op.ID, err)
				}
				data = merged
			} else if _, err := docstore.MergePatch(nil, op.Data); err != nil {
				return fmt.Errorf("commit %s/%s: %w", op.Collection, op.ID, err)
			}
			pending[k] = data
			delete(deleted, k)
		}
	}

	for k := range deleted {
		delete(s.collections[k.collection], k.id)
	}
	for k, data := range pending {
		docs, ok := s.collections[k.collection]
		if !ok {
			docs = make(map[string]json.RawMessage)
			s.collections[k.collection] = docs
		}
		docs[k.id] = data
	}
	s.commitSizes = append(s.commitSizes, len(ops))

	return nil
}

// Ensure Store implements docstore.Store.
var _ docstore.Store = (*Store)(nil)
