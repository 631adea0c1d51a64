package inmemory

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/dvloznov/openfinance-sync/internal/docstore"
	"github.com/dvloznov/openfinance-sync/internal/domain"
)

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	b := s.NewBatch()
	if err := b.Set("users/u1/accounts", "acc-1", map[string]any{"name": "Checking", "balance": 10}, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snap, err := s.Get(ctx, "users/u1/accounts", "acc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var doc map[string]any
	if err := snap.DataTo(&doc); err != nil {
		t.Fatalf("DataTo: %v", err)
	}
	if doc["name"] != "Checking" {
		t.Errorf("name = %v, want Checking", doc["name"])
	}
}

func TestStore_GetNotFound(t *testing.T) {
	_, err := NewStore().Get(context.Background(), "users/u1/accounts", "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_MergeKeepsExistingFields(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	b := s.NewBatch()
	_ = b.Set("c", "1", map[string]any{"a": 1, "nested": map[string]any{"x": 1}}, false)
	_ = b.Commit(ctx)

	b = s.NewBatch()
	_ = b.Set("c", "1", map[string]any{"b": 2, "nested": map[string]any{"y": 2}}, true)
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snap, _ := s.Get(ctx, "c", "1")
	var doc map[string]any
	_ = snap.DataTo(&doc)

	if doc["a"] == nil || doc["b"] == nil {
		t.Errorf("merge lost a top-level field: %v", doc)
	}
	nested := doc["nested"].(map[string]any)
	if nested["x"] == nil || nested["y"] == nil {
		t.Errorf("merge lost a nested field: %v", nested)
	}
}

func TestStore_SetWithoutMergeReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	b := s.NewBatch()
	_ = b.Set("c", "1", map[string]any{"a": 1}, false)
	_ = b.Set("c", "1", map[string]any{"b": 2}, false)
	_ = b.Commit(ctx)

	snap, _ := s.Get(ctx, "c", "1")
	var doc map[string]any
	_ = snap.DataTo(&doc)
	if _, ok := doc["a"]; ok {
		t.Errorf("replace kept old field: %v", doc)
	}
}

func TestStore_CommitRejectsOversizedBatch(t *testing.T) {
	s := NewStore()
	b := s.NewBatch()
	for i := 0; i <= docstore.MaxBatchWrites; i++ {
		_ = b.Set("c", strconv.Itoa(i), map[string]any{"i": i}, false)
	}

	if err := b.Commit(context.Background()); err == nil {
		t.Fatal("expected commit of 501 operations to fail")
	}
	if s.Count("c") != 0 {
		t.Errorf("oversized batch wrote %d documents", s.Count("c"))
	}
}

func TestStore_FailedCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.FailCommits(func(ops []docstore.Op) error { return errors.New("boom") })

	b := s.NewBatch()
	_ = b.Set("c", "1", map[string]any{"a": 1}, false)
	if err := b.Commit(ctx); err == nil {
		t.Fatal("expected commit error")
	}
	if s.Count("c") != 0 {
		t.Errorf("failed commit wrote documents")
	}
	if len(s.CommitSizes()) != 0 {
		t.Errorf("failed commit was recorded")
	}
}

func TestStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	b := s.NewBatch()
	_ = b.Set("c", "b", map[string]any{"v": 2}, false)
	_ = b.Set("c", "a", map[string]any{"v": 1}, false)
	_ = b.Set("c", "z", map[string]any{"v": 3}, false)
	_ = b.Commit(ctx)

	b = s.NewBatch()
	b.Delete("c", "z")
	_ = b.Commit(ctx)

	docs, err := s.List(ctx, "c")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
		t.Errorf("List = %+v, want [a b]", docs)
	}
}
