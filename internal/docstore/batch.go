package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// OpKind is the kind of a staged write.
type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
)

// Op is one staged write.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       json.RawMessage
	Merge      bool
}

// CommitFunc applies a list of operations atomically.
type CommitFunc func(ctx context.Context, ops []Op) error

// OpBatch is a Batch that records operations and hands them to a CommitFunc.
// Store implementations only supply the commit.
type OpBatch struct {
	ops    []Op
	commit CommitFunc
}

// NewOpBatch returns a batch committing through fn.
func NewOpBatch(fn CommitFunc) *OpBatch {
	return &OpBatch{commit: fn}
}

// Set implements Batch.
func (b *OpBatch) Set(collection, id string, doc any, merge bool) error {
	if collection == "" || id == "" {
		return fmt.Errorf("set: collection and id are required")
	}
	data, err := Encode(doc)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	b.ops = append(b.ops, Op{Kind: OpSet, Collection: collection, ID: id, Data: data, Merge: merge})
	return nil
}

// Delete implements Batch.
func (b *OpBatch) Delete(collection, id string) {
	b.ops = append(b.ops, Op{Kind: OpDelete, Collection: collection, ID: id})
}

// Len implements Batch.
func (b *OpBatch) Len() int { return len(b.ops) }

// Commit implements Batch.
func (b *OpBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	if len(b.ops) > MaxBatchWrites {
		return fmt.Errorf("commit: %d operations exceed the %d write limit", len(b.ops), MaxBatchWrites)
	}
	ops := b.ops
	b.ops = nil
	return b.commit(ctx, ops)
}

var _ Batch = (*OpBatch)(nil)
