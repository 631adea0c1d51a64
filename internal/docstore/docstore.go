// Package docstore defines the document store the sync engine writes to: a
// collection/document key-value store with batched, atomically committed writes.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// MaxBatchWrites is the hard per-commit operation limit of the store.
const MaxBatchWrites = 500

// Store is the document store contract.
type Store interface {
	// Get returns one document. A missing document yields an error wrapping domain.ErrNotFound.
	Get(ctx context.Context, collection, id string) (Snapshot, error)

	// List returns every document of a collection ordered by id.
	List(ctx context.Context, collection string) ([]Snapshot, error)

	// NewBatch starts an empty write batch.
	NewBatch() Batch

	// Close releases the underlying resources.
	Close() error
}

// Batch accumulates writes that are committed atomically.
type Batch interface {
	// Set stages an upsert. With merge, doc is applied as a JSON merge patch
	// onto the existing document; otherwise it replaces it.
	Set(collection, id string, doc any, merge bool) error

	// Delete stages a delete. Deleting a missing document is not an error.
	Delete(collection, id string)

	// Len returns the number of staged operations.
	Len() int

	// Commit applies all staged operations atomically and empties the batch.
	Commit(ctx context.Context) error
}

// Snapshot is a stored document.
type Snapshot struct {
	Collection string
	ID         string
	Data       json.RawMessage
}

// DataTo decodes the document into v.
func (s Snapshot) DataTo(v any) error {
	if err := json.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", s.Collection, s.ID, err)
	}
	return nil
}

// UserCollection returns the path of a per-user collection.
func UserCollection(userID, name string) string {
	return "users/" + userID + "/" + name
}

// Encode marshals doc and checks that it is a JSON object.
func Encode(doc any) (json.RawMessage, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(b), []byte("{")) {
		return nil, fmt.Errorf("encode: document must be a JSON object, got %.20s", b)
	}
	return b, nil
}

// MergePatch applies patch onto target following RFC 7396: objects merge
// recursively, null removes a key, anything else replaces.
func MergePatch(target, patch json.RawMessage) (json.RawMessage, error) {
	p, err := decode(patch)
	if err != nil {
		return nil, fmt.Errorf("merge patch: %w", err)
	}
	var t any
	if len(target) > 0 {
		if t, err = decode(target); err != nil {
			return nil, fmt.Errorf("merge target: %w", err)
		}
	}
	return json.Marshal(mergeValue(t, p))
}

func mergeValue(target, patch any) any {
	pm, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	tm, ok := target.(map[string]any)
	if !ok {
		tm = make(map[string]any, len(pm))
	}
	for k, v := range pm {
		if v == nil {
			delete(tm, k)
			continue
		}
		tm[k] = mergeValue(tm[k], v)
	}
	return tm
}

func decode(b json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
