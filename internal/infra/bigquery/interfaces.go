// Package bigquery exports synced transactions to a BigQuery dataset for
// analytics and reads monthly summaries back.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DefaultDatasetID is used when no dataset is configured.
const DefaultDatasetID = "finance"

// Warehouse is the BigQuery-backed transaction warehouse. It holds a shared
// client; call Close when done.
type Warehouse struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewWarehouse creates a client for projectID.
func NewWarehouse(ctx context.Context, projectID, datasetID string) (*Warehouse, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewWarehouse: creating client: %w", err)
	}
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	return &Warehouse{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (w *Warehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
