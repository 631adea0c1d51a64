package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/logger"
)

const (
	transactionsTable = "transactions"

	// maxRowsPerInsert keeps streaming insert requests under the API size limit.
	maxRowsPerInsert = 500
)

// ExportTransactions streams docs into the transactions table.
func (w *Warehouse) ExportTransactions(ctx context.Context, userID string, docs []domain.TransactionDoc) error {
	if len(docs) == 0 {
		return nil
	}

	inserter := w.client.DatasetInProject(w.projectID, w.datasetID).Table(transactionsTable).Inserter()
	for start := 0; start < len(docs); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(docs))

		savers := make([]*bigquery.StructSaver, 0, end-start)
		for _, d := range docs[start:end] {
			savers = append(savers, NewTransactionRow(userID, d).saver())
		}
		if err := inserter.Put(ctx, savers); err != nil {
			return fmt.Errorf("ExportTransactions: inserting rows: %w", err)
		}
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("user_id", userID).Int("rows", len(docs)).Msg("Exported transactions to warehouse")
	return nil
}

// summaryQuery totals each month and category. Streaming inserts are
// at-least-once, so rows are deduplicated by transaction id first.
const summaryQuery = `
	WITH latest AS (
		SELECT * FROM ` + "`%s.%s.%s`" + `
		WHERE user_id = @user_id
		  AND transaction_date >= @start_date
		QUALIFY ROW_NUMBER() OVER (PARTITION BY transaction_id ORDER BY synced_ts DESC) = 1
	)
	SELECT
		FORMAT_DATE('%%Y-%%m', transaction_date) AS month,
		category,
		direction,
		SUM(amount) AS total,
		COUNT(*) AS count
	FROM latest
	GROUP BY month, category, direction
	ORDER BY month DESC, total
`

// MonthlySummary returns per-month category totals since from.
func (w *Warehouse) MonthlySummary(ctx context.Context, userID string, from civil.Date) ([]*SummaryRow, error) {
	q := w.client.Query(fmt.Sprintf(summaryQuery, w.projectID, w.datasetID, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_date", Value: from},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("MonthlySummary: query read: %w", err)
	}

	var rows []*SummaryRow
	for {
		var r SummaryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("MonthlySummary: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
