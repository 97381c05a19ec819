// Package export copies stored transactions to BigQuery for ad-hoc analysis.
package export

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

const TransactionsTable = "transactions"

// Exporter receives newly stored transactions.
type Exporter interface {
	Export(ctx context.Context, txs []domain.Transaction) (int, error)
}

// Row is the BigQuery shape of a stored transaction.
type Row struct {
	TransactionID      int64                 `bigquery:"transaction_id"`
	StatementID        bigquery.NullInt64    `bigquery:"statement_id"`
	TransactionDate    civil.Date            `bigquery:"transaction_date"`
	Amount             *big.Rat              `bigquery:"amount"` // NUMERIC
	Direction          string                `bigquery:"direction"`
	Description        string                `bigquery:"description"`
	Merchant           bigquery.NullString   `bigquery:"merchant"`
	CategoryName       bigquery.NullString   `bigquery:"category_name"`
	SubcategoryName    bigquery.NullString   `bigquery:"subcategory_name"`
	PaymentMethod      bigquery.NullString   `bigquery:"payment_method"`
	BankName           bigquery.NullString   `bigquery:"bank_name"`
	MovementKind       bigquery.NullString   `bigquery:"movement_kind"`
	IsInternalTransfer bool                  `bigquery:"is_internal_transfer"`
	IsCardBillPayment  bool                  `bigquery:"is_card_bill_payment"`
	IsInvestment       bool                  `bigquery:"is_investment"`
	IsRefund           bool                  `bigquery:"is_refund"`
	IsFee              bool                  `bigquery:"is_fee"`
	Confidence         bigquery.NullFloat64  `bigquery:"confidence"`
	Hash               string                `bigquery:"hash"`
	CreatedTS          time.Time             `bigquery:"created_ts"`
	ExportedTS         bigquery.NullDateTime `bigquery:"exported_ts"`
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// RowFromTransaction converts a stored transaction. The amount goes through
// a decimal so that NUMERIC receives the value as written, not its binary
// approximation.
func RowFromTransaction(t domain.Transaction, exportedAt time.Time) *Row {
	r := &Row{
		TransactionID:      t.ID,
		TransactionDate:    t.Date,
		Amount:             decimal.NewFromFloat(t.Amount).Round(2).Rat(),
		Direction:          string(t.Type),
		Description:        t.Description,
		Merchant:           nullString(t.Merchant),
		CategoryName:       nullString(t.CategoryName),
		SubcategoryName:    nullString(t.SubcategoryName),
		PaymentMethod:      nullString(t.PaymentMethod),
		BankName:           nullString(t.BankName),
		MovementKind:       nullString(t.MovementKind),
		IsInternalTransfer: t.IsInternalTransfer,
		IsCardBillPayment:  t.IsCardBillPayment,
		IsInvestment:       t.IsInvestment,
		IsRefund:           t.IsRefund,
		IsFee:              t.IsFee,
		Hash:               t.Hash,
		CreatedTS:          t.CreatedAt,
		ExportedTS:         bigquery.NullDateTime{DateTime: civil.DateTimeOf(exportedAt.UTC()), Valid: true},
	}
	if t.StatementID != nil {
		r.StatementID = bigquery.NullInt64{Int64: *t.StatementID, Valid: true}
	}
	if t.Confidence != nil {
		r.Confidence = bigquery.NullFloat64{Float64: *t.Confidence, Valid: true}
	}
	return r
}

// BigQueryExporter streams rows into <project>.<dataset>.transactions.
type BigQueryExporter struct {
	client  *bigquery.Client
	project string
	dataset string
	now     func() time.Time
}

// NewBigQueryExporter opens a client for project.
func NewBigQueryExporter(ctx context.Context, project, dataset string) (*BigQueryExporter, error) {
	if project == "" || dataset == "" {
		return nil, fmt.Errorf("export: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("export: bigquery client: %w", err)
	}
	return &BigQueryExporter{client: client, project: project, dataset: dataset, now: time.Now}, nil
}

// Close releases the client.
func (e *BigQueryExporter) Close() error {
	return e.client.Close()
}

func (e *BigQueryExporter) table() *bigquery.Table {
	return e.client.DatasetInProject(e.project, e.dataset).Table(TransactionsTable)
}

// EnsureTable creates the transactions table, partitioned by date, unless it
// already exists.
func (e *BigQueryExporter) EnsureTable(ctx context.Context) error {
	schema, err := bigquery.InferSchema(Row{})
	if err != nil {
		return fmt.Errorf("EnsureTable: infer schema: %w", err)
	}
	err = e.table().Create(ctx, &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.MonthPartitioningType, Field: "transaction_date"},
	})
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureTable: %w", err)
	}
	return nil
}

// Export inserts txs and returns how many rows were sent.
func (e *BigQueryExporter) Export(ctx context.Context, txs []domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	now := e.now()
	rows := make([]*Row, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, RowFromTransaction(t, now))
	}
	if err := e.table().Inserter().Put(ctx, rows); err != nil {
		return 0, fmt.Errorf("Export: inserting rows: %w", err)
	}
	return len(rows), nil
}

// QueryByDateRange reads exported rows with from <= date <= to.
func (e *BigQueryExporter) QueryByDateRange(ctx context.Context, from, to civil.Date) ([]*Row, error) {
	q := e.client.Query(fmt.Sprintf(`
		SELECT *
		FROM `+"`%s.%s.%s`"+`
		WHERE transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, transaction_id`, e.project, e.dataset, TransactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: from},
		{Name: "end_date", Value: to},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryByDateRange: query read: %w", err)
	}
	var rows []*Row
	for {
		var r Row
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryByDateRange: iterate: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
