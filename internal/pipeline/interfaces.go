package pipeline

import (
	"context"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
)

// Classifier enriches parsed transactions. On a batch failure it returns the
// records of the batches that completed together with a *classify.BatchError.
type Classifier interface {
	Classify(ctx context.Context, dialect domain.Dialect, txs []domain.ParsedTransaction) ([]domain.ClassifiedTransaction, error)
}

// Ingester stores a classified batch.
type Ingester interface {
	IngestBatch(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Archiver keeps a copy of the uploaded file and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, filename string, data []byte) (string, error)
}

// Exporter receives the transactions stored by an import.
type Exporter interface {
	Export(ctx context.Context, txs []domain.Transaction) (int, error)
}

// StatementReader reads back the rows of a stored statement.
type StatementReader interface {
	TransactionsByStatement(ctx context.Context, statementID int64) ([]domain.Transaction, error)
}
