package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-dashboard/internal/classify"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/dvloznov/finance-dashboard/internal/statement"
	"github.com/dvloznov/finance-dashboard/internal/store"
	"github.com/dvloznov/finance-dashboard/internal/store/storetest"
)

const nubankCSV = "Data,Valor,Identificador,Descrição\n" +
	"01/02/2025,-45.90,67a1b2c3-0001,Compra no débito - Padaria, Centro\n" +
	"02/02/2025,1500.00,67a1b2c3-0002,Transferência recebida pelo Pix - FULANO\n" +
	"03/02/2025,-10.00\n" +
	"32/02/2025,-10.00,67a1b2c3-0003,Data impossível\n"

// MockClassifier is a mock implementation of Classifier.
type MockClassifier struct {
	ClassifyFunc func(ctx context.Context, dialect domain.Dialect, txs []domain.ParsedTransaction) ([]domain.ClassifiedTransaction, error)
}

func (m *MockClassifier) Classify(ctx context.Context, dialect domain.Dialect, txs []domain.ParsedTransaction) ([]domain.ClassifiedTransaction, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, dialect, txs)
	}
	return passThrough(txs), nil
}

// MockArchiver is a mock implementation of Archiver.
type MockArchiver struct {
	ArchiveFunc func(ctx context.Context, filename string, data []byte) (string, error)
}

func (m *MockArchiver) Archive(ctx context.Context, filename string, data []byte) (string, error) {
	if m.ArchiveFunc != nil {
		return m.ArchiveFunc(ctx, filename, data)
	}
	return "gs://bucket/statements/" + filename, nil
}

// MockExporter is a mock implementation of Exporter.
type MockExporter struct {
	ExportFunc func(ctx context.Context, txs []domain.Transaction) (int, error)
}

func (m *MockExporter) Export(ctx context.Context, txs []domain.Transaction) (int, error) {
	if m.ExportFunc != nil {
		return m.ExportFunc(ctx, txs)
	}
	return len(txs), nil
}

// passThrough classifies every row as uncategorized Pix with the sign-derived
// movement kind.
func passThrough(txs []domain.ParsedTransaction) []domain.ClassifiedTransaction {
	out := make([]domain.ClassifiedTransaction, len(txs))
	for i, p := range txs {
		c := p.Classified()
		c.PaymentMethod = "PIX"
		c.MovementKind = domain.MovementKind(c.Type)
		out[i] = c
	}
	return out
}

func newImporter(t *testing.T, c Classifier, a Archiver, e Exporter) (*Importer, *store.Store) {
	t.Helper()
	s := storetest.New(t)
	return NewImporter(Deps{
		Classifier: c,
		Ingester:   ingest.NewService(s, zerolog.Nop()),
		Archiver:   a,
		Exporter:   e,
		Reader:     s,
		Log:        zerolog.Nop(),
	}), s
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	var exported []domain.Transaction
	exp := &MockExporter{ExportFunc: func(ctx context.Context, txs []domain.Transaction) (int, error) {
		exported = txs
		return len(txs), nil
	}}
	im, s := newImporter(t, &MockClassifier{}, &MockArchiver{}, exp)

	res, err := im.Import(ctx, Request{Filename: "nubank.csv", UserID: 1, Data: []byte(nubankCSV)})
	require.NoError(t, err)

	assert.Equal(t, domain.DialectNubank, res.Dialect)
	assert.Equal(t, 2, res.TotalClassified)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, "gs://bucket/statements/nubank.csv", res.ArchiveURI)
	assert.Equal(t, 2, res.Exported)
	assert.Nil(t, res.FailedBatch)
	assert.Len(t, exported, 2)

	st, err := s.GetStatement(ctx, res.StatementID)
	require.NoError(t, err)
	assert.Equal(t, "nubank.csv", st.SourceFile)
	assert.Equal(t, "2025-02-01", st.PeriodStart.String())
	assert.Equal(t, "2025-02-02", st.PeriodEnd.String())

	stored, err := s.TransactionsByStatement(ctx, res.StatementID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.NotNil(t, stored[0].BankID)
	assert.Equal(t, domain.BankIDNubank, *stored[0].BankID, "bank taken from the detected dialect")

	again, err := im.Import(ctx, Request{Filename: "nubank.csv", UserID: 1, Data: []byte(nubankCSV)})
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Equal(t, 2, again.Duplicates)
	assert.Zero(t, again.Exported, "nothing new to export")
}

func TestImport_PartialClassification(t *testing.T) {
	ctx := context.Background()
	cls := &MockClassifier{ClassifyFunc: func(ctx context.Context, d domain.Dialect, txs []domain.ParsedTransaction) ([]domain.ClassifiedTransaction, error) {
		return passThrough(txs[:1]), &classify.BatchError{Index: 1, Completed: 1, Err: classify.ErrCountMismatch}
	}}
	im, _ := newImporter(t, cls, nil, nil)

	res, err := im.Import(ctx, Request{Filename: "nubank.csv", UserID: 1, Data: []byte(nubankCSV)})
	require.Error(t, err)

	var batchErr *classify.BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.ErrorIs(t, err, classify.ErrCountMismatch)
	assert.Equal(t, 1, res.Inserted, "completed batches are stored")
	require.NotNil(t, res.FailedBatch)
	assert.Equal(t, 1, *res.FailedBatch)
	assert.NotEmpty(t, res.Error)
}

func TestImport_FirstBatchFails(t *testing.T) {
	cls := &MockClassifier{ClassifyFunc: func(ctx context.Context, d domain.Dialect, txs []domain.ParsedTransaction) ([]domain.ClassifiedTransaction, error) {
		return []domain.ClassifiedTransaction{}, &classify.BatchError{Index: 0, Err: classify.ErrEmptyResponse}
	}}
	im, s := newImporter(t, cls, nil, nil)

	res, err := im.Import(context.Background(), Request{Filename: "nubank.csv", UserID: 1, Data: []byte(nubankCSV)})
	require.Error(t, err)
	assert.ErrorIs(t, err, classify.ErrEmptyResponse)
	assert.Zero(t, res.StatementID)

	_, err = s.GetStatement(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestImport_ArchiveAndExportFailuresAreNotFatal(t *testing.T) {
	arch := &MockArchiver{ArchiveFunc: func(ctx context.Context, filename string, data []byte) (string, error) {
		return "", errors.New("bucket unavailable")
	}}
	exp := &MockExporter{ExportFunc: func(ctx context.Context, txs []domain.Transaction) (int, error) {
		return 0, errors.New("quota exceeded")
	}}
	im, _ := newImporter(t, &MockClassifier{}, arch, exp)

	res, err := im.Import(context.Background(), Request{Filename: "nubank.csv", UserID: 1, Data: []byte(nubankCSV)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Empty(t, res.ArchiveURI)
	assert.Zero(t, res.Exported)
}

func TestImport_UnrecognizedFormat(t *testing.T) {
	im, _ := newImporter(t, &MockClassifier{}, nil, nil)

	_, err := im.Import(context.Background(), Request{Filename: "x.csv", UserID: 1, Data: []byte("a,b,c\n1,2,3\n")})
	require.Error(t, err)
	assert.ErrorIs(t, err, statement.ErrUnrecognizedFormat)
	assert.True(t, IsFormatError(err))
}

func TestImport_HeaderOnlyIsFormatError(t *testing.T) {
	im, _ := newImporter(t, &MockClassifier{}, nil, nil)

	_, err := im.Import(context.Background(), Request{Filename: "x.csv", UserID: 1, Data: []byte("Data,Valor,Identificador,Descrição\n")})
	require.Error(t, err)
	assert.True(t, IsFormatError(err))
}

func TestIsFormatError(t *testing.T) {
	assert.False(t, IsFormatError(errors.New("boom")))
	assert.False(t, IsFormatError(&classify.BatchError{Err: classify.ErrEmptyResponse}))
	assert.True(t, IsFormatError(&statement.FormatError{}))
}

func TestPeriod(t *testing.T) {
	txs := passThrough([]domain.ParsedTransaction{
		{Date: mustDate(t, "2025-02-10")},
		{Date: mustDate(t, "2025-01-31")},
		{Date: mustDate(t, "2025-02-03")},
	})
	start, end := Period(txs)
	assert.Equal(t, "2025-01-31", start.String())
	assert.Equal(t, "2025-02-10", end.String())
}

func mustDate(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestSteps_LogThroughContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), zerolog.New(&buf).Level(zerolog.DebugLevel))
	state := &PipelineState{Filename: "nubank.csv", Raw: []byte(nubankCSV)}

	p := NewPipeline(&DecodeStep{}, &DetectStep{}, &ParseStep{Registry: statement.DefaultRegistry()})
	require.NoError(t, p.Execute(ctx, state))

	out := buf.String()
	assert.Contains(t, out, "Statement format detected")
	assert.Contains(t, out, `"dialect":"nubank"`)
	assert.Contains(t, out, "Rows skipped by parser")
}
