package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/finance-dashboard/internal/classify"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/dvloznov/finance-dashboard/internal/statement"
)

// PipelineStep represents a single step of a statement import.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Filename string
	UserID   int64
	Raw      []byte

	Text       string
	Dialect    domain.Dialect
	Parsed     []domain.ParsedTransaction
	Skipped    int
	Classified []domain.ClassifiedTransaction

	// ClassifyErr is set when a batch failed after earlier batches completed.
	ClassifyErr *classify.BatchError

	ArchiveURI string
	Ingested   *ingest.Result
	Exported   int
}

// Step 1: DecodeStep converts the raw upload to UTF-8 text.
type DecodeStep struct{}

func (s *DecodeStep) Execute(ctx context.Context, state *PipelineState) error {
	text, err := statement.Decode(state.Raw)
	if err != nil {
		return err
	}
	state.Text = statement.NormalizeNewlines(text)
	return nil
}

// Step 2: DetectStep picks the dialect from the header signature.
type DetectStep struct{}

func (s *DetectStep) Execute(ctx context.Context, state *PipelineState) error {
	dialect, err := statement.Detect(state.Text)
	if err != nil {
		return err
	}
	state.Dialect = dialect
	log := logger.FromContext(ctx)
	log.Info().Str("dialect", string(dialect)).Str("file", state.Filename).Msg("Statement format detected")
	return nil
}

// Step 3: ParseStep runs the dialect parser.
type ParseStep struct {
	Registry *statement.Registry
}

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Registry.ParseDialect(state.Dialect, state.Text)
	if err != nil {
		return err
	}
	state.Parsed = res.Transactions
	state.Skipped = res.Skipped
	if res.Skipped > 0 {
		log := logger.FromContext(ctx)
		log.Debug().Ints("lines", res.SkippedLines).Msg("Rows skipped by parser")
	}
	return nil
}

// Step 4: ClassifyStep sends the parsed rows to the classifier. When a later
// batch fails, the completed batches are kept and the failure is recorded in
// the state; a failure of the first batch stops the pipeline.
type ClassifyStep struct {
	Classifier Classifier
}

func (s *ClassifyStep) Execute(ctx context.Context, state *PipelineState) error {
	out, err := s.Classifier.Classify(ctx, state.Dialect, state.Parsed)
	var batchErr *classify.BatchError
	if errors.As(err, &batchErr) && len(out) > 0 {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Int("failed_batch", batchErr.Index).
			Int("kept", len(out)).
			Msg("Classification incomplete, keeping completed batches")
		state.Classified = out
		state.ClassifyErr = batchErr
		return nil
	}
	if err != nil {
		return err
	}
	state.Classified = out
	return nil
}

// Step 5: ArchiveStep stores the original file. Failures are logged and do
// not stop the import.
type ArchiveStep struct {
	Archiver Archiver
}

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archiver == nil {
		return nil
	}
	uri, err := s.Archiver.Archive(ctx, state.Filename, state.Raw)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("file", state.Filename).Msg("Failed to archive statement file")
		return nil
	}
	state.ArchiveURI = uri
	return nil
}

// Step 6: IngestStep stores the classified rows under a new statement whose
// period spans the transaction dates.
type IngestStep struct {
	Ingester Ingester
	Timeout  time.Duration
}

func (s *IngestStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start, end := Period(state.Classified)
	req := ingest.Request{
		UserID:      state.UserID,
		PeriodStart: start,
		PeriodEnd:   end,
		SourceFile:  state.Filename,
		Transacoes:  state.Classified,
		Skipped:     state.Skipped,
	}
	if bank := state.Dialect.BankID(); bank != 0 {
		req.BankID = &bank
	}

	res, err := s.Ingester.IngestBatch(ctx, req)
	state.Ingested = res
	return err
}

// Step 7: ExportStep sends the rows stored by this import to the exporter.
// Failures are logged and do not stop the import.
type ExportStep struct {
	Exporter Exporter
	Reader   StatementReader
}

func (s *ExportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Exporter == nil || state.Ingested == nil || state.Ingested.Inserted == 0 {
		return nil
	}
	log := logger.FromContext(ctx)
	txs, err := s.Reader.TransactionsByStatement(ctx, state.Ingested.StatementID)
	if err != nil {
		log.Error().Err(err).Int64("statement_id", state.Ingested.StatementID).Msg("Failed to read statement for export")
		return nil
	}
	n, err := s.Exporter.Export(ctx, txs)
	if err != nil {
		log.Error().Err(err).Int64("statement_id", state.Ingested.StatementID).Msg("Failed to export transactions")
		return nil
	}
	state.Exported = n
	return nil
}

// Period returns the earliest and latest transaction dates.
func Period(txs []domain.ClassifiedTransaction) (start, end civil.Date) {
	for i, t := range txs {
		if i == 0 || t.Date.Before(start) {
			start = t.Date
		}
		if i == 0 || t.Date.After(end) {
			end = t.Date
		}
	}
	return start, end
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
