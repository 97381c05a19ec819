// Package pipeline imports a bank statement CSV end to end: decode, detect,
// parse, classify, archive, ingest and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/dvloznov/finance-dashboard/internal/statement"
)

// DefaultIngestTimeout bounds the ingest step of one import.
const DefaultIngestTimeout = 10 * time.Minute

// Deps wires an Importer. Archiver and Exporter are optional.
type Deps struct {
	Registry      *statement.Registry
	Classifier    Classifier
	Ingester      Ingester
	Archiver      Archiver
	Exporter      Exporter
	Reader        StatementReader
	IngestTimeout time.Duration
	Log           zerolog.Logger
}

// Importer runs the full import pipeline for one uploaded file.
type Importer struct {
	pipeline *Pipeline
	log      zerolog.Logger
}

// Request is one uploaded statement file.
type Request struct {
	Filename string
	UserID   int64
	Data     []byte
}

// Result summarizes an import. It is filled as far as the pipeline got, also
// when an error is returned.
type Result struct {
	StatementID     int64          `json:"statementId"`
	Inserted        int            `json:"inserted"`
	Duplicates      int            `json:"duplicates"`
	Skipped         int            `json:"skipped"`
	TotalClassified int            `json:"totalClassified"`
	Dialect         domain.Dialect `json:"dialect,omitempty"`
	ArchiveURI      string         `json:"archiveUri,omitempty"`
	Exported        int            `json:"exported,omitempty"`
	FailedBatch     *int           `json:"failedBatch,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// NewImporter builds the standard seven-step import pipeline.
func NewImporter(d Deps) *Importer {
	if d.Registry == nil {
		d.Registry = statement.DefaultRegistry()
	}
	if d.IngestTimeout <= 0 {
		d.IngestTimeout = DefaultIngestTimeout
	}
	steps := append(ClassifySteps(d.Registry, d.Classifier),
		&ArchiveStep{Archiver: d.Archiver},
		&IngestStep{Ingester: d.Ingester, Timeout: d.IngestTimeout},
		&ExportStep{Exporter: d.Exporter, Reader: d.Reader},
	)
	return &Importer{pipeline: NewPipeline(steps...), log: d.Log}
}

// ClassifySteps are the steps that turn file bytes into classified records
// without touching storage.
func ClassifySteps(reg *statement.Registry, c Classifier) []PipelineStep {
	return []PipelineStep{
		&DecodeStep{},
		&DetectStep{},
		&ParseStep{Registry: reg},
		&ClassifyStep{Classifier: c},
	}
}

// Import runs the pipeline. When classification stopped partway, the
// completed batches are still stored and the *classify.BatchError is
// returned alongside the Result.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	log := im.log.With().Str("file", req.Filename).Int64("user_id", req.UserID).Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{Filename: req.Filename, UserID: req.UserID, Raw: req.Data}
	err := im.pipeline.Execute(ctx, state)
	res := ResultFromState(state)
	if err != nil {
		res.Error = err.Error()
		log.Error().Err(err).Msg("Statement import failed")
		return res, err
	}
	if state.ClassifyErr != nil {
		res.Error = state.ClassifyErr.Error()
		return res, fmt.Errorf("import %s: %w", req.Filename, state.ClassifyErr)
	}
	log.Info().Int64("statement_id", res.StatementID).Int("inserted", res.Inserted).
		Int("duplicates", res.Duplicates).Msg("Statement import finished")
	return res, nil
}

// ResultFromState copies the summary fields out of a pipeline state.
func ResultFromState(state *PipelineState) *Result {
	res := &Result{
		Skipped:         state.Skipped,
		TotalClassified: len(state.Classified),
		Dialect:         state.Dialect,
		ArchiveURI:      state.ArchiveURI,
		Exported:        state.Exported,
	}
	if state.Ingested != nil {
		res.StatementID = state.Ingested.StatementID
		res.Inserted = state.Ingested.Inserted
		res.Duplicates = state.Ingested.Duplicates
	}
	if state.ClassifyErr != nil {
		idx := state.ClassifyErr.Index
		res.FailedBatch = &idx
	}
	return res
}

// IsFormatError reports whether err means the file itself cannot be
// imported, so retrying is pointless.
func IsFormatError(err error) bool {
	var fe *statement.FormatError
	return errors.Is(err, statement.ErrUnrecognizedFormat) || errors.As(err, &fe)
}
