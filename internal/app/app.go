// Package app wires the components shared by the binaries from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/archive"
	"github.com/dvloznov/finance-dashboard/internal/classify"
	"github.com/dvloznov/finance-dashboard/internal/config"
	"github.com/dvloznov/finance-dashboard/internal/export"
	"github.com/dvloznov/finance-dashboard/internal/ingest"
	"github.com/dvloznov/finance-dashboard/internal/pipeline"
	"github.com/dvloznov/finance-dashboard/internal/rules"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

// ErrNoGeminiKey is returned by the classifier when GEMINI_API_KEY is unset.
var ErrNoGeminiKey = errors.New("GEMINI_API_KEY não configurada")

// OpenStore connects to the configured database, applies pending migrations
// and seeds the reference data from doc.
func OpenStore(ctx context.Context, cfg *config.Config, doc *rules.Document, log zerolog.Logger) (*store.Store, error) {
	s, err := store.Open(ctx, cfg.DBVendor, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := s.Migrate(ctx, "app", log); err != nil {
		s.Close()
		return nil, err
	}
	counts, err := s.Seed(ctx, doc)
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Debug().Interface("seeded", counts).Msg("Reference data seeded")
	return s, nil
}

// NewClassifier builds the Gemini classifier. Without an API key it returns
// a classifier whose every batch fails with ErrNoGeminiKey, so the rest of
// the service keeps working.
func NewClassifier(ctx context.Context, cfg *config.Config, doc *rules.Document, log zerolog.Logger) (*classify.Classifier, error) {
	var gen classify.Generator = missingKey{}
	if cfg.GeminiAPIKey != "" {
		g, err := classify.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		gen = g
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set - CSV classification is disabled")
	}
	return newClassifier(cfg, doc, gen, log)
}

// newClassifier applies the batching settings and the optional system prompt
// file from cfg.
func newClassifier(cfg *config.Config, doc *rules.Document, gen classify.Generator, log zerolog.Logger) (*classify.Classifier, error) {
	prompt, err := classify.LoadSystemPrompt(cfg.SystemPromptPath)
	if err != nil {
		return nil, err
	}
	return classify.New(gen, doc, classify.Config{
		BatchSize:    cfg.ClassifyBatchSize,
		BatchTimeout: cfg.ClassifyBatchTimeout,
		SystemPrompt: prompt,
	}, log)
}

type missingKey struct{}

func (missingKey) Generate(context.Context, classify.Request) (string, error) {
	return "", ErrNoGeminiKey
}

// Importer is the full import pipeline plus the clients it holds open.
type Importer struct {
	*pipeline.Importer
	closers []io.Closer
}

// Close releases the archive and export clients.
func (im *Importer) Close() error {
	var errs []error
	for _, c := range im.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// NewImporter assembles the import pipeline. The GCS archive and BigQuery
// export steps are enabled only when configured.
func NewImporter(ctx context.Context, cfg *config.Config, s *store.Store, c pipeline.Classifier, log zerolog.Logger) (*Importer, error) {
	im := &Importer{}
	deps := pipeline.Deps{
		Classifier:    c,
		Ingester:      ingest.NewService(s, log),
		Reader:        s,
		IngestTimeout: cfg.IngestTimeout,
		Log:           log,
	}

	if cfg.ArchiveBucket != "" {
		a, err := archive.NewGCSArchiver(ctx, cfg.ArchiveBucket)
		if err != nil {
			return nil, err
		}
		im.closers = append(im.closers, a)
		deps.Archiver = a
		log.Info().Str("bucket", cfg.ArchiveBucket).Msg("Statement archiving enabled")
	}

	if cfg.ExportEnabled() {
		e, err := export.NewBigQueryExporter(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			im.Close()
			return nil, err
		}
		im.closers = append(im.closers, e)
		if err := e.EnsureTable(ctx); err != nil {
			im.Close()
			return nil, fmt.Errorf("prepare export table: %w", err)
		}
		deps.Exporter = e
		log.Info().Str("project", cfg.BigQueryProject).Str("dataset", cfg.BigQueryDataset).Msg("BigQuery export enabled")
	}

	im.Importer = pipeline.NewImporter(deps)
	return im, nil
}
