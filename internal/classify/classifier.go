// Package classify sends parsed transactions to a language model in fixed-size
// batches and validates the structured output.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/rules"
)

const (
	DefaultBatchSize    = 80
	DefaultBatchTimeout = 2 * time.Minute
)

// trailingObject finds a JSON object at the end of a response wrapped in prose.
var trailingObject = regexp.MustCompile(`\{[\s\S]*\}$`)

// Config tunes batching.
type Config struct {
	BatchSize    int
	BatchTimeout time.Duration
	SystemPrompt string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	return c
}

// Classifier classifies parsed transactions batch by batch.
type Classifier struct {
	gen       Generator
	rulesJSON string
	schema    map[string]any
	cfg       Config
	log       zerolog.Logger
}

// New creates a Classifier. The rules document is serialized once.
func New(gen Generator, doc *rules.Document, cfg Config, log zerolog.Logger) (*Classifier, error) {
	rulesJSON, err := doc.PromptJSON()
	if err != nil {
		return nil, fmt.Errorf("classify.New: %w", err)
	}
	return &Classifier{
		gen:       gen,
		rulesJSON: rulesJSON,
		schema:    ResponseSchema(),
		cfg:       cfg.withDefaults(),
		log:       log,
	}, nil
}

// BatchSize returns the configured batch size.
func (c *Classifier) BatchSize() int {
	return c.cfg.BatchSize
}

// Classify classifies txs exported by dialect. Batches run one at a time in
// submission order. When a batch fails, the transactions classified by the
// earlier batches are returned together with a *BatchError.
func (c *Classifier) Classify(ctx context.Context, dialect domain.Dialect, txs []domain.ParsedTransaction) ([]domain.ClassifiedTransaction, error) {
	batches := Partition(txs, c.cfg.BatchSize)
	out := make([]domain.ClassifiedTransaction, 0, len(txs))

	for i, batch := range batches {
		start := time.Now()
		c.log.Info().
			Int("batch", i).
			Int("batches", len(batches)).
			Int("size", len(batch)).
			Msg("Sending batch for classification")

		classified, err := c.classifyBatch(ctx, i, dialect, batch)
		if err != nil {
			return out, &BatchError{Index: i, Completed: len(out), Err: err}
		}
		out = append(out, classified...)

		c.log.Debug().
			Int("batch", i).
			Dur("duration", time.Since(start)).
			Msg("Batch classified")
	}
	return out, nil
}

func (c *Classifier) classifyBatch(ctx context.Context, index int, dialect domain.Dialect, batch []domain.ParsedTransaction) ([]domain.ClassifiedTransaction, error) {
	msg, err := buildUserMessage(c.rulesJSON, batch)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.BatchTimeout)
	defer cancel()

	text, err := c.gen.Generate(ctx, Request{
		SystemPrompt: c.cfg.SystemPrompt,
		UserMessage:  msg,
		Schema:       c.schema,
	})
	if err != nil {
		return nil, err
	}

	records, err := c.decodeResponse(index, text)
	if err != nil {
		return nil, err
	}
	if len(records) != len(batch) {
		return nil, fmt.Errorf("%w: enviados %d, recebidos %d", ErrCountMismatch, len(batch), len(records))
	}

	out := make([]domain.ClassifiedTransaction, len(records))
	for i, raw := range records {
		mt, err := decodeRecord(i, raw)
		if err != nil {
			return nil, err
		}
		out[i] = merge(batch[i], mt, dialect)
	}
	return out, nil
}

// decodeResponse returns the raw transaction records of a response. When the
// response is not JSON, a trailing {...} object is tried before giving up.
func (c *Classifier) decodeResponse(index int, text string) ([]json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var envelope struct {
		Transacoes []json.RawMessage `json:"transacoes"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err == nil {
		return envelope.Transacoes, nil
	}

	m := trailingObject.FindString(text)
	if m == "" {
		return nil, ErrUnparseableOutput
	}
	c.log.Warn().
		Int("batch", index).
		Int("response_length", len(text)).
		Msg("Model output was not plain JSON, using trailing object fallback")
	if err := json.Unmarshal([]byte(m), &envelope); err != nil {
		return nil, ErrUnparseableOutput
	}
	return envelope.Transacoes, nil
}

// merge combines a parser record with the model's classification. The parser
// owns date, amount and direction when it produced them.
func merge(in domain.ParsedTransaction, mt modelTransaction, dialect domain.Dialect) domain.ClassifiedTransaction {
	out := in.Classified()

	if d, err := civil.ParseDate(strings.TrimSpace(mt.Date)); err == nil && in.Date.IsZero() {
		out.Date = d
	}
	if in.Amount == nil {
		out.Amount = mt.Amount
		out.Type = mt.Type
	}
	if out.Description == "" {
		out.Description = mt.Description
	}

	out.CounterpartyNormalized = mt.CounterpartyNormalized
	out.PaymentMethod = mt.PaymentMethod
	out.PaymentMethodID = mt.PaymentMethodID
	out.BankID = mt.BankID
	if id := dialect.BankID(); id != 0 {
		out.BankID = id
	}
	out.CategoryID = mt.CategoryID
	out.SubcategoryID = mt.SubcategoryID
	out.CategoryLabel = mt.CategoryLabel
	out.SubcategoryLabel = mt.SubcategoryLabel
	out.MovementKind = mt.MovementKind
	out.IsInternalTransfer = mt.IsInternalTransfer
	out.IsCardBillPayment = mt.IsCardBillPayment
	out.IsInvestmentAporte = mt.IsInvestmentAporte
	out.IsInvestmentRendimento = mt.IsInvestmentRendimento
	return out
}

// Partition splits txs into consecutive batches of at most size items.
func Partition(txs []domain.ParsedTransaction, size int) [][]domain.ParsedTransaction {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]domain.ParsedTransaction
	for i := 0; i < len(txs); i += size {
		end := i + size
		if end > len(txs) {
			end = len(txs)
		}
		out = append(out, txs[i:end])
	}
	return out
}
