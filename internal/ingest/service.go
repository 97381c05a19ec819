// Package ingest persists classified statement batches: one statement row
// per batch, one transaction row per entry, with row-level de-duplication on
// the content hash.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/flags"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

// Store is the persistence the service needs.
type Store interface {
	EnsureUser(ctx context.Context, id int64) (*domain.User, error)
	GetBank(ctx context.Context, id int64) (*domain.Bank, error)
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateStatement(ctx context.Context, st domain.Statement) (*domain.Statement, error)
	InsertTransaction(ctx context.Context, t domain.Transaction) (int64, error)
}

// Request is one statement batch.
type Request struct {
	UserID      int64                          `json:"userId"`
	PeriodStart civil.Date                     `json:"periodStart"`
	PeriodEnd   civil.Date                     `json:"periodEnd"`
	SourceFile  string                         `json:"sourceFile"`
	BankID      *int64                         `json:"bankId,omitempty"`
	Transacoes  []domain.ClassifiedTransaction `json:"transacoes"`

	// Skipped is the number of source rows the parser dropped; it is
	// reported back unchanged.
	Skipped int `json:"-"`
}

// Result reports how a batch was stored. On error it holds the progress made
// before the failure.
type Result struct {
	StatementID int64   `json:"statementId"`
	Inserted    int     `json:"inserted"`
	Duplicates  int     `json:"duplicates"`
	Skipped     int     `json:"skipped"`
	InsertedIDs []int64 `json:"-"`
}

// ReferenceError names an id that does not resolve to a reference row.
type ReferenceError struct {
	Field string
	ID    int64
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %d não encontrado", e.Field, e.ID)
}

// ValidationError rejects a request before anything is stored.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Service stores classified batches.
type Service struct {
	store Store
	flags *flags.Classifier
	log   zerolog.Logger
}

// NewService returns a Service using the default heuristic flag rules.
func NewService(s Store, log zerolog.Logger) *Service {
	return &Service{store: s, flags: flags.New(flags.DefaultRules...), log: log}
}

// IngestBatch creates a statement for req and inserts its transactions. A
// transaction whose hash already exists counts as a duplicate; any other
// error stops the loop and is returned with the partial Result.
func (s *Service) IngestBatch(ctx context.Context, req Request) (*Result, error) {
	res := &Result{Skipped: req.Skipped}
	if req.UserID <= 0 {
		return res, fmt.Errorf("IngestBatch: %w", &ValidationError{Msg: fmt.Sprintf("userId inválido: %d", req.UserID)})
	}
	if len(req.Transacoes) == 0 {
		return res, fmt.Errorf("IngestBatch: %w", &ValidationError{Msg: "transacoes deve conter ao menos uma transação"})
	}
	if _, err := s.store.EnsureUser(ctx, req.UserID); err != nil {
		return res, fmt.Errorf("IngestBatch: %w", err)
	}

	refs, err := s.loadReferences(ctx)
	if err != nil {
		return res, fmt.Errorf("IngestBatch: %w", err)
	}
	if req.BankID != nil {
		if err := refs.checkBank(ctx, *req.BankID); err != nil {
			return res, fmt.Errorf("IngestBatch: %w", err)
		}
	}

	st, err := s.store.CreateStatement(ctx, domain.Statement{
		UserID:      req.UserID,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		SourceFile:  req.SourceFile,
	})
	if err != nil {
		return res, fmt.Errorf("IngestBatch: %w", err)
	}
	res.StatementID = st.ID

	for i, ct := range req.Transacoes {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("IngestBatch: interrupted after %d of %d transactions: %w",
				res.Inserted+res.Duplicates, len(req.Transacoes), err)
		}
		tx, err := s.Normalize(ctx, refs, ct, req.BankID)
		if err != nil {
			return res, fmt.Errorf("IngestBatch: transaction %d: %w", i, err)
		}
		tx.StatementID = &st.ID

		id, err := s.store.InsertTransaction(ctx, *tx)
		if errors.Is(err, store.ErrConflict) {
			res.Duplicates++
			s.log.Debug().Str("hash", tx.Hash).Int("index", i).Msg("Duplicate transaction skipped")
			continue
		}
		if err != nil {
			return res, fmt.Errorf("IngestBatch: transaction %d: %w", i, err)
		}
		res.Inserted++
		res.InsertedIDs = append(res.InsertedIDs, id)
	}

	s.log.Info().
		Int64("statement_id", st.ID).
		Int("inserted", res.Inserted).
		Int("duplicates", res.Duplicates).
		Int("skipped", res.Skipped).
		Msg("Statement ingested")
	return res, nil
}

// Normalize turns a classified record into a storable row: it resolves
// references, derives flags and computes the hash. It does not write.
func (s *Service) Normalize(ctx context.Context, refs *References, ct domain.ClassifiedTransaction, bankID *int64) (*domain.Transaction, error) {
	tx := &domain.Transaction{
		Date:         ct.Date,
		Description:  ct.Description,
		Merchant:     ct.CounterpartyNormalized,
		Type:         ct.Type,
		Amount:       ct.Amount,
		MovementKind: string(ct.MovementKind),
		Confidence:   ct.Confidence,
		Notes:        ct.Notes,
	}
	if !tx.Type.Valid() {
		tx.Type = domain.DirectionOf(&ct.Amount)
	}

	tx.Hash = strings.TrimSpace(ct.ExternalID)
	if tx.Hash == "" {
		tx.Hash = ContentHash(ct.Date, ct.Amount, ct.Description)
	}

	switch {
	case ct.BankID != 0:
		if err := refs.checkBank(ctx, ct.BankID); err != nil {
			return nil, err
		}
		tx.BankID = &ct.BankID
	case bankID != nil:
		tx.BankID = bankID
	}

	if err := s.resolvePaymentMethod(refs, ct, tx); err != nil {
		return nil, err
	}
	s.resolveCategory(refs, ct, tx)

	heuristic := s.flags.Classify(flags.Input{
		Category:     refs.name(tx.CategoryID),
		Subcategory:  refs.name(tx.SubcategoryID),
		Notes:        ct.Notes,
		Description:  ct.Description,
		MovementKind: ct.MovementKind,
	})
	model := flags.Flags{
		InternalTransfer: ct.IsInternalTransfer == 1,
		CardBillPayment:  ct.IsCardBillPayment == 1,
		Investment:       ct.IsInvestmentAporte == 1 || ct.IsInvestmentRendimento == 1,
	}
	f := model.Or(heuristic)
	tx.IsInternalTransfer = f.InternalTransfer
	tx.IsCardBillPayment = f.CardBillPayment
	tx.IsInvestment = f.Investment
	tx.IsRefund = f.Refund
	tx.IsFee = f.Fee
	return tx, nil
}

func (s *Service) resolvePaymentMethod(refs *References, ct domain.ClassifiedTransaction, tx *domain.Transaction) error {
	if ct.PaymentMethodID != 0 {
		pm, ok := refs.paymentMethods[ct.PaymentMethodID]
		if !ok {
			return &ReferenceError{Field: "paymentMethodId", ID: ct.PaymentMethodID}
		}
		tx.PaymentMethodID = &pm.ID
		tx.PaymentMethod = pm.Label
		return nil
	}
	text := strings.TrimSpace(ct.PaymentMethod)
	if text == "" {
		return nil
	}
	if pm := store.MatchPaymentMethod(refs.methodList, text); pm != nil {
		tx.PaymentMethodID = &pm.ID
		tx.PaymentMethod = pm.Label
		return nil
	}
	tx.PaymentMethod = text
	return nil
}

func (s *Service) resolveCategory(refs *References, ct domain.ClassifiedTransaction, tx *domain.Transaction) {
	if c, ok := refs.categories[ct.CategoryID]; ok && c.ParentID == nil {
		tx.CategoryID = &c.ID
	} else if c := refs.findByName(ct.CategoryLabel, nil); c != nil {
		tx.CategoryID = &c.ID
	} else if ct.CategoryID != 0 || ct.CategoryLabel != "" {
		s.log.Warn().Int64("category_id", ct.CategoryID).Str("category_label", ct.CategoryLabel).
			Msg("Unknown category, storing transaction uncategorized")
	}
	if tx.CategoryID == nil {
		return
	}

	if ct.SubcategoryID != nil {
		if c, ok := refs.categories[*ct.SubcategoryID]; ok && c.ParentID != nil && *c.ParentID == *tx.CategoryID {
			tx.SubcategoryID = &c.ID
			return
		}
	}
	if ct.SubcategoryLabel != nil {
		if c := refs.findByName(*ct.SubcategoryLabel, tx.CategoryID); c != nil {
			tx.SubcategoryID = &c.ID
			return
		}
	}
	if ct.SubcategoryID != nil || ct.SubcategoryLabel != nil {
		s.log.Debug().Int64("category_id", *tx.CategoryID).Msg("Unknown subcategory dropped")
	}
}

// CreateTransaction stores one manually entered transaction outside any
// statement. It goes through the same resolution and flag derivation as a
// batch row; an existing hash yields store.ErrConflict.
func (s *Service) CreateTransaction(ctx context.Context, ct domain.ClassifiedTransaction) (*domain.Transaction, error) {
	refs, err := s.loadReferences(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.Normalize(ctx, refs, ct, nil)
	if err != nil {
		return nil, err
	}
	id, err := s.store.InsertTransaction(ctx, *tx)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	tx.ID = id
	return tx, nil
}
