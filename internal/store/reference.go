package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/textnorm"
)

// ListBanks returns all banks ordered by id.
func (s *Store) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	rows, err := s.QueryContext(ctx, `SELECT id, code, name FROM banks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListBanks: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Bank
	for rows.Next() {
		var b domain.Bank
		if err := rows.Scan(&b.ID, &b.Code, &b.Name); err != nil {
			return nil, fmt.Errorf("ListBanks: scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBank returns the bank with id, or ErrNotFound.
func (s *Store) GetBank(ctx context.Context, id int64) (*domain.Bank, error) {
	var b domain.Bank
	err := s.QueryRowContext(ctx, `SELECT id, code, name FROM banks WHERE id = ?`, id).
		Scan(&b.ID, &b.Code, &b.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetBank: %w", err)
	}
	return &b, nil
}

// ListPaymentMethods returns all payment methods ordered by id.
func (s *Store) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := s.QueryContext(ctx, `SELECT id, code, label, aliases FROM payment_methods ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListPaymentMethods: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPaymentMethods: %w", err)
		}
		out = append(out, *pm)
	}
	return out, rows.Err()
}

// GetPaymentMethod returns the payment method with id, or ErrNotFound.
func (s *Store) GetPaymentMethod(ctx context.Context, id int64) (*domain.PaymentMethod, error) {
	row := s.QueryRowContext(ctx, `SELECT id, code, label, aliases FROM payment_methods WHERE id = ?`, id)
	pm, err := scanPaymentMethod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetPaymentMethod: %w", err)
	}
	return pm, nil
}

// ResolvePaymentMethod matches free text against payment method codes and
// aliases, ignoring case and accents. It returns ErrNotFound when nothing
// matches.
func (s *Store) ResolvePaymentMethod(ctx context.Context, text string) (*domain.PaymentMethod, error) {
	methods, err := s.ListPaymentMethods(ctx)
	if err != nil {
		return nil, err
	}
	if pm := MatchPaymentMethod(methods, text); pm != nil {
		return pm, nil
	}
	return nil, ErrNotFound
}

// MatchPaymentMethod returns the method whose code, label or alias equals
// text after folding.
func MatchPaymentMethod(methods []domain.PaymentMethod, text string) *domain.PaymentMethod {
	want := textnorm.Fold(strings.ReplaceAll(text, "_", " "))
	if want == "" {
		return nil
	}
	for i := range methods {
		pm := &methods[i]
		candidates := append([]string{pm.Code, pm.Label}, pm.Aliases...)
		for _, c := range candidates {
			if textnorm.Fold(strings.ReplaceAll(c, "_", " ")) == want {
				return pm
			}
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaymentMethod(r rowScanner) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	var aliases string
	if err := r.Scan(&pm.ID, &pm.Code, &pm.Label, &aliases); err != nil {
		return nil, err
	}
	if aliases != "" {
		if err := json.Unmarshal([]byte(aliases), &pm.Aliases); err != nil {
			return nil, fmt.Errorf("decode aliases of %s: %w", pm.Code, err)
		}
	}
	return &pm, nil
}
