package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/store"
	"github.com/dvloznov/finance-dashboard/internal/textnorm"
)

// References is the reference data a batch is resolved against, loaded once
// per batch.
type References struct {
	store          Store
	banks          map[int64]bool
	methodList     []domain.PaymentMethod
	paymentMethods map[int64]domain.PaymentMethod
	categoryList   []domain.Category
	categories     map[int64]domain.Category
}

// LoadReferences reads payment methods and categories from the store.
func (s *Service) LoadReferences(ctx context.Context) (*References, error) {
	return s.loadReferences(ctx)
}

func (s *Service) loadReferences(ctx context.Context) (*References, error) {
	methods, err := s.store.ListPaymentMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("load payment methods: %w", err)
	}
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	refs := &References{
		store:          s.store,
		banks:          make(map[int64]bool),
		methodList:     methods,
		paymentMethods: make(map[int64]domain.PaymentMethod, len(methods)),
		categoryList:   cats,
		categories:     make(map[int64]domain.Category, len(cats)),
	}
	for _, pm := range methods {
		refs.paymentMethods[pm.ID] = pm
	}
	for _, c := range cats {
		refs.categories[c.ID] = c
	}
	return refs, nil
}

func (r *References) checkBank(ctx context.Context, id int64) error {
	if known, ok := r.banks[id]; ok {
		if !known {
			return &ReferenceError{Field: "bankId", ID: id}
		}
		return nil
	}
	_, err := r.store.GetBank(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.banks[id] = false
		return &ReferenceError{Field: "bankId", ID: id}
	case err != nil:
		return fmt.Errorf("check bank %d: %w", id, err)
	}
	r.banks[id] = true
	return nil
}

func (r *References) name(id *int64) string {
	if id == nil {
		return ""
	}
	return r.categories[*id].Name
}

// findByName matches a category label under parent (nil for roots),
// ignoring case and accents.
func (r *References) findByName(label string, parent *int64) *domain.Category {
	want := textnorm.Fold(label)
	if want == "" {
		return nil
	}
	for i := range r.categoryList {
		c := &r.categoryList[i]
		if (parent == nil) != (c.ParentID == nil) {
			continue
		}
		if parent != nil && *c.ParentID != *parent {
			continue
		}
		if textnorm.Fold(c.Name) == want || c.Slug == textnorm.Slug(label) {
			return c
		}
	}
	return nil
}
