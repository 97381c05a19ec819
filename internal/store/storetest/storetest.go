// Package storetest opens migrated, seeded in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/rules"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

// New returns an in-memory SQLite store with every migration applied and the
// default reference data seeded. It is closed when the test ends.
func New(t testing.TB) *store.Store {
	t.Helper()
	s := NewEmpty(t)
	doc, err := rules.Default()
	if err != nil {
		t.Fatalf("load default rules: %v", err)
	}
	if _, err := s.Seed(context.Background(), doc); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

// NewEmpty is New without the seed data.
func NewEmpty(t testing.TB) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.VendorSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if _, err := s.Migrate(ctx, "test", zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}
