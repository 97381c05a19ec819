package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-dashboard/internal/rules"
)

// SeedCounts reports how many reference rows a seed run inserted.
type SeedCounts struct {
	Banks          int
	PaymentMethods int
	Categories     int
}

// Seed inserts the banks, payment methods and taxonomy of doc. Existing rows
// are left untouched, so seeding is idempotent.
func (s *Store) Seed(ctx context.Context, doc *rules.Document) (SeedCounts, error) {
	var counts SeedCounts

	for _, b := range doc.DomainBanks() {
		res, err := s.ExecContext(ctx, `
			INSERT INTO banks (id, code, name) VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING`, b.ID, b.Code, b.Name)
		if err != nil {
			return counts, fmt.Errorf("Seed: bank %s: %w", b.Code, err)
		}
		counts.Banks += affected(res)
	}

	for _, pm := range doc.DomainPaymentMethods() {
		aliases, err := json.Marshal(pm.Aliases)
		if err != nil {
			return counts, fmt.Errorf("Seed: payment method %s aliases: %w", pm.Code, err)
		}
		res, err := s.ExecContext(ctx, `
			INSERT INTO payment_methods (id, code, label, aliases) VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING`, pm.ID, pm.Code, pm.Label, string(aliases))
		if err != nil {
			return counts, fmt.Errorf("Seed: payment method %s: %w", pm.Code, err)
		}
		counts.PaymentMethods += affected(res)
	}

	// Taxonomy lists roots before children.
	for _, c := range doc.Taxonomy() {
		res, err := s.ExecContext(ctx, `
			INSERT INTO categories (id, parent_id, name, slug, kind) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`, c.ID, c.ParentID, c.Name, c.Slug, string(c.Kind))
		if err != nil {
			return counts, fmt.Errorf("Seed: category %s: %w", c.Slug, err)
		}
		counts.Categories += affected(res)
	}
	if err := s.syncSequence(ctx, "categories"); err != nil {
		return counts, fmt.Errorf("Seed: %w", err)
	}
	return counts, nil
}

func affected(res interface{ RowsAffected() (int64, error) }) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
