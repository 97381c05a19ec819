package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

func TestDefault(t *testing.T) {
	doc, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "pt-BR", doc.Locale)
	assert.NotEmpty(t, doc.Policy)
	assert.Len(t, doc.Banks, 11)
	assert.Len(t, doc.PaymentMethods, 10)

	name, ok := doc.CategoryName(InvestmentIncomeSubcategoryID)
	require.True(t, ok)
	assert.Equal(t, "Rendimentos", name)

	for _, d := range []domain.Dialect{domain.DialectBradesco, domain.DialectNubank, domain.DialectMercadoPago} {
		found := false
		for _, b := range doc.Banks {
			if b.ID == d.BankID() {
				found = true
			}
		}
		assert.True(t, found, "bank for %s is seeded", d)
	}
}

func TestTaxonomy(t *testing.T) {
	doc, err := Default()
	require.NoError(t, err)

	tax := doc.Taxonomy()
	byID := make(map[int64]domain.Category)
	for _, c := range tax {
		byID[c.ID] = c
	}

	card := byID[800]
	assert.Nil(t, card.ParentID)
	assert.Equal(t, "cartao-de-credito", card.Slug)

	bill := byID[801]
	require.NotNil(t, bill.ParentID)
	assert.Equal(t, int64(800), *bill.ParentID)
	assert.Equal(t, "pagamento-de-fatura", bill.Slug)

	// roots come before any child so parents exist when seeding in order
	seenChild := false
	for _, c := range tax {
		if c.ParentID != nil {
			seenChild = true
		} else {
			assert.False(t, seenChild, "root %q after a child", c.Name)
		}
	}

	assert.Equal(t, domain.KindInvest, byID[603].Kind)
}

func TestPromptJSON(t *testing.T) {
	doc, err := Default()
	require.NoError(t, err)

	out, err := doc.PromptJSON()
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &back))
	assert.Contains(t, back, "categories")
	assert.Contains(t, back, "payment_methods")
	assert.Contains(t, out, "\n  \"version\"")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
categories:
  - id: 1
    name: Casa
    kind: spend
    subcategories:
      - {id: 2, name: Aluguel}
`), 0o600))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)
	assert.Len(t, doc.Taxonomy(), 2)

	def, err := Load("")
	require.NoError(t, err)
	assert.Greater(t, len(def.Categories), 1)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no categories", "version: 1\n"},
		{"bad kind", "categories:\n  - {id: 1, name: A, kind: weird}\n"},
		{"duplicate id", "categories:\n  - {id: 1, name: A, kind: spend, subcategories: [{id: 1, name: B}]}\n"},
		{"duplicate slug", "categories:\n  - {id: 1, name: Água, kind: spend}\n  - {id: 2, name: agua, kind: spend}\n"},
		{"duplicate payment code", "categories:\n  - {id: 1, name: A, kind: spend}\npayment_methods:\n  - {id: 1, code: PIX}\n  - {id: 2, code: PIX}\n"},
		{"missing id", "categories:\n  - {name: A, kind: spend}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
