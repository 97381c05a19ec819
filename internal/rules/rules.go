// Package rules loads the classification rules document: the category
// taxonomy, payment methods, banks and the policy lines handed to the model.
package rules

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/textnorm"
)

// InvestmentIncomeSubcategoryID is the "Rendimentos" subcategory. Income
// totals leave it out because it is not earned income.
const InvestmentIncomeSubcategoryID int64 = 603

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Subcategory is a leaf of the taxonomy.
type Subcategory struct {
	ID   int64  `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Category is a root of the taxonomy with its leaves.
type Category struct {
	ID            int64               `yaml:"id" json:"id"`
	Name          string              `yaml:"name" json:"name"`
	Kind          domain.CategoryKind `yaml:"kind" json:"kind"`
	Subcategories []Subcategory       `yaml:"subcategories" json:"subcategories"`
}

// PaymentMethod is a payment method entry with its matching aliases.
type PaymentMethod struct {
	ID      int64    `yaml:"id" json:"id"`
	Code    string   `yaml:"code" json:"code"`
	Label   string   `yaml:"label" json:"label"`
	Aliases []string `yaml:"aliases" json:"aliases"`
}

// Bank is a bank entry.
type Bank struct {
	ID   int64  `yaml:"id" json:"id"`
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// Document is the whole rules file.
type Document struct {
	Version        int             `yaml:"version" json:"version"`
	Locale         string          `yaml:"locale" json:"locale"`
	Currency       string          `yaml:"currency" json:"currency"`
	Policy         []string        `yaml:"policy" json:"policy"`
	Categories     []Category      `yaml:"categories" json:"categories"`
	PaymentMethods []PaymentMethod `yaml:"payment_methods" json:"payment_methods"`
	Banks          []Bank          `yaml:"banks" json:"banks"`
}

// Default returns the embedded rules document.
func Default() (*Document, error) {
	return Parse(defaultRulesYAML)
}

// Load reads a rules document from path, or the embedded default when path
// is empty.
func Load(path string) (*Document, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes and validates a YAML rules document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks id uniqueness and kinds.
func (d *Document) Validate() error {
	if len(d.Categories) == 0 {
		return errors.New("rules: no categories")
	}
	ids := make(map[int64]string)
	slugs := make(map[string]string)
	claim := func(id int64, name string) error {
		if id <= 0 {
			return fmt.Errorf("rules: category %q has no id", name)
		}
		if prev, ok := ids[id]; ok {
			return fmt.Errorf("rules: id %d used by %q and %q", id, prev, name)
		}
		ids[id] = name
		slug := textnorm.Slug(name)
		if prev, ok := slugs[slug]; ok {
			return fmt.Errorf("rules: %q and %q share slug %q", prev, name, slug)
		}
		slugs[slug] = name
		return nil
	}
	for _, c := range d.Categories {
		if !c.Kind.Valid() {
			return fmt.Errorf("rules: category %q has invalid kind %q", c.Name, c.Kind)
		}
		if err := claim(c.ID, c.Name); err != nil {
			return err
		}
		for _, s := range c.Subcategories {
			if err := claim(s.ID, s.Name); err != nil {
				return err
			}
		}
	}

	codes := make(map[string]bool)
	for _, pm := range d.PaymentMethods {
		if pm.Code == "" || codes[pm.Code] {
			return fmt.Errorf("rules: payment method %d has empty or duplicate code %q", pm.ID, pm.Code)
		}
		codes[pm.Code] = true
	}
	bankCodes := make(map[string]bool)
	for _, b := range d.Banks {
		if b.Code == "" || bankCodes[b.Code] {
			return fmt.Errorf("rules: bank %d has empty or duplicate code %q", b.ID, b.Code)
		}
		bankCodes[b.Code] = true
	}
	return nil
}

// PromptJSON renders the document as indented JSON for the model.
func (d *Document) PromptJSON() (string, error) {
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	return string(out), nil
}

// Taxonomy flattens the categories into domain rows, roots first.
func (d *Document) Taxonomy() []domain.Category {
	var out []domain.Category
	for _, c := range d.Categories {
		out = append(out, domain.Category{
			ID:   c.ID,
			Name: c.Name,
			Slug: textnorm.Slug(c.Name),
			Kind: c.Kind,
		})
	}
	for _, c := range d.Categories {
		parent := c.ID
		for _, s := range c.Subcategories {
			out = append(out, domain.Category{
				ID:       s.ID,
				ParentID: &parent,
				Name:     s.Name,
				Slug:     textnorm.Slug(s.Name),
				Kind:     c.Kind,
			})
		}
	}
	return out
}

// DomainPaymentMethods converts the payment methods for seeding.
func (d *Document) DomainPaymentMethods() []domain.PaymentMethod {
	out := make([]domain.PaymentMethod, 0, len(d.PaymentMethods))
	for _, pm := range d.PaymentMethods {
		out = append(out, domain.PaymentMethod{ID: pm.ID, Code: pm.Code, Label: pm.Label, Aliases: pm.Aliases})
	}
	return out
}

// DomainBanks converts the banks for seeding.
func (d *Document) DomainBanks() []domain.Bank {
	out := make([]domain.Bank, 0, len(d.Banks))
	for _, b := range d.Banks {
		out = append(out, domain.Bank{ID: b.ID, Code: b.Code, Name: b.Name})
	}
	return out
}

// CategoryName returns the name of the category or subcategory with id.
func (d *Document) CategoryName(id int64) (string, bool) {
	for _, c := range d.Categories {
		if c.ID == id {
			return c.Name, true
		}
		for _, s := range c.Subcategories {
			if s.ID == id {
				return s.Name, true
			}
		}
	}
	return "", false
}
