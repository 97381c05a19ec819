package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Dialect identifies one of the supported statement CSV layouts.
type Dialect string

const (
	DialectMercadoPago Dialect = "mercadopago"
	DialectNubank      Dialect = "nubank"
	DialectBradesco    Dialect = "bradesco"
)

// Known bank ids for each dialect, matching the seeded banks table.
const (
	BankIDBradesco    int64 = 2
	BankIDNubank      int64 = 6
	BankIDMercadoPago int64 = 10
)

// BankID returns the seeded bank id that exports the dialect.
func (d Dialect) BankID() int64 {
	switch d {
	case DialectMercadoPago:
		return BankIDMercadoPago
	case DialectNubank:
		return BankIDNubank
	case DialectBradesco:
		return BankIDBradesco
	}
	return 0
}

// DisplayName returns the bank name shown to users.
func (d Dialect) DisplayName() string {
	switch d {
	case DialectMercadoPago:
		return "Mercado Pago"
	case DialectNubank:
		return "Nubank"
	case DialectBradesco:
		return "Bradesco"
	}
	return string(d)
}

// CategoryKind mirrors MovementKind for taxonomy rows.
type CategoryKind string

const (
	KindSpend    CategoryKind = "spend"
	KindIncome   CategoryKind = "income"
	KindTransfer CategoryKind = "transfer"
	KindInvest   CategoryKind = "invest"
	KindFee      CategoryKind = "fee"
)

// Valid reports whether k is a known category kind.
func (k CategoryKind) Valid() bool {
	return MovementKind(k).Valid()
}

// Category is a node of the two-level taxonomy. Roots have no parent.
type Category struct {
	ID       int64        `json:"id"`
	ParentID *int64       `json:"parentId"`
	Name     string       `json:"name"`
	Slug     string       `json:"slug"`
	Kind     CategoryKind `json:"kind"`
}

// CategoryNode is a root category with its subcategories.
type CategoryNode struct {
	Category
	Children []Category `json:"children"`
}

// Bank is reference data for account-holding institutions.
type Bank struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// PaymentMethod is reference data with aliases used for text matching.
type PaymentMethod struct {
	ID      int64    `json:"id"`
	Code    string   `json:"code"`
	Label   string   `json:"label"`
	Aliases []string `json:"aliases"`
}

// Statement is one ingestion batch.
type Statement struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	PeriodStart civil.Date `json:"periodStart"`
	PeriodEnd   civil.Date `json:"periodEnd"`
	SourceFile  string     `json:"sourceFile"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// User owns statements. Only a placeholder user is created automatically.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
