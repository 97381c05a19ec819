package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Direction is the sign-derived direction of a movement.
type Direction string

const (
	DirectionIncome Direction = "income"
	DirectionSpend  Direction = "spend"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionIncome || d == DirectionSpend
}

// DirectionOf returns income for non-negative amounts and spend otherwise.
// A missing amount counts as zero.
func DirectionOf(amount *float64) Direction {
	if amount == nil || *amount >= 0 {
		return DirectionIncome
	}
	return DirectionSpend
}

// MovementKind is the classification tag assigned by the model.
type MovementKind string

const (
	MovementSpend    MovementKind = "spend"
	MovementIncome   MovementKind = "income"
	MovementTransfer MovementKind = "transfer"
	MovementInvest   MovementKind = "invest"
	MovementFee      MovementKind = "fee"
)

// MovementKinds lists every movement kind in schema order.
var MovementKinds = []MovementKind{MovementSpend, MovementIncome, MovementTransfer, MovementInvest, MovementFee}

// Valid reports whether k is a known movement kind.
func (k MovementKind) Valid() bool {
	for _, known := range MovementKinds {
		if k == known {
			return true
		}
	}
	return false
}

// RawLine is one structurally split line of a statement file, before any
// field is interpreted.
type RawLine struct {
	Dialect Dialect
	LineNo  int // 1-based, after line-ending normalization
	Fields  []string
}

// ParsedTransaction is what a dialect parser produces from a RawLine.
// Amount and Balance are nil when the source field could not be parsed.
type ParsedTransaction struct {
	Date        civil.Date `json:"date"`
	Description string     `json:"description"`
	Amount      *float64   `json:"amount"`
	Direction   Direction  `json:"type"`
	Reference   string     `json:"reference,omitempty"`
	Balance     *float64   `json:"balance,omitempty"`
	ExternalID  string     `json:"external_id,omitempty"`
}

// ClassifiedTransaction is a ParsedTransaction enriched by the classifier.
// JSON field names follow the classification schema so the same record can
// be posted to the ingest endpoint.
type ClassifiedTransaction struct {
	Date                   civil.Date   `json:"date"`
	Description            string       `json:"description"`
	Amount                 float64      `json:"amount"`
	Type                   Direction    `json:"type"`
	CounterpartyNormalized string       `json:"counterparty_normalized"`
	PaymentMethod          string       `json:"payment_method"`
	PaymentMethodID        int64        `json:"payment_method_id"`
	BankID                 int64        `json:"bank_id"`
	CategoryID             int64        `json:"category_id"`
	SubcategoryID          *int64       `json:"subcategory_id"`
	CategoryLabel          string       `json:"category_label"`
	SubcategoryLabel       *string      `json:"subcategory_label"`
	MovementKind           MovementKind `json:"movement_kind"`
	IsInternalTransfer     int          `json:"is_internal_transfer"`
	IsCardBillPayment      int          `json:"is_card_bill_payment"`
	IsInvestmentAporte     int          `json:"is_investment_aporte"`
	IsInvestmentRendimento int          `json:"is_investment_rendimento"`

	// Fields below are not produced by the model.
	Notes      string   `json:"observacoes,omitempty"`
	Confidence *float64 `json:"confianca_classificacao,omitempty"`
	ExternalID string   `json:"id_transacao,omitempty"`
	Reference  string   `json:"reference,omitempty"`
	Balance    *float64 `json:"balance,omitempty"`
}

// Transaction is a stored, normalized transaction row.
type Transaction struct {
	ID                 int64      `json:"id"`
	StatementID        *int64     `json:"statementId"`
	Date               civil.Date `json:"date"`
	Description        string     `json:"description"`
	Merchant           string     `json:"merchant"`
	Type               Direction  `json:"type"`
	Amount             float64    `json:"amount"`
	CategoryID         *int64     `json:"categoryId"`
	SubcategoryID      *int64     `json:"subcategoryId"`
	CategoryName       string     `json:"categoryName,omitempty"`
	SubcategoryName    string     `json:"subcategoryName,omitempty"`
	PaymentMethodID    *int64     `json:"paymentMethodId"`
	PaymentMethod      string     `json:"paymentMethod"`
	BankID             *int64     `json:"bankId"`
	BankName           string     `json:"bankName"`
	MovementKind       string     `json:"movementKind"`
	IsInternalTransfer bool       `json:"isInternalTransfer"`
	IsCardBillPayment  bool       `json:"isCardBillPayment"`
	IsInvestment       bool       `json:"isInvestment"`
	IsRefund           bool       `json:"isRefund"`
	IsFee              bool       `json:"isFee"`
	Confidence         *float64   `json:"confidence"`
	Notes              string     `json:"notes"`
	Hash               string     `json:"hash"`
	CreatedAt          time.Time  `json:"createdAt"`
}
