// Package flags derives the exclusion flags used by aggregation from the
// free-text classification fields of a transaction.
package flags

import (
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/textnorm"
)

// Flag identifies one boolean attribute of a transaction.
type Flag int

const (
	InternalTransfer Flag = iota
	CardBillPayment
	Investment
	Refund
	Fee
)

var flagNames = map[Flag]string{
	InternalTransfer: "internal_transfer",
	CardBillPayment:  "card_bill_payment",
	Investment:       "investment",
	Refund:           "refund",
	Fee:              "fee",
}

func (f Flag) String() string {
	return flagNames[f]
}

// Input is the text a transaction carries after classification.
type Input struct {
	Category     string
	Subcategory  string
	Notes        string
	Description  string
	MovementKind domain.MovementKind
}

// Flags is the set of derived booleans.
type Flags struct {
	InternalTransfer bool
	CardBillPayment  bool
	Investment       bool
	Refund           bool
	Fee              bool
}

// Has reports whether f is set.
func (fs Flags) Has(f Flag) bool {
	switch f {
	case InternalTransfer:
		return fs.InternalTransfer
	case CardBillPayment:
		return fs.CardBillPayment
	case Investment:
		return fs.Investment
	case Refund:
		return fs.Refund
	case Fee:
		return fs.Fee
	}
	return false
}

func (fs *Flags) set(f Flag) {
	switch f {
	case InternalTransfer:
		fs.InternalTransfer = true
	case CardBillPayment:
		fs.CardBillPayment = true
	case Investment:
		fs.Investment = true
	case Refund:
		fs.Refund = true
	case Fee:
		fs.Fee = true
	}
}

// Or returns the union of two flag sets.
func (fs Flags) Or(other Flags) Flags {
	return Flags{
		InternalTransfer: fs.InternalTransfer || other.InternalTransfer,
		CardBillPayment:  fs.CardBillPayment || other.CardBillPayment,
		Investment:       fs.Investment || other.Investment,
		Refund:           fs.Refund || other.Refund,
		Fee:              fs.Fee || other.Fee,
	}
}

// Predicate decides whether a rule applies to an input.
type Predicate func(Input) bool

// Rule pairs a predicate with the flag it sets.
type Rule struct {
	Name      string
	Flag      Flag
	Predicate Predicate
}

// Vocabulary. Matching is accent-insensitive, so "transferencia interna"
// also covers "transferência interna".
var (
	internalTransferTerms = []string{"transferência interna"}
	cardTerms             = []string{"cartão de crédito", "cartão"}
	cardBillTerms         = []string{"pagamento de fatura", "pagamento", "fatura"}
	investmentTerms       = []string{"investimento", "aporte", "aplicação"}
	refundTerms           = []string{"estorno", "chargeback", "devolução"}
	feeTerms              = []string{"tarifa", "taxa", "anuidade", "iof", "encargo", "juros"}
)

// DefaultRules is the ordered rule list. Each rule is evaluated
// independently; order only affects reporting.
var DefaultRules = []Rule{
	{
		Name: "internal transfer",
		Flag: InternalTransfer,
		Predicate: func(in Input) bool {
			return textnorm.ContainsAny(in.Category, internalTransferTerms...) ||
				textnorm.ContainsAny(in.Subcategory, internalTransferTerms...) ||
				textnorm.ContainsAny(in.Notes, internalTransferTerms...)
		},
	},
	{
		// Card category AND bill subcategory. Both sides must hold.
		Name: "card bill payment",
		Flag: CardBillPayment,
		Predicate: func(in Input) bool {
			return textnorm.ContainsAny(in.Category, cardTerms...) &&
				textnorm.ContainsAny(in.Subcategory, cardBillTerms...)
		},
	},
	{
		Name: "investment category",
		Flag: Investment,
		Predicate: func(in Input) bool {
			return in.MovementKind == domain.MovementInvest ||
				textnorm.ContainsAny(in.Category, investmentTerms...)
		},
	},
	{
		Name: "refund or chargeback",
		Flag: Refund,
		Predicate: func(in Input) bool {
			return textnorm.ContainsAny(in.Description, refundTerms...) ||
				textnorm.ContainsAny(in.Notes, refundTerms...)
		},
	},
	{
		Name: "bank fee",
		Flag: Fee,
		Predicate: func(in Input) bool {
			return in.MovementKind == domain.MovementFee ||
				textnorm.ContainsAny(in.Category, feeTerms...) ||
				textnorm.ContainsAny(in.Subcategory, feeTerms...)
		},
	},
}

// Classifier evaluates an ordered rule list.
type Classifier struct {
	rules []Rule
}

// New returns a classifier over rules, or DefaultRules when none are given.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the flags whose rules match in.
func (c *Classifier) Classify(in Input) Flags {
	var out Flags
	for _, r := range c.rules {
		if r.Predicate(in) {
			out.set(r.Flag)
		}
	}
	return out
}

// Matches returns the names of the rules that fired, in rule order.
func (c *Classifier) Matches(in Input) []string {
	var names []string
	for _, r := range c.rules {
		if r.Predicate(in) {
			names = append(names, r.Name)
		}
	}
	return names
}

// Classify evaluates DefaultRules.
func Classify(in Input) Flags {
	return New().Classify(in)
}
