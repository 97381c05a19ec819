package classify

import (
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-dashboard/internal/domain"
)

// Fields every classified record must carry, in schema order.
var requiredFields = []string{
	"date",
	"description",
	"amount",
	"type",
	"counterparty_normalized",
	"payment_method",
	"payment_method_id",
	"bank_id",
	"category_id",
	"subcategory_id",
	"category_label",
	"subcategory_label",
	"movement_kind",
	"is_internal_transfer",
	"is_card_bill_payment",
	"is_investment_aporte",
	"is_investment_rendimento",
}

// ResponseSchema is the JSON schema the model output must follow.
func ResponseSchema() map[string]any {
	movementKinds := make([]string, 0, len(domain.MovementKinds))
	for _, k := range domain.MovementKinds {
		movementKinds = append(movementKinds, string(k))
	}

	item := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date":                     map[string]any{"type": "string"},
			"description":              map[string]any{"type": "string"},
			"amount":                   map[string]any{"type": "number"},
			"type":                     map[string]any{"type": "string", "enum": []string{string(domain.DirectionIncome), string(domain.DirectionSpend)}},
			"counterparty_normalized":  map[string]any{"type": "string"},
			"payment_method":           map[string]any{"type": "string"},
			"payment_method_id":        map[string]any{"type": "integer"},
			"bank_id":                  map[string]any{"type": "integer"},
			"category_id":              map[string]any{"type": "integer"},
			"subcategory_id":           map[string]any{"type": []string{"integer", "null"}},
			"category_label":           map[string]any{"type": "string"},
			"subcategory_label":        map[string]any{"type": []string{"string", "null"}},
			"movement_kind":            map[string]any{"type": "string", "enum": movementKinds},
			"is_internal_transfer":     map[string]any{"type": "integer"},
			"is_card_bill_payment":     map[string]any{"type": "integer"},
			"is_investment_aporte":     map[string]any{"type": "integer"},
			"is_investment_rendimento": map[string]any{"type": "integer"},
		},
		"required":             requiredFields,
		"additionalProperties": false,
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"transacoes": map[string]any{
				"type":  "array",
				"items": item,
			},
		},
		"required":             []string{"transacoes"},
		"additionalProperties": false,
	}
}

// modelTransaction is one record as the model writes it. Date stays a string
// because the model may leave it empty.
type modelTransaction struct {
	Date                   string              `json:"date"`
	Description            string              `json:"description"`
	Amount                 float64             `json:"amount"`
	Type                   domain.Direction    `json:"type"`
	CounterpartyNormalized string              `json:"counterparty_normalized"`
	PaymentMethod          string              `json:"payment_method"`
	PaymentMethodID        int64               `json:"payment_method_id"`
	BankID                 int64               `json:"bank_id"`
	CategoryID             int64               `json:"category_id"`
	SubcategoryID          *int64              `json:"subcategory_id"`
	CategoryLabel          string              `json:"category_label"`
	SubcategoryLabel       *string             `json:"subcategory_label"`
	MovementKind           domain.MovementKind `json:"movement_kind"`
	IsInternalTransfer     int                 `json:"is_internal_transfer"`
	IsCardBillPayment      int                 `json:"is_card_bill_payment"`
	IsInvestmentAporte     int                 `json:"is_investment_aporte"`
	IsInvestmentRendimento int                 `json:"is_investment_rendimento"`
}

// decodeRecord checks one raw record against the schema and decodes it.
func decodeRecord(i int, raw json.RawMessage) (modelTransaction, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return modelTransaction{}, fmt.Errorf("%w: item %d is not an object", ErrSchemaViolation, i)
	}

	known := make(map[string]bool, len(requiredFields))
	for _, f := range requiredFields {
		known[f] = true
		if _, ok := fields[f]; !ok {
			return modelTransaction{}, fmt.Errorf("%w: item %d missing %q", ErrSchemaViolation, i, f)
		}
	}
	for f := range fields {
		if !known[f] {
			return modelTransaction{}, fmt.Errorf("%w: item %d has unexpected field %q", ErrSchemaViolation, i, f)
		}
	}

	var mt modelTransaction
	if err := json.Unmarshal(raw, &mt); err != nil {
		return modelTransaction{}, fmt.Errorf("%w: item %d: %v", ErrSchemaViolation, i, err)
	}
	if !mt.Type.Valid() {
		return modelTransaction{}, fmt.Errorf("%w: item %d has type %q", ErrSchemaViolation, i, mt.Type)
	}
	if !mt.MovementKind.Valid() {
		return modelTransaction{}, fmt.Errorf("%w: item %d has movement_kind %q", ErrSchemaViolation, i, mt.MovementKind)
	}
	for _, v := range []int{mt.IsInternalTransfer, mt.IsCardBillPayment, mt.IsInvestmentAporte, mt.IsInvestmentRendimento} {
		if v != 0 && v != 1 {
			return modelTransaction{}, fmt.Errorf("%w: item %d has flag value %d", ErrSchemaViolation, i, v)
		}
	}
	return mt, nil
}
