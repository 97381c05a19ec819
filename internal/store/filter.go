package store

import (
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/finance-dashboard/internal/textnorm"
)

// Filter is the predicate set shared by transaction listing and the
// dashboard aggregations.
type Filter struct {
	From               *civil.Date
	To                 *civil.Date
	CategoryIDs        []int64
	SubcategoryIDs     []int64
	PaymentMethodIDs   []int64
	PaymentMethodCodes []string // used only when PaymentMethodIDs is empty
	Query              string
}

// Where renders the filter as SQL conditions over the transactions table
// aliased as alias. The result is "1=1" when no filter is set.
func (f Filter) Where(alias string) (string, []any) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}

	conds := []string{"1=1"}
	var args []any

	if f.From != nil {
		conds = append(conds, col("date")+" >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		conds = append(conds, col("date")+" <= ?")
		args = append(args, f.To.String())
	}
	if len(f.CategoryIDs) > 0 {
		conds = append(conds, col("category_id")+" IN ("+inPlaceholders(len(f.CategoryIDs))+")")
		args = appendIDs(args, f.CategoryIDs)
	}
	if len(f.SubcategoryIDs) > 0 {
		conds = append(conds, col("subcategory_id")+" IN ("+inPlaceholders(len(f.SubcategoryIDs))+")")
		args = appendIDs(args, f.SubcategoryIDs)
	}
	switch {
	case len(f.PaymentMethodIDs) > 0:
		conds = append(conds, col("payment_method_id")+" IN ("+inPlaceholders(len(f.PaymentMethodIDs))+")")
		args = appendIDs(args, f.PaymentMethodIDs)
	case len(f.PaymentMethodCodes) > 0:
		conds = append(conds, col("payment_method_id")+" IN (SELECT id FROM payment_methods WHERE code IN ("+
			inPlaceholders(len(f.PaymentMethodCodes))+"))")
		for _, c := range f.PaymentMethodCodes {
			args = append(args, c)
		}
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		conds = append(conds, col("search_text")+" LIKE ?")
		args = append(args, "%"+textnorm.Fold(q)+"%")
	}
	return strings.Join(conds, " AND "), args
}

func appendIDs(args []any, ids []int64) []any {
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
