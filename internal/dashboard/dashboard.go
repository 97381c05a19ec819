// Package dashboard aggregates stored transactions into the overview,
// category breakdowns and time series shown by the dashboard.
//
// Every aggregation shares the predicates below, so a transaction left out
// of the overview's spend total is also left out of every breakdown.
package dashboard

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/dvloznov/finance-dashboard/internal/rules"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

const (
	ByCategoryLimit       = 50
	TopSubcategoriesLimit = 10

	uncategorized = "Sem categoria"
	noSubcategory = "—"

	// Transfers between own accounts and card bill payments move money
	// without consuming it.
	notMoved = "t.is_internal_transfer = 0 AND t.is_card_bill_payment = 0"
)

var (
	// Income excludes internal transfers and investment returns.
	incomePredicate = "t.type = 'income' AND t.is_internal_transfer = 0 AND COALESCE(t.subcategory_id, 0) <> " +
		strconv.FormatInt(rules.InvestmentIncomeSubcategoryID, 10)

	spendPredicate      = "t.type = 'spend' AND " + notMoved + " AND t.is_investment = 0 AND t.is_fee = 0"
	feePredicate        = "t.type = 'spend' AND " + notMoved + " AND t.is_investment = 0 AND t.is_fee = 1"
	investmentPredicate = "t.type = 'spend' AND " + notMoved + " AND t.is_investment = 1"
)

// Querier is the read access the engine needs; *store.Store implements it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Engine runs the dashboard aggregations.
type Engine struct {
	db Querier
}

// New returns an Engine over db.
func New(db Querier) *Engine {
	return &Engine{db: db}
}

// Overview holds the scalar totals. Saídas, tarifas and aportes are absolute
// values.
type Overview struct {
	TotalEntradas        float64 `json:"totalEntradas"`
	TotalSaidas          float64 `json:"totalSaidas"`
	SaldoFinalEstimado   float64 `json:"saldoFinalEstimado"`
	Tarifas              float64 `json:"tarifas"`
	InvestimentosAportes float64 `json:"investimentosAportes"`
}

// CategoryTotal is one row of the by-category breakdown.
type CategoryTotal struct {
	CategoryID    *int64  `json:"categoryId"`
	SubcategoryID *int64  `json:"subcategoryId"`
	Categoria     string  `json:"categoria"`
	Subcategoria  *string `json:"subcategoria"`
	Qty           int     `json:"qty"`
	Total         float64 `json:"total"`
	TicketMedio   float64 `json:"ticketMedio"`
}

// SubcategoryTotal is one row of the top subcategories ranking.
type SubcategoryTotal struct {
	Subcategoria string  `json:"subcategoria"`
	Categoria    string  `json:"categoria"`
	Total        float64 `json:"total"`
}

func (e *Engine) sum(ctx context.Context, expr, predicate string, f store.Filter) (float64, error) {
	where, args := f.Where("t")
	var total float64
	err := e.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(`+expr+`), 0) FROM transactions t WHERE `+predicate+` AND `+where, args...).
		Scan(&total)
	return total, err
}

// Overview returns the totals over the filtered transactions. The balance is
// income minus spend and fees; it has no opening balance.
func (e *Engine) Overview(ctx context.Context, f store.Filter) (*Overview, error) {
	var o Overview
	buckets := []struct {
		name      string
		expr      string
		predicate string
		dest      *float64
	}{
		{"income", "t.amount", incomePredicate, &o.TotalEntradas},
		{"spend", "ABS(t.amount)", spendPredicate, &o.TotalSaidas},
		{"fees", "ABS(t.amount)", feePredicate, &o.Tarifas},
		{"investments", "ABS(t.amount)", investmentPredicate, &o.InvestimentosAportes},
	}
	for _, b := range buckets {
		v, err := e.sum(ctx, b.expr, b.predicate, f)
		if err != nil {
			return nil, fmt.Errorf("Overview: %s: %w", b.name, err)
		}
		*b.dest = v
	}
	o.SaldoFinalEstimado = o.TotalEntradas - (o.TotalSaidas + o.Tarifas)
	return &o, nil
}

// ByCategory groups spend by category and subcategory, largest first.
func (e *Engine) ByCategory(ctx context.Context, f store.Filter) ([]CategoryTotal, error) {
	where, args := f.Where("t")
	rows, err := e.db.QueryContext(ctx, `
		SELECT t.category_id, t.subcategory_id,
		       COALESCE(c.name, '`+uncategorized+`'), sc.name,
		       COUNT(*), COALESCE(SUM(ABS(t.amount)), 0),
		       AVG(CASE WHEN ABS(t.amount) > 0 THEN ABS(t.amount) END)
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		LEFT JOIN categories sc ON sc.id = t.subcategory_id
		WHERE `+spendPredicate+` AND `+where+`
		GROUP BY t.category_id, t.subcategory_id, c.name, sc.name
		ORDER BY 6 DESC, 3, 4
		LIMIT `+strconv.Itoa(ByCategoryLimit), args...)
	if err != nil {
		return nil, fmt.Errorf("ByCategory: query: %w", err)
	}
	defer rows.Close()

	out := []CategoryTotal{}
	for rows.Next() {
		var ct CategoryTotal
		var sub sql.NullString
		var avg sql.NullFloat64
		if err := rows.Scan(&ct.CategoryID, &ct.SubcategoryID, &ct.Categoria, &sub, &ct.Qty, &ct.Total, &avg); err != nil {
			return nil, fmt.Errorf("ByCategory: scan: %w", err)
		}
		if sub.Valid {
			ct.Subcategoria = &sub.String
		}
		ct.TicketMedio = avg.Float64
		out = append(out, ct)
	}
	return out, rows.Err()
}

// TopSubcategories ranks spend by subcategory.
func (e *Engine) TopSubcategories(ctx context.Context, f store.Filter) ([]SubcategoryTotal, error) {
	where, args := f.Where("t")
	rows, err := e.db.QueryContext(ctx, `
		SELECT COALESCE(sc.name, '`+noSubcategory+`'), COALESCE(c.name, '`+uncategorized+`'),
		       COALESCE(SUM(ABS(t.amount)), 0)
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		LEFT JOIN categories sc ON sc.id = t.subcategory_id
		WHERE `+spendPredicate+` AND `+where+`
		GROUP BY t.subcategory_id, sc.name, c.name
		ORDER BY 3 DESC, 1
		LIMIT `+strconv.Itoa(TopSubcategoriesLimit), args...)
	if err != nil {
		return nil, fmt.Errorf("TopSubcategories: query: %w", err)
	}
	defer rows.Close()

	out := []SubcategoryTotal{}
	for rows.Next() {
		var st SubcategoryTotal
		if err := rows.Scan(&st.Subcategoria, &st.Categoria, &st.Total); err != nil {
			return nil, fmt.Errorf("TopSubcategories: scan: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
